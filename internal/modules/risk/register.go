package risk

import (
	"net/http"

	"air-pollution-dashboard/internal/modules/risk/controller"
	"air-pollution-dashboard/internal/modules/risk/service"
)

// RegisterFeature mounts the dashboard pages and the JSON API. apiWrap is
// applied to every /api/v1 route.
func RegisterFeature(mux *http.ServeMux, svc *service.Service, apiWrap func(http.Handler) http.Handler) {
	riskController := controller.NewRiskController(svc)
	riskController.RegisterRoutes(mux)
	riskController.RegisterAPIRoutes(mux, apiWrap)
}
