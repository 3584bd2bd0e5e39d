// Package input turns submitted slider values into a types.Reading.
package input

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"air-pollution-dashboard/internal/modules/risk/types"
)

// Slider describes one range control on the dashboard form.
type Slider struct {
	ID    string
	Label string
	Unit  string
	Min   float64
	Max   float64
	Step  float64
}

// Sliders lists the form controls in display order.
var Sliders = []Slider{
	{ID: "pm25", Label: "PM2.5", Unit: "μg/m³", Min: 0, Max: 500, Step: 0.1},
	{ID: "pm10", Label: "PM10", Unit: "μg/m³", Min: 0, Max: 600, Step: 1},
	{ID: "no2", Label: "NO₂", Unit: "ppb", Min: 0, Max: 400, Step: 1},
	{ID: "so2", Label: "SO₂", Unit: "ppb", Min: 0, Max: 300, Step: 1},
	{ID: "co", Label: "CO", Unit: "ppm", Min: 0, Max: 50, Step: 0.1},
	{ID: "o3", Label: "O₃", Unit: "ppb", Min: 0, Max: 300, Step: 1},
	{ID: "temperature", Label: "Temperature", Unit: "°C", Min: -20, Max: 50, Step: 0.5},
	{ID: "humidity", Label: "Humidity", Unit: "%", Min: 0, Max: 100, Step: 1},
}

// Defaults returns the values the form is reset to.
func Defaults() types.Reading {
	return types.Reading{
		PM25:        25,
		PM10:        50,
		NO2:         30,
		SO2:         10,
		CO:          1.5,
		O3:          40,
		Temperature: 28,
		Humidity:    65,
	}
}

// Collect reads a Reading from submitted form values. Missing fields keep
// their default value; present fields must parse as finite numbers.
func Collect(values url.Values) (types.Reading, error) {
	r := Defaults()
	fields := map[string]*float64{
		"pm25":        &r.PM25,
		"pm10":        &r.PM10,
		"no2":         &r.NO2,
		"so2":         &r.SO2,
		"co":          &r.CO,
		"o3":          &r.O3,
		"temperature": &r.Temperature,
		"humidity":    &r.Humidity,
	}
	for _, s := range Sliders {
		raw := strings.TrimSpace(values.Get(s.ID))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Reading{}, fmt.Errorf("invalid %q (expected number)", s.ID)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return types.Reading{}, fmt.Errorf("invalid %q (must be finite)", s.ID)
		}
		*fields[s.ID] = v
	}
	r.Location = strings.TrimSpace(values.Get("location"))
	return r, nil
}

// Value returns the reading field bound to a slider id.
func Value(r types.Reading, id string) float64 {
	switch id {
	case "pm25":
		return r.PM25
	case "pm10":
		return r.PM10
	case "no2":
		return r.NO2
	case "so2":
		return r.SO2
	case "co":
		return r.CO
	case "o3":
		return r.O3
	case "temperature":
		return r.Temperature
	case "humidity":
		return r.Humidity
	default:
		return 0
	}
}

// ApplyTelemetry overlays the values present in t onto base.
func ApplyTelemetry(base types.Reading, t types.Telemetry) types.Reading {
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&base.PM25, t.PM25)
	set(&base.PM10, t.PM10)
	set(&base.NO2, t.NO2)
	set(&base.SO2, t.SO2)
	set(&base.CO, t.CO)
	set(&base.O3, t.O3)
	set(&base.Temperature, t.Temperature)
	set(&base.Humidity, t.Humidity)
	if t.StationID != "" {
		base.Location = t.StationID
	}
	return base
}
