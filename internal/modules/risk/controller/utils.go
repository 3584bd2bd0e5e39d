package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"air-pollution-dashboard/internal/modules/risk/input"
	"air-pollution-dashboard/internal/modules/risk/repository"
	"air-pollution-dashboard/internal/modules/risk/types"
)

const (
	defaultHistoryLimit = 20
	maxRequestBytes     = 64 << 10
)

// parseHistoryLimit returns the limit query parameter (default 20).
func parseHistoryLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'limit' (expected integer)")
	}
	if n <= 0 {
		return 0, errors.New("'limit' must be > 0")
	}
	if n > repository.MaxListLimit {
		return 0, fmt.Errorf("'limit' must be <= %d", repository.MaxListLimit)
	}
	return n, nil
}

// decodeReading reads a JSON reading. Fields left out keep their default
// value.
func decodeReading(body io.Reader) (types.Reading, error) {
	reading := input.Defaults()
	dec := json.NewDecoder(io.LimitReader(body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&reading); err != nil {
		return types.Reading{}, fmt.Errorf("invalid reading: %w", err)
	}
	return reading, nil
}
