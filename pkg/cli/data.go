package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mchmarny/pulse/pkg/config"
	"github.com/mchmarny/pulse/pkg/intel"
)

const (
	defaultSectorLimit   = 100
	defaultAnomalyLimit  = 20
	defaultForecastLimit = 20
	defaultMatrixLimit   = 15
	defaultPeriods       = 12
	suggestedDistricts   = 5
	maxChatBodyBytes     = 1 << 16
	statusOperational    = "operational"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps domain errors onto HTTP statuses.
func (s *server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, intel.ErrDistrictNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":               err.Error(),
			"available_districts": s.ds.SuggestDistricts(suggestedDistricts),
		})
	case errors.Is(err, intel.ErrPincodeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, intel.ErrUnknownSector),
		errors.Is(err, config.ErrInvalidPincode),
		errors.Is(err, intel.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respond writes the JSON result of build, served from the response cache
// when possible. Successful responses carry the dataset fingerprint as ETag.
func (s *server) respond(w http.ResponseWriter, r *http.Request, build func() (any, error)) {
	key := r.URL.RequestURI()
	var b []byte
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			b = v.([]byte)
		}
	}

	if b == nil {
		v, err := build()
		if err != nil {
			s.fail(w, err)
			return
		}
		if b, err = json.Marshal(v); err != nil {
			s.fail(w, err)
			return
		}
		if s.cache != nil {
			s.cache.SetDefault(key, b)
		}
	}

	etag := strconv.Quote(s.ds.Fingerprint())
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeRaw(w, b)
}

func writeRaw(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(b); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func queryParamInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func queryParamFloat(r *http.Request, key string, defaultVal float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

// pathPincode parses and validates the {pincode} path value.
func (s *server) pathPincode(r *http.Request) (int, error) {
	v := r.PathValue("pincode")
	pin, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", config.ErrInvalidPincode, v)
	}
	if err := s.cfg.ValidatePincode(pin); err != nil {
		return 0, err
	}
	return pin, nil
}

type dataStatus struct {
	intel.Stats  `yaml:",inline"`
	Fingerprint  string    `json:"fingerprint" yaml:"fingerprint"`
	LoadedAt     time.Time `json:"loaded_at" yaml:"loaded_at"`
	ModelVersion string    `json:"model_version" yaml:"model_version"`
}

func (s *server) dataStatus() dataStatus {
	return dataStatus{
		Stats:        s.ds.Stats(),
		Fingerprint:  s.ds.Fingerprint(),
		LoadedAt:     s.ds.LoadedAt(),
		ModelVersion: s.ds.ModelVersion(),
	}
}

func rootAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service":     s.cfg.App.Name,
			"status":      statusOperational,
			"version":     s.cfg.App.Version,
			"build":       version,
			"environment": s.cfg.App.Environment,
			"data":        s.dataStatus(),
			"features": map[string]bool{
				"anomaly_detection": s.cfg.ML.AnomalyEnabled,
				"clustering":        s.cfg.ML.ClusteringEnabled,
				"forecasting":       s.cfg.Forecast.Enabled,
				"chat":              s.cfg.Chat.Enabled,
				"chat_model":        s.cfg.Chat.Enabled && s.cfg.Chat.APIKey != "",
				"export":            s.cfg.Export.Enabled,
				"websocket":         s.cfg.WebSocket.Enabled,
				"api_key":           s.cfg.Security.APIKeyEnabled,
				"rate_limit":        s.cfg.RateLimit.Enabled,
				"cache":             s.cfg.Data.CacheEnabled,
			},
		})
	}
}

func healthAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.ds.Stats()
		healthy := st.Pincodes > 0 && s.health.Healthy(r.Context())

		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"status":      status,
			"version":     s.cfg.App.Version,
			"data_loaded": st.Pincodes > 0,
			"pincodes":    st.Pincodes,
			"application": s.health.Application(),
		})
	}
}

func readyAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if s.ds.Stats().Pincodes == 0 {
			writeError(w, http.StatusServiceUnavailable, "no data loaded")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func metricsAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"health":      s.health.Health(r.Context()),
			"performance": s.perf.Stats(),
			"data":        s.dataStatus(),
		})
	}
}

func allMetricsAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryParamInt(r, "limit", 0)
		s.respond(w, r, func() (any, error) {
			return s.ds.All(limit), nil
		})
	}
}

func sectorMetricsAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sector := r.PathValue("sector")
		minRisk := queryParamFloat(r, "min_risk", 0)
		limit := queryParamInt(r, "limit", defaultSectorLimit)
		s.respond(w, r, func() (any, error) {
			return s.ds.Sector(sector, minRisk, limit)
		})
	}
}

func pincodeMetricsAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pin, err := s.pathPincode(r)
		if err != nil {
			s.fail(w, err)
			return
		}
		s.respond(w, r, func() (any, error) {
			return s.ds.Pincode(pin)
		})
	}
}

func topAnomaliesAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryParamInt(r, "limit", defaultAnomalyLimit)
		s.respond(w, r, func() (any, error) {
			return s.ds.TopAnomalies(limit), nil
		})
	}
}

func pincodeReportAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pin, err := s.pathPincode(r)
		if err != nil {
			s.fail(w, err)
			return
		}
		// report ids carry the generation time
		rep, err := s.ds.PincodeReport(pin)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func overviewAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, r, func() (any, error) {
			return s.ds.Overview(), nil
		})
	}
}

func stateStatsAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, r, func() (any, error) {
			states := s.ds.States()
			return map[string]any{"total_states": len(states), "data": states}, nil
		})
	}
}
