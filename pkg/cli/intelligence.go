package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mchmarny/pulse/pkg/intel"
)

func intelligenceStatusAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		st := s.ds.Stats()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":              statusOperational,
			"model_version":       s.ds.ModelVersion(),
			"districts_available": st.Districts,
			"states_available":    st.States,
			"forecast_horizons":   s.cfg.Forecast.Horizons,
			"roles":               len(intel.Roles),
			"chat_enabled":        s.cfg.Chat.Enabled,
			"chat_model":          s.cfg.Chat.Enabled && s.cfg.Chat.APIKey != "",
		})
	}
}

func rolesAPIHandler(_ *server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"roles":   intel.Roles,
			"default": intel.DefaultRole,
		})
	}
}

func districtsAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, r, func() (any, error) {
			return map[string]any{
				"total_districts": s.ds.Stats().Districts,
				"states":          s.ds.DistrictsByState(),
			}, nil
		})
	}
}

func chatAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Chat.Enabled {
			writeError(w, http.StatusNotFound, "chat is disabled")
			return
		}

		var req intel.ChatRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		res, err := s.chat.Answer(r.Context(), req)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func districtReportAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		district := r.PathValue("district")
		role := r.URL.Query().Get("role")
		rep, err := s.ds.DistrictReport(district, role)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func sampleQuestionsAPIHandler(_ *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := intel.FindRole(r.URL.Query().Get("role"))
		writeJSON(w, http.StatusOK, map[string]any{
			"role":      role.ID,
			"label":     role.Label,
			"questions": role.Questions,
		})
	}
}

func forecastMatrixAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Forecast.Enabled {
			writeError(w, http.StatusNotFound, "forecasting is disabled")
			return
		}
		limit := queryParamInt(r, "limit", defaultMatrixLimit)
		s.respond(w, r, func() (any, error) {
			rows := s.ds.ForecastMatrix(limit)
			return map[string]any{
				"total":         len(rows),
				"model_version": s.ds.ModelVersion(),
				"data":          rows,
			}, nil
		})
	}
}
