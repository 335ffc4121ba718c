package cli

import (
	"cmp"
	"net/http"
	"slices"

	"github.com/mchmarny/pulse/pkg/intel"
)

func forecastsAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Forecast.Enabled {
			writeError(w, http.StatusNotFound, "forecasting is disabled")
			return
		}
		limit := queryParamInt(r, "limit", defaultForecastLimit)
		s.respond(w, r, func() (any, error) {
			rows := s.ds.Forecasts(limit)
			return map[string]any{"total": len(rows), "data": rows}, nil
		})
	}
}

func clustersAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, r, func() (any, error) {
			rows := s.ds.Clusters()
			return map[string]any{
				"enabled":        s.cfg.ML.ClusteringEnabled,
				"total_clusters": len(rows),
				"data":           rows,
			}, nil
		})
	}
}

// stateRiskAPIHandler ranks states by mean composite score.
func stateRiskAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, r, func() (any, error) {
			states := slices.Clone(s.ds.States())
			slices.SortStableFunc(states, func(a, b *intel.StateSummary) int {
				return cmp.Compare(b.GovernanceMean, a.GovernanceMean)
			})
			return map[string]any{"total_states": len(states), "data": states}, nil
		})
	}
}

func governmentInsightsAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, r, func() (any, error) {
			return map[string]any{"data": s.ds.GovernmentInsights()}, nil
		})
	}
}

func pincodeForecastAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Forecast.Enabled {
			writeError(w, http.StatusNotFound, "forecasting is disabled")
			return
		}
		pin, err := s.pathPincode(r)
		if err != nil {
			s.fail(w, err)
			return
		}
		periods := queryParamInt(r, "periods", defaultPeriods)
		s.respond(w, r, func() (any, error) {
			return s.ds.PincodeForecast(pin, periods)
		})
	}
}
