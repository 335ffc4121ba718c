package cli

import (
	"net/http"

	"github.com/mchmarny/pulse/pkg/risk"
)

const compositeMetric = "governance_risk_score"

type districtPoint struct {
	State     string  `json:"state"`
	District  string  `json:"district"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Pincodes  int     `json:"pincode_count"`
	RiskScore float64 `json:"risk_score"`
	MaxRisk   float64 `json:"max_risk"`
}

func geoJSONAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sector := r.URL.Query().Get("sector")
		s.respond(w, r, func() (any, error) {
			return s.ds.GeoJSON(sector), nil
		})
	}
}

// districtMapAPIHandler returns one point per district valued by the mean
// of the requested sector, or the composite score.
func districtMapAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sector, ok := risk.ParseSector(r.URL.Query().Get("sector"))
		s.respond(w, r, func() (any, error) {
			metric := compositeMetric
			if ok {
				metric = sector.Info().Index
			}
			districts := s.ds.Districts()
			out := make([]districtPoint, 0, len(districts))
			for _, d := range districts {
				p := districtPoint{
					State:     d.State,
					District:  d.District,
					Latitude:  d.Latitude,
					Longitude: d.Longitude,
					Pincodes:  d.Pincodes,
					RiskScore: d.GovernanceMean,
					MaxRisk:   d.GovernanceMax,
				}
				if ok {
					p.RiskScore = d.SectorScores.Get(sector)
				}
				out = append(out, p)
			}
			return map[string]any{
				"metric":          metric,
				"total_districts": len(out),
				"data":            out,
			}, nil
		})
	}
}

func stateMapAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, r, func() (any, error) {
			states := s.ds.States()
			return map[string]any{"total_states": len(states), "data": states}, nil
		})
	}
}

func filteredPincodesAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, r, func() (any, error) {
			rows := s.ds.FilteredPincodes()
			return map[string]any{
				"total":    len(rows),
				"excluded": s.ds.Stats().Pincodes - len(rows),
				"data":     rows,
			}, nil
		})
	}
}
