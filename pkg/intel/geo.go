package intel

import (
	"encoding/json"
	"fmt"

	"github.com/mchmarny/pulse/pkg/risk"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

const compositeMetric = "governance_risk_score"

// IndiaBounds is the lon/lat box used to drop mislocated pincodes.
var IndiaBounds = geom.NewBounds(geom.XY).Set(68.0, 6.5, 97.5, 35.5)

// MapLayer is a GeoJSON point layer of pincodes colored by one metric.
type MapLayer struct {
	Metric     string
	Collection *geojson.FeatureCollection
}

type layerMeta struct {
	Metric string `json:"metric"`
	Total  int    `json:"total"`
}

// MarshalJSON writes the feature collection with a metadata member.
func (l *MapLayer) MarshalJSON() ([]byte, error) {
	b, err := l.Collection.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode features: %w", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode features: %w", err)
	}
	meta, err := json.Marshal(layerMeta{Metric: l.Metric, Total: len(l.Collection.Features)})
	if err != nil {
		return nil, err
	}
	m["metadata"] = meta
	return json.Marshal(m)
}

// GeoJSON builds a point feature per pincode. The risk_score property holds
// the named sector score; "all" or an unknown name use the composite score.
func (d *Dataset) GeoJSON(sector string) *MapLayer {
	metric := compositeMetric
	score := func(p *PincodeSummary) float64 { return p.Governance }
	if sec, ok := risk.ParseSector(sector); ok {
		metric = sec.Info().Index
		score = func(p *PincodeSummary) float64 { return p.SectorScores.Get(sec) }
	}

	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(d.pincodes))}
	bounds := geom.NewBounds(geom.XY)
	for _, p := range d.pincodes {
		pt := geom.NewPointFlat(geom.XY, []float64{p.Longitude, p.Latitude})
		bounds.Extend(pt)
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: pt,
			Properties: map[string]interface{}{
				"pincode":          p.Pincode,
				"state":            p.State,
				"district":         p.District,
				"risk_score":       round2(score(p)),
				"governance_score": round2(p.Governance),
				"risk_level":       p.RiskLevel,
				"is_anomaly":       p.Anomaly,
			},
		})
	}
	if len(fc.Features) > 0 {
		fc.BBox = bounds
	}
	return &MapLayer{Metric: metric, Collection: fc}
}

// FilteredPincodes returns the pincodes located inside IndiaBounds.
func (d *Dataset) FilteredPincodes() []*PincodeSummary {
	out := make([]*PincodeSummary, 0, len(d.pincodes))
	for _, p := range d.pincodes {
		if IndiaBounds.OverlapsPoint(geom.XY, geom.Coord{p.Longitude, p.Latitude}) {
			out = append(out, p)
		}
	}
	return out
}
