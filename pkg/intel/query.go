package intel

import (
	"fmt"
	"sort"
	"time"

	"github.com/mchmarny/pulse/pkg/config"
	"github.com/mchmarny/pulse/pkg/risk"
	"gonum.org/v1/gonum/stat"
)

// Anomaly types in priority order.
const (
	AnomalyGhostPopulation = "Ghost Population"
	AnomalyIllegalInflux   = "Illegal Influx"
	AnomalyMassMigration   = "Mass Migration"
	AnomalySuddenSpike     = "Sudden Spike"
	AnomalyML              = "ML Detected Anomaly"
	AnomalyGeneral         = "General Risk"
)

// Listing is a page of pincode summaries.
type Listing struct {
	TotalRecords int               `json:"total_records" yaml:"total_records"`
	MLAnomalies  int               `json:"ml_anomalies" yaml:"ml_anomalies"`
	Data         []*PincodeSummary `json:"data" yaml:"data"`
}

// SectorListing is a page of pincodes ranked by one sector score.
type SectorListing struct {
	Sector       string            `json:"sector" yaml:"sector"`
	Metric       string            `json:"metric" yaml:"metric"`
	TotalRecords int               `json:"total_records" yaml:"total_records"`
	AvgScore     float64           `json:"avg_score" yaml:"avg_score"`
	Data         []*PincodeSummary `json:"data" yaml:"data"`
}

// PincodeDetail is a pincode summary with its recent daily records.
type PincodeDetail struct {
	Summary      *PincodeSummary `json:"summary" yaml:"summary"`
	TimeSeries   []*risk.Scored  `json:"timeseries" yaml:"timeseries"`
	ModelVersion string          `json:"model_version" yaml:"model_version"`
}

// RankedAnomaly is a pincode summary labeled with its dominant anomaly.
type RankedAnomaly struct {
	PincodeSummary `yaml:",inline"`
	AnomalyType    string `json:"anomaly_type" yaml:"anomaly_type"`
}

// AnomalyRanking lists the highest risk pincodes.
type AnomalyRanking struct {
	TotalAlerts int             `json:"total_alerts" yaml:"total_alerts"`
	MLDetected  int             `json:"ml_detected" yaml:"ml_detected"`
	Data        []RankedAnomaly `json:"data" yaml:"data"`
}

// RiskDistribution counts pincodes per risk level.
type RiskDistribution struct {
	Critical int `json:"critical" yaml:"critical"`
	High     int `json:"high" yaml:"high"`
	Medium   int `json:"medium" yaml:"medium"`
	Low      int `json:"low" yaml:"low"`
}

// MLStats summarizes the model outputs.
type MLStats struct {
	TotalAnomalies int `json:"total_anomalies" yaml:"total_anomalies"`
	Clusters       int `json:"clusters" yaml:"clusters"`
}

// Overview is the national dashboard summary.
type Overview struct {
	TotalPincodes    int                 `json:"total_pincodes" yaml:"total_pincodes"`
	TotalRecords     int                 `json:"total_records" yaml:"total_records"`
	TotalDistricts   int                 `json:"total_districts" yaml:"total_districts"`
	TotalStates      int                 `json:"total_states" yaml:"total_states"`
	RiskDistribution RiskDistribution    `json:"risk_distribution" yaml:"risk_distribution"`
	SectorAlerts     map[risk.Sector]int `json:"sector_alerts" yaml:"sector_alerts"`
	MLStats          MLStats             `json:"ml_stats" yaml:"ml_stats"`
	AvgNationalRisk  float64             `json:"avg_national_risk" yaml:"avg_national_risk"`
	LastUpdated      time.Time           `json:"last_updated" yaml:"last_updated"`
	ModelVersion     string              `json:"model_version" yaml:"model_version"`
}

// All returns the first limit pincode summaries; limit <= 0 returns all.
func (d *Dataset) All(limit int) *Listing {
	rows := head(d.pincodes, limit)
	return &Listing{
		TotalRecords: len(rows),
		MLAnomalies:  countAnomalies(rows),
		Data:         rows,
	}
}

// Sector ranks pincodes scoring at least minRisk in the named sector and
// keeps the top limit; a negative limit keeps all of them.
func (d *Dataset) Sector(name string, minRisk float64, limit int) (*SectorListing, error) {
	sec, ok := risk.ParseSector(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSector, name)
	}

	rows := make([]*PincodeSummary, 0)
	for _, p := range d.pincodes {
		if p.SectorScores.Get(sec) >= minRisk {
			rows = append(rows, p)
		}
	}
	rows = topBy(rows, limit, func(p *PincodeSummary) float64 { return p.SectorScores.Get(sec) })

	out := &SectorListing{
		Sector:       name,
		Metric:       sec.Info().Index,
		TotalRecords: len(rows),
		Data:         rows,
	}
	if len(rows) > 0 {
		vals := make([]float64, len(rows))
		for i, p := range rows {
			vals[i] = p.SectorScores.Get(sec)
		}
		out.AvgScore = round2(stat.Mean(vals, nil))
	}
	return out, nil
}

// Pincode returns the summary of pin with its last 90 daily records.
func (d *Dataset) Pincode(pin int) (*PincodeDetail, error) {
	p, ok := d.byPincode[pin]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPincodeNotFound, pin)
	}
	s := d.series[pin]
	if len(s) > timeSeriesDays {
		s = s[len(s)-timeSeriesDays:]
	}
	return &PincodeDetail{
		Summary:      p,
		TimeSeries:   s,
		ModelVersion: d.ModelVersion(),
	}, nil
}

// TopAnomalies returns the limit pincodes with the highest composite score,
// each labeled with its anomaly type.
func (d *Dataset) TopAnomalies(limit int) *AnomalyRanking {
	rows := topBy(d.pincodes, limit, func(p *PincodeSummary) float64 { return p.Governance })
	out := &AnomalyRanking{
		TotalAlerts: len(rows),
		MLDetected:  countAnomalies(rows),
		Data:        make([]RankedAnomaly, len(rows)),
	}
	for i, p := range rows {
		out.Data[i] = RankedAnomaly{PincodeSummary: *p, AnomalyType: AnomalyType(p)}
	}
	return out
}

// AnomalyType picks the dominant signal of a pincode.
func AnomalyType(p *PincodeSummary) string {
	switch {
	case p.GhostPopulation:
		return AnomalyGhostPopulation
	case p.Influx:
		return AnomalyIllegalInflux
	case p.MassMigration:
		return AnomalyMassMigration
	case p.SuddenSpike:
		return AnomalySuddenSpike
	case p.Anomaly:
		return AnomalyML
	default:
		return AnomalyGeneral
	}
}

// Overview summarizes risk levels, sector alerts and model output.
func (d *Dataset) Overview() *Overview {
	st := d.Stats()
	o := &Overview{
		TotalPincodes:  st.Pincodes,
		TotalRecords:   st.Records,
		TotalDistricts: st.Districts,
		TotalStates:    st.States,
		SectorAlerts:   make(map[risk.Sector]int, len(risk.Sectors)),
		LastUpdated:    d.loadedAt,
		ModelVersion:   d.ModelVersion(),
	}
	for _, s := range risk.Sectors {
		o.SectorAlerts[s.Sector] = 0
	}
	if len(d.pincodes) == 0 {
		return o
	}

	clusters := make(map[int]struct{})
	gov := make([]float64, len(d.pincodes))
	for i, p := range d.pincodes {
		gov[i] = p.Governance
		o.RiskDistribution.inc(d.cfg.RiskLevel(p.Governance))
		for _, s := range risk.Sectors {
			if p.SectorScores.Get(s.Sector) > d.cfg.Thresholds.SectorAlert {
				o.SectorAlerts[s.Sector]++
			}
		}
		if p.Anomaly {
			o.MLStats.TotalAnomalies++
		}
		clusters[p.ClusterID] = struct{}{}
	}
	if d.cfg.ML.ClusteringEnabled {
		o.MLStats.Clusters = len(clusters)
	}
	o.AvgNationalRisk = round1(stat.Mean(gov, nil))
	return o
}

func (r *RiskDistribution) inc(level string) {
	switch level {
	case config.RiskCritical:
		r.Critical++
	case config.RiskHigh:
		r.High++
	case config.RiskMedium:
		r.Medium++
	default:
		r.Low++
	}
}

// States returns the state summaries ordered by state.
func (d *Dataset) States() []*StateSummary {
	return d.states
}

// Districts returns the district summaries ordered by state and district.
func (d *Dataset) Districts() []*DistrictSummary {
	return d.districts
}

// DistrictsByState lists district names per state.
func (d *Dataset) DistrictsByState() map[string][]string {
	out := make(map[string][]string)
	for _, s := range d.districts {
		out[s.State] = append(out[s.State], s.District)
	}
	return out
}

// CriticalAlerts returns up to n pincodes at or above the critical
// threshold, in pincode order.
func (d *Dataset) CriticalAlerts(n int) []*PincodeSummary {
	out := make([]*PincodeSummary, 0, max(n, 0))
	for _, p := range d.pincodes {
		if len(out) >= n {
			break
		}
		if p.Governance >= d.cfg.Thresholds.Critical {
			out = append(out, p)
		}
	}
	return out
}

func head[T any](rows []T, limit int) []T {
	if limit <= 0 || limit >= len(rows) {
		return rows
	}
	return rows[:limit]
}

// topBy sorts a copy of rows by val descending, keeping the input order for
// ties, and returns the first limit. A zero limit selects nothing; a negative
// one keeps every row.
func topBy(rows []*PincodeSummary, limit int, val func(*PincodeSummary) float64) []*PincodeSummary {
	out := make([]*PincodeSummary, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool { return val(out[i]) > val(out[j]) })
	if limit < 0 {
		return out
	}
	return out[:min(limit, len(out))]
}

func countAnomalies(rows []*PincodeSummary) int {
	var n int
	for _, p := range rows {
		if p.Anomaly {
			n++
		}
	}
	return n
}
