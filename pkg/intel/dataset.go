package intel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/mchmarny/pulse/pkg/config"
	"github.com/mchmarny/pulse/pkg/data"
	"github.com/mchmarny/pulse/pkg/ml"
	"github.com/mchmarny/pulse/pkg/risk"
	"github.com/mchmarny/pulse/pkg/spatial"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const timeSeriesDays = 90

var (
	ErrPincodeNotFound  = errors.New("pincode not found")
	ErrDistrictNotFound = errors.New("district not found")
	ErrUnknownSector    = errors.New("unknown sector")
)

// PincodeSummary is the latest scored state of one pincode enriched with
// the model outputs.
type PincodeSummary struct {
	Pincode           int       `json:"pincode" yaml:"pincode"`
	State             string    `json:"state" yaml:"state"`
	District          string    `json:"district" yaml:"district"`
	Latitude          float64   `json:"latitude" yaml:"latitude"`
	Longitude         float64   `json:"longitude" yaml:"longitude"`
	Date              time.Time `json:"date" yaml:"date"`
	Governance        float64   `json:"governance_risk_score" yaml:"governance_risk_score"`
	risk.SectorScores `yaml:",inline"`
	RiskScore         float64 `json:"risk_score" yaml:"risk_score"`
	risk.Flags        `yaml:",inline"`
	RiskLevel         string  `json:"risk_level" yaml:"risk_level"`
	Anomaly           bool    `json:"ml_anomaly" yaml:"ml_anomaly"`
	AnomalyScore      float64 `json:"anomaly_score" yaml:"anomaly_score"`
	ClusterID         int     `json:"cluster_id" yaml:"cluster_id"`
	SpatialZ          float64 `json:"z_score_governance" yaml:"z_score_governance"`
}

// Counters are summed enrolment, demographic and biometric counts.
type Counters struct {
	Age0to5    float64 `json:"age_0_5" yaml:"age_0_5"`
	Age5to17   float64 `json:"age_5_17" yaml:"age_5_17"`
	Age18Plus  float64 `json:"age_18_greater" yaml:"age_18_greater"`
	Demo5to17  float64 `json:"demo_age_5_17" yaml:"demo_age_5_17"`
	Demo17Plus float64 `json:"demo_age_17_" yaml:"demo_age_17_"`
	Bio5to17   float64 `json:"bio_age_5_17" yaml:"bio_age_5_17"`
	Bio17Plus  float64 `json:"bio_age_17_" yaml:"bio_age_17_"`
}

func (c *Counters) add(r *data.Record) {
	c.Age0to5 += r.Age0to5
	c.Age5to17 += r.Age5to17
	c.Age18Plus += r.Age18Plus
	c.Demo5to17 += r.Demo5to17
	c.Demo17Plus += r.Demo17Plus
	c.Bio5to17 += r.Bio5to17
	c.Bio17Plus += r.Bio17Plus
}

// DistrictSummary aggregates every record of a (state, district) pair.
// Sector fields hold means.
type DistrictSummary struct {
	State             string  `json:"state" yaml:"state"`
	District          string  `json:"district" yaml:"district"`
	Pincodes          int     `json:"pincode_count" yaml:"pincode_count"`
	Latitude          float64 `json:"latitude" yaml:"latitude"`
	Longitude         float64 `json:"longitude" yaml:"longitude"`
	GovernanceMean    float64 `json:"governance_risk_score_mean" yaml:"governance_risk_score_mean"`
	GovernanceMax     float64 `json:"governance_risk_score_max" yaml:"governance_risk_score_max"`
	GovernanceStd     float64 `json:"governance_risk_score_std" yaml:"governance_risk_score_std"`
	risk.SectorScores `yaml:",inline"`
	Counters          `yaml:",inline"`
}

// StateSummary aggregates every record of a state. Sector fields hold means.
type StateSummary struct {
	State             string  `json:"state" yaml:"state"`
	Pincodes          int     `json:"pincode_count" yaml:"pincode_count"`
	Districts         int     `json:"district_count" yaml:"district_count"`
	GovernanceMean    float64 `json:"governance_risk_score_mean" yaml:"governance_risk_score_mean"`
	GovernanceMax     float64 `json:"governance_risk_score_max" yaml:"governance_risk_score_max"`
	risk.SectorScores `yaml:",inline"`
}

// Stats counts what a Dataset holds.
type Stats struct {
	Records   int `json:"governance_records" yaml:"governance_records"`
	Pincodes  int `json:"pincodes" yaml:"pincodes"`
	Districts int `json:"districts" yaml:"districts"`
	States    int `json:"states" yaml:"states"`
}

// Dataset is the scored, summarized view of the loaded data. It is built
// once and only read afterwards, so it is safe for concurrent use.
type Dataset struct {
	cfg         *config.Config
	rows        []*risk.Scored
	series      map[int][]*risk.Scored
	pincodes    []*PincodeSummary
	byPincode   map[int]*PincodeSummary
	districts   []*DistrictSummary
	states      []*StateSummary
	fingerprint string
	loadedAt    time.Time
	now         func() time.Time
}

// Build scores src and derives the pincode, district and state summaries.
func Build(ctx context.Context, src *data.Dataset, cfg *config.Config) (*Dataset, error) {
	if src == nil || len(src.Rows) == 0 {
		return nil, data.ErrNoData
	}
	if cfg == nil {
		cfg = config.Default()
	}

	start := time.Now()
	d := &Dataset{
		cfg:         cfg,
		rows:        risk.Score(src.Rows, risk.Options{Neighbors: cfg.ML.Neighbors}),
		fingerprint: src.Fingerprint,
		loadedAt:    src.LoadedAt,
		now:         time.Now,
	}
	if d.loadedAt.IsZero() {
		d.loadedAt = start
	}
	slog.Debug("records scored", "records", len(d.rows), "took", time.Since(start))

	d.buildSeries()
	d.buildPincodes()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := d.applyModels(); err != nil {
		return nil, err
	}
	d.applySpatialZ(cfg.ML.Neighbors)

	d.buildDistricts()
	d.buildStates()

	slog.Info("dataset built",
		"records", len(d.rows),
		"pincodes", len(d.pincodes),
		"districts", len(d.districts),
		"states", len(d.states),
		"took", time.Since(start))

	return d, nil
}

func (d *Dataset) buildSeries() {
	d.series = make(map[int][]*risk.Scored)
	for _, r := range d.rows {
		d.series[r.Pincode] = append(d.series[r.Pincode], r)
	}
	for _, s := range d.series {
		sort.SliceStable(s, func(i, j int) bool { return s[i].Date.Before(s[j].Date) })
	}
}

func (d *Dataset) buildPincodes() {
	d.pincodes = make([]*PincodeSummary, 0, len(d.series))
	d.byPincode = make(map[int]*PincodeSummary, len(d.series))
	for pin, s := range d.series {
		last := s[len(s)-1]
		p := &PincodeSummary{
			Pincode:      pin,
			State:        last.State,
			District:     last.District,
			Latitude:     last.Latitude,
			Longitude:    last.Longitude,
			Date:         last.Date,
			Governance:   last.Governance,
			SectorScores: last.SectorScores,
			RiskScore:    last.RiskScore,
			Flags:        last.Flags,
			RiskLevel:    d.cfg.RiskLevel(last.Governance),
		}
		d.pincodes = append(d.pincodes, p)
		d.byPincode[pin] = p
	}
	sort.Slice(d.pincodes, func(i, j int) bool { return d.pincodes[i].Pincode < d.pincodes[j].Pincode })
}

func (d *Dataset) applyModels() error {
	if d.cfg.ML.AnomalyEnabled {
		features := make([][]float64, len(d.pincodes))
		for i, p := range d.pincodes {
			features[i] = p.SectorScores.Values()
		}
		res, err := ml.DetectAnomalies(features, d.cfg.ML.Contamination, d.cfg.ML.Trees, d.cfg.ML.Seed)
		if err != nil {
			return fmt.Errorf("anomaly detection: %w", err)
		}
		var count int
		for i, p := range d.pincodes {
			p.Anomaly = res.Anomalous[i]
			p.AnomalyScore = res.Scores[i]
			if p.Anomaly {
				count++
			}
		}
		slog.Info("anomalies detected", "count", count, "pincodes", len(d.pincodes))
	}

	if d.cfg.ML.ClusteringEnabled {
		features := make([][]float64, len(d.pincodes))
		for i, p := range d.pincodes {
			features[i] = append([]float64{p.Governance}, p.SectorScores.Values()...)
		}
		labels, err := ml.Cluster(features, d.cfg.ML.Clusters, d.cfg.ML.Seed)
		if err != nil {
			return fmt.Errorf("clustering: %w", err)
		}
		for i, p := range d.pincodes {
			p.ClusterID = labels[i]
		}
	}
	return nil
}

// applySpatialZ compares each pincode's composite score with its nearest
// neighbors. A zero spread counts as one.
func (d *Dataset) applySpatialZ(k int) {
	if k <= 0 || len(d.pincodes) < 2 {
		return
	}
	points := make([]spatial.Point, len(d.pincodes))
	for i, p := range d.pincodes {
		points[i] = spatial.Point{Key: p.Pincode, Lat: p.Latitude, Lon: p.Longitude}
	}
	idx := spatial.NewIndex(points)

	vals := make([]float64, 0, k)
	for i, p := range d.pincodes {
		vals = vals[:0]
		for _, n := range idx.Nearest(points[i], k) {
			vals = append(vals, d.byPincode[n.Key].Governance)
		}
		if len(vals) == 0 {
			continue
		}
		mean, std := stat.PopMeanStdDev(vals, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		p.SpatialZ = round2((p.Governance - mean) / std)
	}
}

// group accumulates the records of one district or state.
type group struct {
	pins      map[int]struct{}
	districts map[string]struct{}
	lat, lon  float64
	gov       []float64
	sectors   [5]float64
	counters  Counters
}

func newGroup() *group {
	return &group{pins: map[int]struct{}{}, districts: map[string]struct{}{}}
}

func (g *group) add(r *risk.Scored) {
	g.pins[r.Pincode] = struct{}{}
	g.districts[r.District] = struct{}{}
	g.lat += r.Latitude
	g.lon += r.Longitude
	g.gov = append(g.gov, r.Governance)
	for i, v := range r.SectorScores.Values() {
		g.sectors[i] += v
	}
	g.counters.add(&r.Record)
}

func (g *group) sectorMeans() risk.SectorScores {
	n := float64(len(g.gov))
	return risk.SectorScores{
		Education: round2(g.sectors[0] / n),
		Hunger:    round2(g.sectors[1] / n),
		Rural:     round2(g.sectors[2] / n),
		Electoral: round2(g.sectors[3] / n),
		Labor:     round2(g.sectors[4] / n),
	}
}

// std is the sample deviation; a single record has none.
func (g *group) std() float64 {
	if len(g.gov) < 2 {
		return 0
	}
	return round2(stat.StdDev(g.gov, nil))
}

func (d *Dataset) buildDistricts() {
	type key struct{ state, district string }
	groups := make(map[key]*group)
	for _, r := range d.rows {
		k := key{r.State, r.District}
		g, ok := groups[k]
		if !ok {
			g = newGroup()
			groups[k] = g
		}
		g.add(r)
	}

	d.districts = make([]*DistrictSummary, 0, len(groups))
	for k, g := range groups {
		n := float64(len(g.gov))
		d.districts = append(d.districts, &DistrictSummary{
			State:          k.state,
			District:       k.district,
			Pincodes:       len(g.pins),
			Latitude:       g.lat / n,
			Longitude:      g.lon / n,
			GovernanceMean: round2(stat.Mean(g.gov, nil)),
			GovernanceMax:  floats.Max(g.gov),
			GovernanceStd:  g.std(),
			SectorScores:   g.sectorMeans(),
			Counters:       g.counters,
		})
	}
	sort.Slice(d.districts, func(i, j int) bool {
		a, b := d.districts[i], d.districts[j]
		if a.State != b.State {
			return a.State < b.State
		}
		return a.District < b.District
	})
}

func (d *Dataset) buildStates() {
	groups := make(map[string]*group)
	for _, r := range d.rows {
		g, ok := groups[r.State]
		if !ok {
			g = newGroup()
			groups[r.State] = g
		}
		g.add(r)
	}

	d.states = make([]*StateSummary, 0, len(groups))
	for state, g := range groups {
		d.states = append(d.states, &StateSummary{
			State:          state,
			Pincodes:       len(g.pins),
			Districts:      len(g.districts),
			GovernanceMean: round2(stat.Mean(g.gov, nil)),
			GovernanceMax:  floats.Max(g.gov),
			SectorScores:   g.sectorMeans(),
		})
	}
	sort.Slice(d.states, func(i, j int) bool { return d.states[i].State < d.states[j].State })
}

// Stats reports the number of records and summaries.
func (d *Dataset) Stats() Stats {
	return Stats{
		Records:   len(d.rows),
		Pincodes:  len(d.pincodes),
		Districts: len(d.districts),
		States:    len(d.states),
	}
}

// Fingerprint identifies the source files the dataset was built from.
func (d *Dataset) Fingerprint() string {
	return d.fingerprint
}

// LoadedAt is when the source files were read.
func (d *Dataset) LoadedAt() time.Time {
	return d.loadedAt
}

// ModelVersion is the version stamped on reports.
func (d *Dataset) ModelVersion() string {
	return d.cfg.App.ModelVersion
}

// Summaries returns the pincode summaries ordered by pincode. Callers must
// not modify them.
func (d *Dataset) Summaries() []*PincodeSummary {
	return d.pincodes
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
