package risk

import (
	"math"
	"sort"

	"github.com/mchmarny/pulse/pkg/data"
	"github.com/mchmarny/pulse/pkg/spatial"
	"gonum.org/v1/gonum/stat"
)

const (
	MaxScore = 100.0

	// epsilon keeps ratios finite for empty denominators.
	epsilon = 1.0
	// spikeSmoothing keeps the spike ratio finite for a zero rolling mean.
	spikeSmoothing = 0.1
)

// Options tunes the scoring pipeline. Zero values fall back to defaults.
type Options struct {
	Neighbors           int
	InfluxZ             float64
	GhostDemographicZ   float64
	GhostBiometricZ     float64
	RollingWindow       int
	SpikeRatio          float64
	MassMigrationVolume float64
	Weights             Weights
}

// DefaultOptions returns the reference thresholds.
func DefaultOptions() Options {
	return Options{
		Neighbors:           5,
		InfluxZ:             2.5,
		GhostDemographicZ:   1.5,
		GhostBiometricZ:     -1.5,
		RollingWindow:       7,
		SpikeRatio:          3.0,
		MassMigrationVolume: 500,
		Weights:             DefaultWeights(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Neighbors <= 0 {
		o.Neighbors = d.Neighbors
	}
	if o.InfluxZ == 0 {
		o.InfluxZ = d.InfluxZ
	}
	if o.GhostDemographicZ == 0 {
		o.GhostDemographicZ = d.GhostDemographicZ
	}
	if o.GhostBiometricZ == 0 {
		o.GhostBiometricZ = d.GhostBiometricZ
	}
	if o.RollingWindow <= 0 {
		o.RollingWindow = d.RollingWindow
	}
	if o.SpikeRatio == 0 {
		o.SpikeRatio = d.SpikeRatio
	}
	if o.MassMigrationVolume == 0 {
		o.MassMigrationVolume = d.MassMigrationVolume
	}
	if len(o.Weights) == 0 {
		o.Weights = d.Weights
	}
	return o
}

// Flags are the boolean risk signals of one record.
type Flags struct {
	Influx           bool `json:"risk_influx" yaml:"risk_influx"`
	GhostPopulation  bool `json:"risk_ghost_population" yaml:"risk_ghost_population"`
	SpikeEnrolment   bool `json:"spike_enrolment" yaml:"spike_enrolment"`
	SpikeDemographic bool `json:"spike_demographic" yaml:"spike_demographic"`
	SuddenSpike      bool `json:"sudden_spike_anomaly" yaml:"sudden_spike_anomaly"`
	MassMigration    bool `json:"mass_migration_alert" yaml:"mass_migration_alert"`
}

// ZScores are the local spatial z-scores of the three totals.
type ZScores struct {
	Enrolment   float64 `json:"z_enrolment" yaml:"z_enrolment"`
	Demographic float64 `json:"z_demographic" yaml:"z_demographic"`
	Biometric   float64 `json:"z_biometric" yaml:"z_biometric"`
}

// Scored is a record with every derived metric attached.
type Scored struct {
	data.Record  `yaml:",inline"`
	SectorScores `yaml:",inline"`

	Z               ZScores `json:"z_scores" yaml:"z_scores"`
	Flags           Flags   `json:"flags" yaml:"flags"`
	RiskScore       float64 `json:"risk_score" yaml:"risk_score"`
	RiskCategory    string  `json:"risk_category" yaml:"risk_category"`
	Governance      float64 `json:"governance_risk_score" yaml:"governance_risk_score"`
	GovernanceLevel string  `json:"governance_level" yaml:"governance_level"`
}

// Score runs the spatial, temporal and sector stages over aggregated
// (date, pincode) records. Output order follows input order.
func Score(rows []*data.Record, opt Options) []*Scored {
	opt = opt.withDefaults()

	out := make([]*Scored, len(rows))
	for i, r := range rows {
		out[i] = &Scored{Record: *r}
	}
	if len(out) == 0 {
		return out
	}

	applySpatial(out, opt)
	applyTemporal(out, opt)
	applySectors(out, opt)

	return out
}

func applySpatial(rows []*Scored, opt Options) {
	seen := make(map[int]bool)
	points := make([]spatial.Point, 0)
	for _, r := range rows {
		if seen[r.Pincode] {
			continue
		}
		seen[r.Pincode] = true
		points = append(points, spatial.Point{Key: r.Pincode, Lat: r.Latitude, Lon: r.Longitude})
	}
	neighbors := spatial.NewIndex(points).Neighbors(opt.Neighbors)

	type dayPin struct {
		day int64
		pin int
	}
	byDay := make(map[dayPin]*Scored, len(rows))
	for _, r := range rows {
		byDay[dayPin{r.Date.Unix(), r.Pincode}] = r
	}

	var enr, dem, bio []float64
	for _, r := range rows {
		enr, dem, bio = enr[:0], dem[:0], bio[:0]
		day := r.Date.Unix()
		for _, n := range neighbors[r.Pincode] {
			if nr, ok := byDay[dayPin{day, n}]; ok {
				enr = append(enr, nr.Enrolment())
				dem = append(dem, nr.Demographic())
				bio = append(bio, nr.Biometric())
			}
		}
		r.Z = ZScores{
			Enrolment:   zScore(r.Enrolment(), enr),
			Demographic: zScore(r.Demographic(), dem),
			Biometric:   zScore(r.Biometric(), bio),
		}
		r.Flags.Influx = r.Z.Enrolment > opt.InfluxZ
		r.Flags.GhostPopulation = r.Z.Demographic > opt.GhostDemographicZ &&
			r.Z.Biometric < opt.GhostBiometricZ
	}
}

// zScore compares v with its neighbors' values. Fewer than two values or a
// zero spread use a unit deviation; no values use a zero mean.
func zScore(v float64, neighbors []float64) float64 {
	mean, std := 0.0, 1.0
	if len(neighbors) > 0 {
		mean = stat.Mean(neighbors, nil)
	}
	if len(neighbors) > 1 {
		_, std = stat.PopMeanStdDev(neighbors, nil)
	}
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	z := (v - mean) / std
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 0
	}
	return z
}

func applyTemporal(rows []*Scored, opt Options) {
	groups := make(map[int][]*Scored)
	for _, r := range rows {
		groups[r.Pincode] = append(groups[r.Pincode], r)
	}

	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].Date.Before(g[j].Date) })

		enr := rollingMean(g, opt.RollingWindow, func(s *Scored) float64 { return s.Enrolment() })
		dem := rollingMean(g, opt.RollingWindow, func(s *Scored) float64 { return s.Demographic() })

		for i, r := range g {
			r.Flags.SpikeEnrolment = r.Enrolment()/(enr[i]+spikeSmoothing) > opt.SpikeRatio
			r.Flags.SpikeDemographic = r.Demographic()/(dem[i]+spikeSmoothing) > opt.SpikeRatio
			r.Flags.SuddenSpike = r.Flags.SpikeEnrolment || r.Flags.SpikeDemographic
			r.Flags.MassMigration = r.Demographic() > opt.MassMigrationVolume

			r.RiskScore = SeverityScore(r.Flags)
			r.RiskCategory = RiskCategory(r.RiskScore)
		}
	}
}

// rollingMean is the trailing mean over up to window values, current included.
func rollingMean(g []*Scored, window int, val func(*Scored) float64) []float64 {
	out := make([]float64, len(g))
	var sum float64
	for i, r := range g {
		sum += val(r)
		if i >= window {
			sum -= val(g[i-window])
		}
		n := min(i+1, window)
		out[i] = sum / float64(n)
	}
	return out
}

// SeverityScore weighs the flags into a 0-100 score.
func SeverityScore(f Flags) float64 {
	var s float64
	if f.Influx {
		s += 20
	}
	if f.SuddenSpike {
		s += 30
	}
	if f.MassMigration {
		s += 50
	}
	if f.GhostPopulation {
		s += 15
	}
	return math.Min(s, MaxScore)
}

func applySectors(rows []*Scored, opt Options) {
	n := len(rows)
	demoAdult := make([]float64, n)
	bioAdult := make([]float64, n)
	adults := make([]float64, n)
	hollow := make([]float64, n)
	for i, r := range rows {
		demoAdult[i] = r.Demo17Plus
		bioAdult[i] = r.Bio17Plus
		adults[i] = r.Age18Plus
		hollow[i] = r.Demographic() / (r.Enrolment() + epsilon)
	}
	pDemoAdult := PercentRank(demoAdult)
	pBioAdult := PercentRank(bioAdult)
	pAdults := PercentRank(adults)
	pHollow := PercentRank(hollow)

	for i, r := range rows {
		f := r.Flags
		r.Education = EducationScore(&r.Record)
		r.Hunger = clip(pDemoAdult[i]*100*0.5+b2f(f.MassMigration)*30+b2f(f.SuddenSpike)*20, 0, MaxScore)
		r.Rural = clip(clip(pHollow[i]*100, 0, MaxScore)*0.8+b2f(f.GhostPopulation)*20, 0, MaxScore)
		r.Electoral = clip(pAdults[i]*50+b2f(f.Influx)*30+b2f(f.SuddenSpike)*20, 0, MaxScore)
		r.Labor = clip(pDemoAdult[i]*40+pBioAdult[i]*30+b2f(f.MassMigration)*30, 0, MaxScore)

		r.Governance = r.SectorScores.Composite(opt.Weights)
		r.GovernanceLevel = GovernanceLevel(r.Governance)
	}
}

// EducationScore blends missing child biometric updates (70%) with child
// demographic churn (30%).
func EducationScore(r *data.Record) float64 {
	children := r.Age0to5 + r.Age5to17
	compliance := clip(r.Bio5to17/(children+epsilon), 0, 1)
	churn := clip(r.Demo5to17/(children+epsilon), 0, 1)
	return clip((MaxScore-compliance*100)*0.7+churn*100*0.3, 0, MaxScore)
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clip(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
