package intel

import (
	"fmt"
	"sort"
	"time"

	"github.com/mchmarny/pulse/pkg/forecast"
	"github.com/mchmarny/pulse/pkg/risk"
	"gonum.org/v1/gonum/stat"
)

const (
	defaultForecastPeriods = 12
	maxForecastPeriods     = 120
)

// ClusterStat summarizes the pincodes sharing a k-means cluster.
type ClusterStat struct {
	ClusterID    int     `json:"cluster_id" yaml:"cluster_id"`
	PincodeCount int     `json:"pincode_count" yaml:"pincode_count"`
	AvgRisk      float64 `json:"avg_risk" yaml:"avg_risk"`
	AvgEducation float64 `json:"avg_education" yaml:"avg_education"`
	AvgHunger    float64 `json:"avg_hunger" yaml:"avg_hunger"`
}

// MinistryInsight counts the pincodes one ministry should act on.
type MinistryInsight struct {
	Ministry         string      `json:"ministry" yaml:"ministry"`
	Sector           risk.Sector `json:"sector" yaml:"sector"`
	CriticalPincodes int         `json:"critical_pincodes" yaml:"critical_pincodes"`
	HighRiskPincodes int         `json:"high_risk_pincodes" yaml:"high_risk_pincodes"`
	AvgRisk          float64     `json:"avg_risk" yaml:"avg_risk"`
	ActionRequired   string      `json:"action_required" yaml:"action_required"`
}

// DistrictForecast is one row of the district forecast tables.
type DistrictForecast struct {
	District          string  `json:"district" yaml:"district"`
	State             string  `json:"state" yaml:"state"`
	CurrentPopulation float64 `json:"current_population" yaml:"current_population"`
	Forecast1Y        int     `json:"forecast_1y" yaml:"forecast_1y"`
	Forecast5Y        int     `json:"forecast_5y" yaml:"forecast_5y"`
	Forecast10Y       int     `json:"forecast_10y" yaml:"forecast_10y"`
	BudgetStress1Y    string  `json:"budget_stress_1y" yaml:"budget_stress_1y"`
	Confidence        float64 `json:"confidence" yaml:"confidence"`
}

// PincodeForecast projects the daily enrolment and demographic totals of a
// pincode.
type PincodeForecast struct {
	Pincode      int             `json:"pincode" yaml:"pincode"`
	Periods      int             `json:"periods" yaml:"periods"`
	History      int             `json:"history_days" yaml:"history_days"`
	Enrolment    forecast.Series `json:"enrolment" yaml:"enrolment"`
	Demographic  forecast.Series `json:"demographic" yaml:"demographic"`
	ModelVersion string          `json:"model_version" yaml:"model_version"`
}

// DailyTotal sums the counters of every pincode for one day.
type DailyTotal struct {
	Date        time.Time `json:"date" yaml:"date"`
	Enrolment   float64   `json:"enrolment" yaml:"enrolment"`
	Demographic float64   `json:"demographic" yaml:"demographic"`
	Biometric   float64   `json:"biometric" yaml:"biometric"`
}

// Clusters returns per-cluster statistics ordered by cluster id. It is
// empty when clustering is disabled.
func (d *Dataset) Clusters() []ClusterStat {
	out := make([]ClusterStat, 0)
	if !d.cfg.ML.ClusteringEnabled {
		return out
	}

	type acc struct {
		n                int
		gov, edu, hunger float64
	}
	byID := make(map[int]*acc)
	for _, p := range d.pincodes {
		a, ok := byID[p.ClusterID]
		if !ok {
			a = &acc{}
			byID[p.ClusterID] = a
		}
		a.n++
		a.gov += p.Governance
		a.edu += p.Education
		a.hunger += p.Hunger
	}
	for id, a := range byID {
		n := float64(a.n)
		out = append(out, ClusterStat{
			ClusterID:    id,
			PincodeCount: a.n,
			AvgRisk:      round2(a.gov / n),
			AvgEducation: round2(a.edu / n),
			AvgHunger:    round2(a.hunger / n),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClusterID < out[j].ClusterID })
	return out
}

// GovernmentInsights reports, per ministry, the pincodes above the critical
// and high thresholds of its sector.
func (d *Dataset) GovernmentInsights() []MinistryInsight {
	out := make([]MinistryInsight, 0, len(risk.Sectors))
	for _, s := range risk.Sectors {
		in := MinistryInsight{
			Ministry:       s.Ministry,
			Sector:         s.Sector,
			ActionRequired: s.MinistryAction,
		}
		vals := make([]float64, len(d.pincodes))
		for i, p := range d.pincodes {
			v := p.SectorScores.Get(s.Sector)
			vals[i] = v
			if v > d.cfg.Thresholds.Critical {
				in.CriticalPincodes++
			}
			if v > d.cfg.Thresholds.High {
				in.HighRiskPincodes++
			}
		}
		if len(vals) > 0 {
			in.AvgRisk = round1(stat.Mean(vals, nil))
		}
		out = append(out, in)
	}
	return out
}

// Forecasts projects the n districts with the highest mean composite score.
func (d *Dataset) Forecasts(n int) []DistrictForecast {
	top := make([]*DistrictSummary, len(d.districts))
	copy(top, d.districts)
	sort.SliceStable(top, func(i, j int) bool { return top[i].GovernanceMean > top[j].GovernanceMean })
	return forecastRows(head(top, n))
}

// ForecastMatrix projects the first limit districts in summary order.
func (d *Dataset) ForecastMatrix(limit int) []DistrictForecast {
	return forecastRows(head(d.districts, limit))
}

func forecastRows(districts []*DistrictSummary) []DistrictForecast {
	out := make([]DistrictForecast, 0, len(districts))
	for _, s := range districts {
		c := s.cohorts()
		_, confidence := forecast.Quality(c.Total())
		stress, _, _ := outlook(s.GovernanceMean, 1)
		out = append(out, DistrictForecast{
			District:          s.District,
			State:             s.State,
			CurrentPopulation: c.Total(),
			Forecast1Y:        forecast.DefaultRates.Population(c, 1).Total,
			Forecast5Y:        forecast.DefaultRates.Population(c, 5).Total,
			Forecast10Y:       forecast.DefaultRates.Population(c, 10).Total,
			BudgetStress1Y:    stress,
			Confidence:        confidence,
		})
	}
	return out
}

// PincodeForecast smooths the daily totals of pin over the given number of
// periods. Periods outside 1..120 fall back to 12.
func (d *Dataset) PincodeForecast(pin, periods int) (*PincodeForecast, error) {
	s, ok := d.series[pin]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPincodeNotFound, pin)
	}
	if periods <= 0 || periods > maxForecastPeriods {
		periods = defaultForecastPeriods
	}

	enr := make([]float64, len(s))
	dem := make([]float64, len(s))
	for i, r := range s {
		enr[i] = r.Enrolment()
		dem[i] = r.Demographic()
	}
	return &PincodeForecast{
		Pincode:      pin,
		Periods:      periods,
		History:      len(s),
		Enrolment:    forecast.Smooth(enr, periods),
		Demographic:  forecast.Smooth(dem, periods),
		ModelVersion: d.ModelVersion(),
	}, nil
}

// DailyTotals returns national totals per day in date order.
func (d *Dataset) DailyTotals() []DailyTotal {
	byDay := make(map[time.Time]*DailyTotal)
	for _, r := range d.rows {
		t, ok := byDay[r.Date]
		if !ok {
			t = &DailyTotal{Date: r.Date}
			byDay[r.Date] = t
		}
		t.Enrolment += r.Enrolment()
		t.Demographic += r.Demographic()
		t.Biometric += r.Biometric()
	}

	out := make([]DailyTotal, 0, len(byDay))
	for _, t := range byDay {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
