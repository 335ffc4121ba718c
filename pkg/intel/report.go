package intel

import (
	"fmt"
	"strings"
	"time"

	"github.com/mchmarny/pulse/pkg/forecast"
	"github.com/mchmarny/pulse/pkg/risk"
)

const (
	reportIDLayout = "20060102150405"
	maxActions     = 5
	roleActions    = 2
)

// MLAnalysis is the model output attached to a pincode report.
type MLAnalysis struct {
	IsAnomaly    bool    `json:"is_anomaly" yaml:"is_anomaly"`
	AnomalyScore float64 `json:"anomaly_score" yaml:"anomaly_score"`
	ClusterID    int     `json:"cluster_id" yaml:"cluster_id"`
}

// PincodeReport is the structured governance alert for one pincode.
type PincodeReport struct {
	ID                 string                  `json:"report_id" yaml:"report_id"`
	Pincode            int                     `json:"pincode" yaml:"pincode"`
	District           string                  `json:"district" yaml:"district"`
	State              string                  `json:"state" yaml:"state"`
	ReportDate         time.Time               `json:"report_date" yaml:"report_date"`
	GovernanceScore    float64                 `json:"governance_risk_score" yaml:"governance_risk_score"`
	RiskLevel          string                  `json:"risk_level" yaml:"risk_level"`
	PrimaryConcern     string                  `json:"primary_concern" yaml:"primary_concern"`
	RecommendedActions []string                `json:"recommended_actions" yaml:"recommended_actions"`
	SectorBreakdown    map[risk.Sector]float64 `json:"sector_breakdown" yaml:"sector_breakdown"`
	MLAnalysis         MLAnalysis              `json:"ml_analysis" yaml:"ml_analysis"`
	ModelVersion       string                  `json:"model_version" yaml:"model_version"`
}

// CurrentState describes a district as loaded.
type CurrentState struct {
	forecast.Cohorts `yaml:",inline"`
	TotalPopulation  float64 `json:"total_population" yaml:"total_population"`
	PincodeCount     int     `json:"pincode_count" yaml:"pincode_count"`
	GovernanceRisk   float64 `json:"governance_risk" yaml:"governance_risk"`
	DataQuality      string  `json:"data_quality" yaml:"data_quality"`
	Confidence       float64 `json:"confidence" yaml:"confidence"`
}

// HorizonForecast is the projection and its policy implications for one
// horizon.
type HorizonForecast struct {
	Population      int                  `json:"population" yaml:"population"`
	Projection      forecast.Projection  `json:"projection" yaml:"projection"`
	PolicyNeeds     forecast.PolicyNeeds `json:"policy_needs" yaml:"policy_needs"`
	BudgetStress    string               `json:"budget_stress" yaml:"budget_stress"`
	PrioritySectors []string             `json:"priority_sectors" yaml:"priority_sectors"`
	Confidence      float64              `json:"confidence" yaml:"confidence"`
}

// DistrictReport is the forecast-driven intelligence report for a district.
type DistrictReport struct {
	District           string                     `json:"district" yaml:"district"`
	State              string                     `json:"state" yaml:"state"`
	Role               string                     `json:"role" yaml:"role"`
	CurrentState       CurrentState               `json:"current_state" yaml:"current_state"`
	Forecasts          map[string]HorizonForecast `json:"forecasts" yaml:"forecasts"`
	SectorRisks        map[risk.Sector]float64    `json:"sector_risks" yaml:"sector_risks"`
	RecommendedActions []string                   `json:"recommended_actions" yaml:"recommended_actions"`
	ModelVersion       string                     `json:"model_version" yaml:"model_version"`
	GeneratedAt        time.Time                  `json:"generated_at" yaml:"generated_at"`
}

// PincodeReport builds the governance alert for pin.
func (d *Dataset) PincodeReport(pin int) (*PincodeReport, error) {
	p, ok := d.byPincode[pin]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPincodeNotFound, pin)
	}

	now := d.now()
	primary, _ := p.SectorScores.Primary()
	info := primary.Info()

	breakdown := make(map[risk.Sector]float64, len(risk.Sectors))
	for _, s := range risk.Sectors {
		breakdown[s.Sector] = round2(p.SectorScores.Get(s.Sector))
	}

	return &PincodeReport{
		ID:                 fmt.Sprintf("GOV-%d-%s", pin, now.Format(reportIDLayout)),
		Pincode:            pin,
		District:           p.District,
		State:              p.State,
		ReportDate:         now,
		GovernanceScore:    round2(p.Governance),
		RiskLevel:          d.cfg.RiskLevel(p.Governance),
		PrimaryConcern:     info.Name,
		RecommendedActions: info.Actions,
		SectorBreakdown:    breakdown,
		MLAnalysis: MLAnalysis{
			IsAnomaly:    p.Anomaly,
			AnomalyScore: round3(p.AnomalyScore),
			ClusterID:    p.ClusterID,
		},
		ModelVersion: d.ModelVersion(),
	}, nil
}

// FindDistrict returns the first district, in (state, district) order, whose
// name contains name case-insensitively.
func (d *Dataset) FindDistrict(name string) (*DistrictSummary, error) {
	q := strings.ToLower(strings.TrimSpace(name))
	if q == "" {
		return nil, fmt.Errorf("%w: empty name", ErrDistrictNotFound)
	}
	for _, s := range d.districts {
		if strings.Contains(strings.ToLower(s.District), q) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDistrictNotFound, name)
}

// SuggestDistricts returns up to n district names for not-found responses.
func (d *Dataset) SuggestDistricts(n int) []string {
	out := make([]string, 0, max(n, 0))
	for _, s := range head(d.districts, n) {
		out = append(out, s.District)
	}
	return out
}

// DistrictReport projects the district cohorts over the configured horizons
// and attaches the role's recommended actions.
func (d *Dataset) DistrictReport(name, role string) (*DistrictReport, error) {
	s, err := d.FindDistrict(name)
	if err != nil {
		return nil, err
	}
	r := FindRole(role)

	cohorts := s.cohorts()
	quality, confidence := forecast.Quality(cohorts.Total())
	score := s.GovernanceMean

	out := &DistrictReport{
		District: s.District,
		State:    s.State,
		Role:     r.ID,
		CurrentState: CurrentState{
			Cohorts:         cohorts,
			TotalPopulation: cohorts.Total(),
			PincodeCount:    s.Pincodes,
			GovernanceRisk:  round1(score),
			DataQuality:     quality,
			Confidence:      confidence,
		},
		Forecasts:          make(map[string]HorizonForecast),
		SectorRisks:        make(map[risk.Sector]float64, len(risk.Sectors)),
		RecommendedActions: recommendedActions(score, r),
		ModelVersion:       d.ModelVersion(),
		GeneratedAt:        d.now(),
	}
	for _, sec := range risk.Sectors {
		out.SectorRisks[sec.Sector] = round1(s.SectorScores.Get(sec.Sector))
	}

	for _, years := range d.horizons() {
		p := forecast.DefaultRates.Population(cohorts, years)
		stress, sectors, factor := outlook(score, years)
		out.Forecasts[HorizonKey(years)] = HorizonForecast{
			Population:      p.Total,
			Projection:      p,
			PolicyNeeds:     forecast.Needs(p),
			BudgetStress:    stress,
			PrioritySectors: sectors,
			Confidence:      round2(confidence * factor),
		}
	}
	return out, nil
}

func (s *DistrictSummary) cohorts() forecast.Cohorts {
	return forecast.Cohorts{
		Age0to5:   s.Age0to5,
		Age5to17:  s.Age5to17,
		Age17Plus: s.Age18Plus,
	}
}

// HorizonKey names a forecast horizon, e.g. "5Y".
func HorizonKey(years int) string {
	return fmt.Sprintf("%dY", years)
}

func (d *Dataset) horizons() []int {
	if len(d.cfg.Forecast.Horizons) == 0 {
		return []int{1, 5, 10}
	}
	return d.cfg.Forecast.Horizons
}

// outlook returns budget stress, priority sectors and the confidence factor
// for a horizon. Short horizons follow the current risk; longer ones shift
// to structural needs.
func outlook(score float64, years int) (string, []string, float64) {
	switch {
	case years <= 1:
		switch {
		case score > 70:
			return "CRITICAL", []string{"Emergency Response", "Law & Order"}, 1
		case score > 50:
			return "HIGH", []string{"Primary Education", "Healthcare"}, 1
		case score > 30:
			return "MEDIUM", []string{"Infrastructure", "Skill Development"}, 1
		default:
			return "LOW", []string{"General Maintenance"}, 1
		}
	case years <= 5:
		stress := "MEDIUM"
		if score > 40 {
			stress = "HIGH"
		}
		return stress, []string{"Primary Education", "Healthcare", "Skill Development"}, 0.85
	default:
		return "MEDIUM", []string{"Infrastructure", "Police & Law Enforcement"}, 0.7
	}
}

func recommendedActions(score float64, r Role) []string {
	var out []string
	switch {
	case score > 70:
		out = append(out, "URGENT: Convene emergency coordination meeting", "Deploy field verification teams immediately")
	case score > 50:
		out = append(out, "Schedule weekly review meetings", "Initiate ground-level data verification")
	default:
		out = append(out, "Continue regular monitoring", "Focus on preventive measures")
	}
	out = append(out, head(r.Actions, roleActions)...)
	return head(out, maxActions)
}
