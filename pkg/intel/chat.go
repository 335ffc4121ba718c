package intel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mchmarny/pulse/pkg/risk"
	"gopkg.in/yaml.v3"
)

// Question intents.
const (
	IntentPopulation = "population"
	IntentForecast   = "forecast"
	IntentRisk       = "risk"
	IntentEducation  = "education"
	IntentBudget     = "budget"
	IntentComparison = "comparison"
	IntentActions    = "actions"
	IntentGeneral    = "general"

	SourceLLM    = "llm"
	SourceReport = "report"

	largeSchoolDemand = 1000
)

var ErrEmptyQuestion = errors.New("empty question")

// intents are matched in order; the first keyword hit wins.
var intents = []struct {
	name     string
	keywords []string
}{
	{IntentPopulation, []string{"population", "demographic"}},
	{IntentForecast, []string{"forecast", "projection", "predict"}},
	{IntentRisk, []string{"risk", "alert"}},
	{IntentEducation, []string{"school", "education"}},
	{IntentBudget, []string{"budget", "fund"}},
	{IntentComparison, []string{"compare", "peer"}},
	{IntentActions, []string{"action", "recommend"}},
}

// Completer returns a model reply for a system prompt and a user message.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ChatRequest is a question about one district.
type ChatRequest struct {
	Message  string `json:"message" yaml:"message"`
	Role     string `json:"role" yaml:"role"`
	District string `json:"district" yaml:"district"`
}

// ChatResponse carries the answer and what it was derived from.
type ChatResponse struct {
	Success      bool   `json:"success" yaml:"success"`
	Answer       string `json:"answer" yaml:"answer"`
	Intent       string `json:"intent" yaml:"intent"`
	Source       string `json:"source" yaml:"source"`
	Role         string `json:"role" yaml:"role"`
	District     string `json:"district" yaml:"district"`
	ModelVersion string `json:"model_version" yaml:"model_version"`
}

// Assistant answers district questions from the district report, through
// a language model when one is configured.
type Assistant struct {
	ds  *Dataset
	llm Completer
}

// NewAssistant creates an assistant over ds. A nil completer answers with
// the matching report section.
func NewAssistant(ds *Dataset, c Completer) *Assistant {
	return &Assistant{ds: ds, llm: c}
}

// DetectIntent classifies a question by keyword.
func DetectIntent(question string) string {
	q := strings.ToLower(question)
	for _, in := range intents {
		for _, k := range in.keywords {
			if strings.Contains(q, k) {
				return in.name
			}
		}
	}
	return IntentGeneral
}

// Answer responds to req. An empty district selects the first known one.
func (a *Assistant) Answer(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyQuestion
	}
	if strings.TrimSpace(req.District) == "" {
		if len(a.ds.districts) == 0 {
			return nil, fmt.Errorf("%w: no districts loaded", ErrDistrictNotFound)
		}
		req.District = a.ds.districts[0].District
	}

	report, err := a.ds.DistrictReport(req.District, req.Role)
	if err != nil {
		return nil, err
	}

	intent := DetectIntent(req.Message)
	out := &ChatResponse{
		Success:      true,
		Intent:       intent,
		Role:         report.Role,
		District:     report.District,
		ModelVersion: a.ds.ModelVersion(),
	}

	if a.llm != nil {
		answer, err := a.complete(ctx, report, req.Message)
		if err == nil {
			out.Answer, out.Source = answer, SourceLLM
			return out, nil
		}
		slog.Warn("model completion failed, answering from report", "district", report.District, "error", err)
	}

	b, err := yaml.Marshal(a.section(report, intent))
	if err != nil {
		return nil, fmt.Errorf("failed to encode answer: %w", err)
	}
	out.Answer, out.Source = string(b), SourceReport
	return out, nil
}

func (a *Assistant) complete(ctx context.Context, r *DistrictReport, question string) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	role := FindRole(r.Role)
	system := fmt.Sprintf("You advise the %s of %s district, %s. "+
		"Answer only from the district report provided. Sector scores are 0-100 risk indices, "+
		"not rupee amounts. Focus on: %s.",
		role.Label, r.District, r.State, strings.Join(role.Focus, ", "))
	user := fmt.Sprintf("District report:\n%s\n\nQuestion: %s", b, question)
	return a.llm.Complete(ctx, system, user)
}

type riskSection struct {
	SectorRisks    map[risk.Sector]float64 `yaml:"sector_risks"`
	HighestSector  risk.Sector             `yaml:"highest_risk_sector"`
	HighestScore   float64                 `yaml:"highest_risk_score"`
	GovernanceRisk float64                 `yaml:"governance_risk"`
	Actions        []string                `yaml:"recommended_actions"`
}

type educationSection struct {
	SchoolAge            float64 `yaml:"population_5_17"`
	DropoutRisk          float64 `yaml:"dropout_risk_index"`
	SchoolSeats5Y        int     `yaml:"school_seats_needed_5y"`
	InfrastructureStress string  `yaml:"infrastructure_stress"`
}

type budgetSection struct {
	Stress1Y      string   `yaml:"budget_stress_1y"`
	Stress5Y      string   `yaml:"budget_stress_5y"`
	Priority1Y    []string `yaml:"priority_sectors_1y"`
	Priority5Y    []string `yaml:"priority_sectors_5y"`
	SchoolSeats   int      `yaml:"school_seats_needed_5y"`
	HospitalBeds  float64  `yaml:"hospital_beds_delta_5y"`
	SkillTraining int      `yaml:"skill_training_demand_5y"`
	Confidence    float64  `yaml:"confidence"`
}

type comparisonSection struct {
	District       string  `yaml:"district"`
	State          string  `yaml:"state"`
	GovernanceRisk float64 `yaml:"governance_risk"`
	StateAverage   float64 `yaml:"state_average"`
	Position       string  `yaml:"position"`
	EducationRisk  float64 `yaml:"education_risk"`
	LaborRisk      float64 `yaml:"labor_risk"`
}

type actionsSection struct {
	Immediate  []string `yaml:"immediate"`
	ShortTerm  []string `yaml:"short_term"`
	MediumTerm []string `yaml:"medium_term"`
	FocusAreas []string `yaml:"focus_areas"`
	Role       string   `yaml:"role"`
}

// section picks the part of the report that answers an intent.
func (a *Assistant) section(r *DistrictReport, intent string) any {
	f1 := r.Forecasts[HorizonKey(1)]
	f5 := r.Forecasts[HorizonKey(5)]

	switch intent {
	case IntentPopulation:
		return r.CurrentState
	case IntentRisk:
		s := riskSection{
			SectorRisks:    r.SectorRisks,
			GovernanceRisk: r.CurrentState.GovernanceRisk,
			Actions:        head(r.RecommendedActions, 3),
		}
		for _, sec := range risk.Sectors {
			if v := r.SectorRisks[sec.Sector]; s.HighestSector == "" || v > s.HighestScore {
				s.HighestSector, s.HighestScore = sec.Sector, v
			}
		}
		return s
	case IntentEducation:
		stress := "MODERATE"
		if f5.PolicyNeeds.SchoolSeats > largeSchoolDemand {
			stress = "HIGH"
		}
		return educationSection{
			SchoolAge:            r.CurrentState.Age5to17,
			DropoutRisk:          r.SectorRisks[risk.SectorEducation],
			SchoolSeats5Y:        f5.PolicyNeeds.SchoolSeats,
			InfrastructureStress: stress,
		}
	case IntentBudget:
		return budgetSection{
			Stress1Y:      f1.BudgetStress,
			Stress5Y:      f5.BudgetStress,
			Priority1Y:    head(f1.PrioritySectors, 2),
			Priority5Y:    head(f5.PrioritySectors, 2),
			SchoolSeats:   f5.PolicyNeeds.SchoolSeats,
			HospitalBeds:  f5.PolicyNeeds.HospitalBeds,
			SkillTraining: f5.PolicyNeeds.SkillTraining,
			Confidence:    f5.Confidence,
		}
	case IntentComparison:
		s := comparisonSection{
			District:       r.District,
			State:          r.State,
			GovernanceRisk: r.CurrentState.GovernanceRisk,
			EducationRisk:  r.SectorRisks[risk.SectorEducation],
			LaborRisk:      r.SectorRisks[risk.SectorLabor],
			Position:       "AT",
		}
		for _, st := range a.ds.states {
			if st.State == r.State {
				s.StateAverage = round1(st.GovernanceMean)
			}
		}
		switch {
		case s.GovernanceRisk > s.StateAverage:
			s.Position = "ABOVE"
		case s.GovernanceRisk < s.StateAverage:
			s.Position = "BELOW"
		}
		return s
	case IntentActions:
		return actionsSection{
			Immediate:  head(r.RecommendedActions, 2),
			ShortTerm:  head(f1.PrioritySectors, 1),
			MediumTerm: head(f5.PrioritySectors, 1),
			FocusAreas: head(f5.PrioritySectors, 3),
			Role:       FindRole(r.Role).Label,
		}
	default:
		return r.Forecasts
	}
}
