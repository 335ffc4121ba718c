package intel

import "strings"

// Role is the audience a district report is tailored for.
type Role struct {
	ID        string   `json:"id" yaml:"id"`
	Label     string   `json:"label" yaml:"label"`
	Icon      string   `json:"icon" yaml:"icon"`
	Focus     []string `json:"focus" yaml:"focus"`
	Metrics   []string `json:"metrics" yaml:"metrics"`
	Actions   []string `json:"actions" yaml:"actions"`
	Questions []string `json:"questions" yaml:"questions"`
}

// DefaultRole is used for empty or unknown role ids.
const DefaultRole = "district_admin"

// Roles lists the supported audiences in display order.
var Roles = []Role{
	{
		ID:      "police",
		Label:   "Police Administration",
		Icon:    "👮",
		Focus:   []string{"youth_density", "migration_pressure", "law_order_stress"},
		Metrics: []string{"skill_gap_migration_flow", "governance_risk_score"},
		Actions: []string{"patrol allocation", "personnel deployment", "youth engagement programs"},
		Questions: []string{
			"What is the youth population projection?",
			"How does migration affect law enforcement needs?",
			"What is the overall governance risk?",
		},
	},
	{
		ID:      "district_admin",
		Label:   "District Administration",
		Icon:    "🏛️",
		Focus:   []string{"overall_governance", "inter_department_coordination", "infrastructure"},
		Metrics: []string{"governance_risk_score", "all_sectors"},
		Actions: []string{"coordination meetings", "infrastructure planning", "emergency response"},
		Questions: []string{
			"Give me the overall district projection",
			"What are the priority action items?",
			"Compare this district with peers",
		},
	},
	{
		ID:      "state_govt",
		Label:   "State Government",
		Icon:    "🏢",
		Focus:   []string{"state_trends", "district_comparison", "policy_implications"},
		Metrics: []string{"all_metrics"},
		Actions: []string{"policy review", "resource allocation", "district support"},
		Questions: []string{
			"What is the state-wide governance trend?",
			"Which districts need intervention?",
			"What policy changes are recommended?",
		},
	},
	{
		ID:      "budget",
		Label:   "Budget & Finance",
		Icon:    "💰",
		Focus:   []string{"budget_allocation", "expenditure_efficiency", "priority_sectors"},
		Metrics: []string{"governance_risk_score", "electoral_discrepancy_index"},
		Actions: []string{"budget reallocation", "expenditure audit", "priority funding"},
		Questions: []string{
			"What is the overall budget stress level?",
			"Which sectors need priority funding?",
			"What is the 5-year resource requirement?",
		},
	},
	{
		ID:      "education",
		Label:   "Education Department",
		Icon:    "🎓",
		Focus:   []string{"school_capacity", "dropout_risk", "enrollment_trends"},
		Metrics: []string{"school_dropout_risk_index", "age_5_17"},
		Actions: []string{"school construction", "teacher recruitment", "scholarship programs"},
		Questions: []string{
			"How many school seats are needed in 5 years?",
			"What is the dropout risk in this district?",
			"What is the education sector budget stress?",
		},
	},
	{
		ID:      "health",
		Label:   "Health Department",
		Icon:    "🏥",
		Focus:   []string{"hospital_capacity", "disease_burden", "maternal_health"},
		Metrics: []string{"governance_risk_score", "age_0_5"},
		Actions: []string{"hospital expansion", "doctor recruitment", "mobile clinics"},
		Questions: []string{
			"What is the hospital bed demand projection?",
			"How many additional doctors are needed?",
			"What is the maternity load trend?",
		},
	},
	{
		ID:      "skill",
		Label:   "Skill & Employment",
		Icon:    "🛠️",
		Focus:   []string{"skill_gaps", "employment_trends", "migration_patterns"},
		Metrics: []string{"skill_gap_migration_flow", "migrant_hunger_score"},
		Actions: []string{"skill centers", "placement programs", "migration support"},
		Questions: []string{
			"What is the skill training demand?",
			"How does migration affect employment?",
			"What skills are most needed?",
		},
	},
}

// FindRole resolves a role id, falling back to the district administration.
func FindRole(id string) Role {
	id = strings.ToLower(strings.TrimSpace(id))
	var fallback Role
	for _, r := range Roles {
		if r.ID == id {
			return r
		}
		if r.ID == DefaultRole {
			fallback = r
		}
	}
	return fallback
}
