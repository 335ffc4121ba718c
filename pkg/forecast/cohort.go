package forecast

import "math"

// Rates drive the yearly cohort transitions.
type Rates struct {
	ChildToStudent     float64 `json:"child_to_student" yaml:"child_to_student"`
	StudentToWorkforce float64 `json:"student_to_workforce" yaml:"student_to_workforce"`
	OutMigration       float64 `json:"out_migration_rate" yaml:"out_migration_rate"`
	Fertility          float64 `json:"fertility_rate" yaml:"fertility_rate"`
}

// DefaultRates are the reference transition rates.
var DefaultRates = Rates{
	ChildToStudent:     0.91,
	StudentToWorkforce: 0.83,
	OutMigration:       0.12,
	Fertility:          0.6,
}

const (
	studentRetention   = 0.6
	workforceRetention = 0.85
	annualBirthShare   = 0.1
	migrationExposure  = 0.3
)

// Cohorts is a population split into age bands.
type Cohorts struct {
	Age0to5   float64 `json:"population_0_5" yaml:"population_0_5"`
	Age5to17  float64 `json:"population_5_17" yaml:"population_5_17"`
	Age17Plus float64 `json:"population_17_plus" yaml:"population_17_plus"`
}

// Total is the sum of all bands.
func (c Cohorts) Total() float64 {
	return c.Age0to5 + c.Age5to17 + c.Age17Plus
}

// Projection is a whole-number population forecast.
type Projection struct {
	Age0to5   int `json:"predicted_0_5" yaml:"predicted_0_5"`
	Age5to17  int `json:"predicted_5_17" yaml:"predicted_5_17"`
	Age17Plus int `json:"predicted_17_plus" yaml:"predicted_17_plus"`
	Total     int `json:"total" yaml:"total"`
}

// PolicyNeeds are the service capacities implied by a projection.
type PolicyNeeds struct {
	SchoolSeats   int     `json:"school_seats_needed" yaml:"school_seats_needed"`
	HospitalBeds  float64 `json:"hospital_beds_delta" yaml:"hospital_beds_delta"`
	PoliceForce   int     `json:"police_force_needed" yaml:"police_force_needed"`
	SkillTraining int     `json:"skill_training_demand" yaml:"skill_training_demand"`
}

// Population advances c by the given number of years.
func (r Rates) Population(c Cohorts, years int) Projection {
	p05, p517, p17 := c.Age0to5, c.Age5to17, c.Age17Plus
	for range years {
		next517 := p05 * r.ChildToStudent
		next17 := p517 * r.StudentToWorkforce
		births := p17 * r.Fertility * annualBirthShare
		migration := p17 * r.OutMigration * migrationExposure

		p05 = births
		p517 = next517 + p517*studentRetention
		p17 = next17 + p17*workforceRetention - migration
	}
	return Projection{
		Age0to5:   int(p05),
		Age5to17:  int(p517),
		Age17Plus: int(p17),
		Total:     int(p05 + p517 + p17),
	}
}

// Needs derives service capacity from a projection: one seat per child,
// 1.3 beds and 2.2 officers per thousand people, training for 5% of adults.
func Needs(p Projection) PolicyNeeds {
	total := float64(p.Total)
	return PolicyNeeds{
		SchoolSeats:   p.Age0to5 + p.Age5to17,
		HospitalBeds:  math.Round(total*1.3/1000*10) / 10,
		PoliceForce:   int(total * 2.2 / 1000),
		SkillTraining: int(float64(p.Age17Plus) * 0.05),
	}
}

// Quality grades how much a forecast on a population of this size can be
// trusted and returns the matching confidence.
func Quality(total float64) (string, float64) {
	switch {
	case total < 100:
		return "critical", 0.3
	case total < 1000:
		return "low", 0.5
	case total < 10000:
		return "medium", 0.7
	default:
		return "high", 0.85
	}
}
