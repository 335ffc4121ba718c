package risk

import "strings"

// Sector identifies one of the five sector risk indices.
type Sector string

const (
	SectorEducation Sector = "education"
	SectorHunger    Sector = "hunger"
	SectorRural     Sector = "rural"
	SectorElectoral Sector = "electoral"
	SectorLabor     Sector = "labor"
)

// SectorInfo describes how a sector is reported and acted upon.
type SectorInfo struct {
	Sector         Sector   `json:"sector" yaml:"sector"`
	Name           string   `json:"name" yaml:"name"`
	Index          string   `json:"index" yaml:"index"`
	Ministry       string   `json:"ministry" yaml:"ministry"`
	MinistryAction string   `json:"action_required" yaml:"action_required"`
	Actions        []string `json:"actions" yaml:"actions"`
}

// Sectors lists sector metadata in reporting order. The order also breaks
// ties when picking a primary sector.
var Sectors = []SectorInfo{
	{
		Sector:         SectorEducation,
		Name:           "Education",
		Index:          "school_dropout_risk_index",
		Ministry:       "Education",
		MinistryAction: "School capacity expansion",
		Actions: []string{
			"Deploy Anganwadi inspection team",
			"Cross-verify school enrollment records",
			"Initiate door-to-door child survey",
		},
	},
	{
		Sector:         SectorHunger,
		Name:           "Hunger",
		Index:          "migrant_hunger_score",
		Ministry:       "Consumer Affairs (PDS)",
		MinistryAction: "Ration allocation review",
		Actions: []string{
			"Increase PDS shop grain allocation",
			"Deploy mobile ration units",
			"Activate emergency food distribution",
		},
	},
	{
		Sector:         SectorRural,
		Name:           "Rural",
		Index:          "village_hollow_out_rate",
		Ministry:       "Rural Development",
		MinistryAction: "MGNREGA enhancement",
		Actions: []string{
			"Review MGNREGA fund allocation",
			"Assess elderly care infrastructure",
			"Evaluate local employment opportunities",
		},
	},
	{
		Sector:         SectorElectoral,
		Name:           "Electoral",
		Index:          "electoral_discrepancy_index",
		Ministry:       "Election Commission",
		MinistryAction: "Voter verification drive",
		Actions: []string{
			"Alert Electoral Registration Officer (ERO)",
			"Cross-verify with Voter ID database",
			"Initiate address verification drive",
		},
	},
	{
		Sector:         SectorLabor,
		Name:           "Labor",
		Index:          "skill_gap_migration_flow",
		Ministry:       "Labour & Employment",
		MinistryAction: "Skill training expansion",
		Actions: []string{
			"Coordinate with e-Shram registration centers",
			"Deploy mobile labor registration units",
			"Initiate skill development programs",
		},
	},
}

var sectorAliases = map[string]Sector{
	"education": SectorEducation,
	"hunger":    SectorHunger,
	"ration":    SectorHunger,
	"rural":     SectorRural,
	"electoral": SectorElectoral,
	"labor":     SectorLabor,
	"labour":    SectorLabor,
}

// ParseSector resolves a sector name or alias (case-insensitive).
func ParseSector(name string) (Sector, bool) {
	s, ok := sectorAliases[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// Info returns the metadata for s.
func (s Sector) Info() SectorInfo {
	for _, i := range Sectors {
		if i.Sector == s {
			return i
		}
	}
	return SectorInfo{Sector: s, Name: string(s)}
}

// Weights are the composite weights per sector.
type Weights map[Sector]float64

// DefaultWeights favors electoral discrepancies and discounts rural hollowing.
func DefaultWeights() Weights {
	return Weights{
		SectorEducation: 0.20,
		SectorHunger:    0.20,
		SectorRural:     0.15,
		SectorElectoral: 0.25,
		SectorLabor:     0.20,
	}
}

// SectorScores holds the five sector indices, each within [0,100].
type SectorScores struct {
	Education float64 `json:"school_dropout_risk_index" yaml:"school_dropout_risk_index"`
	Hunger    float64 `json:"migrant_hunger_score" yaml:"migrant_hunger_score"`
	Rural     float64 `json:"village_hollow_out_rate" yaml:"village_hollow_out_rate"`
	Electoral float64 `json:"electoral_discrepancy_index" yaml:"electoral_discrepancy_index"`
	Labor     float64 `json:"skill_gap_migration_flow" yaml:"skill_gap_migration_flow"`
}

// Get returns the score of one sector.
func (s SectorScores) Get(sec Sector) float64 {
	switch sec {
	case SectorEducation:
		return s.Education
	case SectorHunger:
		return s.Hunger
	case SectorRural:
		return s.Rural
	case SectorElectoral:
		return s.Electoral
	case SectorLabor:
		return s.Labor
	default:
		return 0
	}
}

// Values returns the scores in Sectors order.
func (s SectorScores) Values() []float64 {
	return []float64{s.Education, s.Hunger, s.Rural, s.Electoral, s.Labor}
}

// Primary returns the highest scoring sector; earlier sectors win ties.
func (s SectorScores) Primary() (Sector, float64) {
	best, score := Sectors[0].Sector, s.Get(Sectors[0].Sector)
	for _, i := range Sectors[1:] {
		if v := s.Get(i.Sector); v > score {
			best, score = i.Sector, v
		}
	}
	return best, score
}

// Composite is the weighted mean of the sector scores rounded to 2 decimals.
// Weights are normalized so the result stays within [0,100].
func (s SectorScores) Composite(w Weights) float64 {
	var sum, total float64
	for _, i := range Sectors {
		wt := w[i.Sector]
		if wt <= 0 {
			continue
		}
		sum += wt * s.Get(i.Sector)
		total += wt
	}
	if total == 0 {
		return 0
	}
	return round2(clip(sum/total, 0, MaxScore))
}
