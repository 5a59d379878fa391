package feedback

import (
	"slices"
	"strings"

	"github.com/abhisek/riskdrill/internal/assessment"
)

// Style is a persona's communication style.
type Style string

const (
	StyleSupportive Style = "supportive"
	StyleAnalytical Style = "analytical"
	StyleInspiring  Style = "inspiring"
	StyleDirect     Style = "direct"
)

// Persona is a named feedback voice.
type Persona struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Title          string   `json:"title"`
	Expertise      []string `json:"expertise"`
	Experience     int      `json:"experience_years"`
	Specialization string   `json:"specialization"`
	Style          Style    `json:"style"`
}

// Persona identifiers.
const (
	PersonaSophie  = "dr_sophie_cadrage"
	PersonaMarc    = "marc_threat_intel"
	PersonaLaurent = "prof_laurent_excellence"
	PersonaClaire  = "claire_direct"
)

var personas = map[string]Persona{
	PersonaSophie: {
		ID:             PersonaSophie,
		Name:           "Dr. Sophie Cadrage",
		Title:          "EBIOS RM expert, business values",
		Expertise:      []string{"asset_identification", "business_analysis", "stakeholder_management"},
		Experience:     15,
		Specialization: "Business value analysis and organizational mapping",
		Style:          StyleSupportive,
	},
	PersonaMarc: {
		ID:             PersonaMarc,
		Name:           "Marc Dubois",
		Title:          "Threat intelligence expert",
		Expertise:      []string{"threat_analysis", "cyber_intelligence", "attack_modeling"},
		Experience:     12,
		Specialization: "Threat analysis and cyber intelligence",
		Style:          StyleAnalytical,
	},
	PersonaLaurent: {
		ID:             PersonaLaurent,
		Name:           "Prof. Laurent Moreau",
		Title:          "Senior EBIOS RM expert",
		Expertise:      []string{"methodology", "governance", "strategic_analysis"},
		Experience:     20,
		Specialization: "EBIOS RM methodology and risk governance",
		Style:          StyleInspiring,
	},
	PersonaClaire: {
		ID:             PersonaClaire,
		Name:           "Claire Martin",
		Title:          "Operational risk coach",
		Expertise:      []string{"strategic_scenarios", "operational_scenarios", "risk_treatment"},
		Experience:     14,
		Specialization: "Operational scenarios and treatment planning",
		Style:          StyleDirect,
	},
}

// PersonaByID returns a persona descriptor.
func PersonaByID(id string) (Persona, bool) {
	p, ok := personas[id]
	return p, ok
}

// Personas returns every persona, sorted by id.
func Personas() []Persona {
	out := make([]Persona, 0, len(personas))
	for _, p := range personas {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Persona) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Selection is the input of persona selection.
type Selection struct {
	ModuleID   string
	Level      assessment.Difficulty
	Percentage int
}

// PersonaRule maps a selection predicate to a persona. Rules are evaluated
// in order and the first match wins.
type PersonaRule struct {
	Name      string
	Match     func(Selection) bool
	PersonaID string
}

var operationalWorkshops = []string{"workshop-3", "workshop-4", "workshop-5"}

// DefaultPersonaRules is the standard selection table.
var DefaultPersonaRules = []PersonaRule{
	{
		Name:      "excellence",
		Match:     func(s Selection) bool { return s.Percentage >= 80 },
		PersonaID: PersonaLaurent,
	},
	{
		Name:      "threat_struggle",
		Match:     func(s Selection) bool { return s.ModuleID == "workshop-2" && s.Percentage < 60 },
		PersonaID: PersonaMarc,
	},
	{
		Name:      "novice_struggle",
		Match:     func(s Selection) bool { return s.Level == assessment.Intermediate && s.Percentage < 60 },
		PersonaID: PersonaSophie,
	},
	{
		Name:      "scoping",
		Match:     func(s Selection) bool { return s.ModuleID == "workshop-1" },
		PersonaID: PersonaSophie,
	},
	{
		Name: "operational_coaching",
		Match: func(s Selection) bool {
			return slices.Contains(operationalWorkshops, s.ModuleID) && s.Level >= assessment.Advanced
		},
		PersonaID: PersonaClaire,
	},
}

// DefaultPersonaID is used when no rule matches.
const DefaultPersonaID = PersonaSophie

// SelectPersona evaluates rules in order. It is a pure function of its
// inputs.
func SelectPersona(rules []PersonaRule, s Selection) Persona {
	for _, r := range rules {
		if r.Match(s) {
			if p, ok := personas[r.PersonaID]; ok {
				return p
			}
		}
	}
	return personas[DefaultPersonaID]
}
