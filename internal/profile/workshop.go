package profile

// WorkshopSpecifics describes what a workshop module trains.
type WorkshopSpecifics struct {
	ModuleID     string   `json:"module_id"`
	Phase        string   `json:"phase"`
	Focus        string   `json:"focus"`
	KeySkills    []string `json:"key_skills"`
	Deliverables []string `json:"deliverables"`
}

var workshops = map[string]WorkshopSpecifics{
	"workshop-1": {
		ModuleID:     "workshop-1",
		Phase:        "Scope and security baseline",
		Focus:        "asset_identification",
		KeySkills:    []string{"business_analysis", "risk_assessment", "stakeholder_management"},
		Deliverables: []string{"asset_inventory", "criticality_matrix", "protection_strategy"},
	},
	"workshop-2": {
		ModuleID:     "workshop-2",
		Phase:        "Risk sources",
		Focus:        "threat_analysis",
		KeySkills:    []string{"threat_intelligence", "attack_analysis", "behavioral_analysis"},
		Deliverables: []string{"threat_profiles", "attack_scenarios", "detection_strategy"},
	},
	"workshop-3": {
		ModuleID:     "workshop-3",
		Phase:        "Strategic scenarios",
		Focus:        "strategic_scenarios",
		KeySkills:    []string{"scenario_planning", "impact_analysis", "strategic_thinking"},
		Deliverables: []string{"strategic_scenarios", "impact_assessment", "mitigation_priorities"},
	},
	"workshop-4": {
		ModuleID:     "workshop-4",
		Phase:        "Operational scenarios",
		Focus:        "operational_scenarios",
		KeySkills:    []string{"technical_analysis", "operational_planning", "incident_response"},
		Deliverables: []string{"operational_scenarios", "technical_controls", "response_procedures"},
	},
	"workshop-5": {
		ModuleID:     "workshop-5",
		Phase:        "Risk treatment",
		Focus:        "risk_treatment",
		KeySkills:    []string{"decision_making", "cost_analysis", "governance"},
		Deliverables: []string{"treatment_plan", "investment_strategy", "governance_framework"},
	},
}

// Workshop returns the specifics of a module. Unknown modules fall back to
// workshop 1 and report ok=false.
func Workshop(moduleID string) (WorkshopSpecifics, bool) {
	if w, ok := workshops[moduleID]; ok {
		return w, true
	}
	return workshops["workshop-1"], false
}
