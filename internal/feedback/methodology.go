package feedback

// Resource is a learning reference attached to a recommendation.
type Resource struct {
	Kind  string `json:"kind"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// guidance is the static methodological material of one workshop.
type guidance struct {
	phase         string
	notes         []string
	bestPractices []string
	pitfalls      []string
	resources     []Resource
}

var ebiosGuide = Resource{
	Kind:  "document",
	Title: "ANSSI EBIOS Risk Manager guide",
	URL:   "https://cyber.gouv.fr/publications/la-methode-ebios-risk-manager-le-guide",
}

var workshopGuidance = map[string]guidance{
	"workshop-1": {
		phase: "Workshop 1: scope and security baseline",
		notes: []string{
			"Business values derive from the missions of the organization, not from its IT systems.",
			"Every business value needs at least one supporting asset and an owner.",
		},
		bestPractices: []string{
			"Rate feared events on the business impact scale agreed with management.",
			"Record the security baseline with its gaps before moving on to risk sources.",
		},
		pitfalls: []string{
			"Listing technical components as business values.",
			"Skipping the dependencies between supporting assets.",
		},
		resources: []Resource{
			ebiosGuide,
			{Kind: "document", Title: "ANSSI EBIOS RM workshop 1 sheets"},
		},
	},
	"workshop-2": {
		phase: "Workshop 2: risk sources",
		notes: []string{
			"A risk source is characterized by motivation, resources and activity.",
			"Pair each risk source with the target objective it pursues.",
		},
		bestPractices: []string{
			"Ground the profiles in threat intelligence reports for the sector.",
			"Keep only the most relevant pairs for the strategic scenarios.",
		},
		pitfalls: []string{
			"Describing generic attackers without motivation.",
			"Keeping every pair instead of prioritizing.",
		},
		resources: []Resource{
			ebiosGuide,
			{Kind: "tool", Title: "MITRE ATT&CK", URL: "https://attack.mitre.org"},
		},
	},
	"workshop-3": {
		phase: "Workshop 3: strategic scenarios",
		notes: []string{
			"Map the ecosystem with dependency, penetration, maturity and trust ratings.",
			"Strategic scenarios go through the ecosystem toward business values.",
		},
		bestPractices: []string{
			"Identify the critical stakeholders before drawing attack paths.",
			"Define ecosystem security measures for each critical stakeholder.",
		},
		pitfalls: []string{
			"Ignoring the supply chain.",
			"Rating severity without reference to the feared events of workshop 1.",
		},
		resources: []Resource{ebiosGuide},
	},
	"workshop-4": {
		phase: "Workshop 4: operational scenarios",
		notes: []string{
			"Operational scenarios detail the attack modes on supporting assets.",
			"Rate likelihood on the V1 to V4 scale.",
		},
		bestPractices: []string{
			"Follow the kill chain from reconnaissance to exploitation.",
			"Link every operational scenario to a strategic scenario.",
		},
		pitfalls: []string{
			"Describing techniques with no link to the supporting assets.",
			"Rating likelihood without justification.",
		},
		resources: []Resource{
			ebiosGuide,
			{Kind: "tool", Title: "MITRE ATT&CK", URL: "https://attack.mitre.org"},
		},
	},
	"workshop-5": {
		phase: "Workshop 5: risk treatment",
		notes: []string{
			"The treatment strategy states, for each risk, whether it is reduced, transferred, avoided or accepted.",
			"Residual risks must be formally accepted by management.",
		},
		bestPractices: []string{
			"Budget every security measure and assign an owner.",
			"Plan a continuous improvement cycle with review dates.",
		},
		pitfalls: []string{
			"Leaving residual risks implicit.",
			"Proposing measures without cost or schedule.",
		},
		resources: []Resource{
			ebiosGuide,
			{Kind: "training", Title: "Risk governance for decision makers"},
		},
	},
}

func guidanceFor(moduleID string) guidance {
	if g, ok := workshopGuidance[moduleID]; ok {
		return g
	}
	return workshopGuidance["workshop-1"]
}
