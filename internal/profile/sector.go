package profile

import (
	"context"
	"strings"
)

// SectorContext holds regulatory and threat facts merged into generated items.
type SectorContext struct {
	Sector         string   `json:"sector"`
	Regulations    []string `json:"regulations,omitempty"`
	Threats        []string `json:"threats,omitempty"`
	Stakeholders   []string `json:"stakeholders,omitempty"`
	Constraints    []string `json:"constraints,omitempty"`
	CriticalAssets []string `json:"critical_assets,omitempty"`
	RTO            string   `json:"rto,omitempty"`
	RPO            string   `json:"rpo,omitempty"`
}

// Empty reports whether no sector facts are known.
func (s SectorContext) Empty() bool {
	return len(s.Regulations) == 0 && len(s.Threats) == 0 && len(s.Constraints) == 0
}

// SectorSource resolves the context of a business sector.
type SectorSource interface {
	FetchSectorContext(ctx context.Context, sector string) (SectorContext, error)
}

var sectorAliases = map[string]string{
	"santé":      "healthcare",
	"sante":      "healthcare",
	"health":     "healthcare",
	"healthcare": "healthcare",
	"finance":    "finance",
	"banking":    "finance",
}

// CanonicalSector normalizes a sector name. Unknown sectors are lowercased.
func CanonicalSector(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := sectorAliases[s]; ok {
		return c
	}
	return s
}

var builtinSectors = map[string]SectorContext{
	"healthcare": {
		Sector:         "healthcare",
		Regulations:    []string{"HDS", "GDPR", "NIS2", "HAS certification"},
		Threats:        []string{"Hospital ransomware", "Patient data theft", "Medical device sabotage"},
		Stakeholders:   []string{"Patients", "Care staff", "Health authorities", "Suppliers"},
		Constraints:    []string{"24/7 continuity", "Patient safety", "Medical confidentiality"},
		CriticalAssets: []string{"HIS", "PACS", "Laboratories", "Emergency department"},
		RTO:            "< 4 hours",
		RPO:            "< 1 hour",
	},
	"finance": {
		Sector:         "finance",
		Regulations:    []string{"PCI DSS", "GDPR", "DORA", "MiFID II"},
		Threats:        []string{"Financial fraud", "Banking data theft", "Market manipulation"},
		Stakeholders:   []string{"Customers", "Regulators", "Partners", "Investors"},
		Constraints:    []string{"Transaction integrity", "Confidentiality", "Availability"},
		CriticalAssets: []string{"Core banking", "Trading systems", "Customer data"},
		RTO:            "< 2 hours",
		RPO:            "< 30 minutes",
	},
}

// StaticSectorSource serves the built-in sector table plus any overrides.
type StaticSectorSource struct {
	overrides map[string]SectorContext
}

// NewStaticSectorSource creates a source backed by the built-in table.
// Overrides replace built-in entries with the same canonical name.
func NewStaticSectorSource(overrides ...SectorContext) *StaticSectorSource {
	s := &StaticSectorSource{overrides: make(map[string]SectorContext)}
	for _, o := range overrides {
		s.overrides[CanonicalSector(o.Sector)] = o
	}
	return s
}

// FetchSectorContext returns the context for a sector, or an empty context
// for unknown sectors.
func (s *StaticSectorSource) FetchSectorContext(_ context.Context, sector string) (SectorContext, error) {
	name := CanonicalSector(sector)
	if c, ok := s.overrides[name]; ok {
		return c, nil
	}
	if c, ok := builtinSectors[name]; ok {
		return c, nil
	}
	return SectorContext{Sector: name}, nil
}
