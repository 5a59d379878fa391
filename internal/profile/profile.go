package profile

import (
	"slices"
	"strings"

	"github.com/abhisek/riskdrill/internal/assessment"
)

// Profile describes the person taking an assessment.
type Profile struct {
	UserID          string   `json:"user_id"`
	Role            string   `json:"role,omitempty"`
	EBIOSYears      int      `json:"ebios_years"`
	Specializations []string `json:"specializations,omitempty"`
	Certifications  []string `json:"certifications,omitempty"`
	Sector          string   `json:"sector,omitempty"`

	// PreferredComplexity is the self-declared comfort level. Zero means unset.
	PreferredComplexity assessment.Difficulty `json:"preferred_complexity,omitempty"`
}

// Point weights for the expertise estimate.
var (
	specializationPoints = map[string]int{
		"threat_intelligence": 2,
		"risk_management":     2,
		"healthcare_security": 1,
	}
	certificationPoints = map[string]int{
		"CISSP": 1,
		"CISM":  1,
		"ANSSI": 2,
	}
)

// Points computes the weighted expertise sum of a profile.
func Points(p Profile) int {
	points := 0
	switch {
	case p.EBIOSYears >= 10:
		points += 3
	case p.EBIOSYears >= 5:
		points += 2
	case p.EBIOSYears >= 2:
		points += 1
	}
	for spec, pts := range specializationPoints {
		if slices.Contains(p.Specializations, spec) {
			points += pts
		}
	}
	for cert, pts := range certificationPoints {
		if slices.ContainsFunc(p.Certifications, func(c string) bool { return strings.EqualFold(c, cert) }) {
			points += pts
		}
	}
	return points
}

// LevelFor maps a profile onto the difficulty ladder.
func LevelFor(p Profile) assessment.Difficulty {
	switch pts := Points(p); {
	case pts >= 8:
		return assessment.Master
	case pts >= 6:
		return assessment.Expert
	case pts >= 4:
		return assessment.Advanced
	default:
		return assessment.Intermediate
	}
}
