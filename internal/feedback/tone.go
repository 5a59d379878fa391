package feedback

import "fmt"

// Band is a coarse score band used for phrasing.
type Band string

const (
	BandExcellent    Band = "excellent"
	BandGood         Band = "good"
	BandSatisfactory Band = "satisfactory"
	BandWeak         Band = "needs_improvement"
)

// BandFor maps a percentage to a band.
func BandFor(percentage int) Band {
	switch {
	case percentage >= 80:
		return BandExcellent
	case percentage >= 70:
		return BandGood
	case percentage >= 60:
		return BandSatisfactory
	default:
		return BandWeak
	}
}

// MotivationTone is the register of the motivational message.
type MotivationTone string

const (
	ToneEncouraging MotivationTone = "encouraging"
	ToneChallenging MotivationTone = "challenging"
	ToneSupportive  MotivationTone = "supportive"
	ToneInspiring   MotivationTone = "inspiring"
)

// summaryPhrases holds one summary template per style and band. Templates
// take the percentage as their only argument.
var summaryPhrases = map[Style]map[Band]string{
	StyleSupportive: {
		BandExcellent:    "Wonderful work, %d%%. Your analysis is solid and well structured.",
		BandGood:         "Good work, %d%%. You are on the right track, a few details to refine.",
		BandSatisfactory: "You reached %d%%. The foundations are there, let's consolidate them together.",
		BandWeak:         "You reached %d%%. This is a demanding exercise, let's go through it step by step.",
	},
	StyleAnalytical: {
		BandExcellent:    "Score %d%%. The analysis is rigorous and the evidence is consistent.",
		BandGood:         "Score %d%%. The reasoning holds; some elements lack supporting evidence.",
		BandSatisfactory: "Score %d%%. Several criteria are only partially covered.",
		BandWeak:         "Score %d%%. The analysis misses key elements; see the breakdown below.",
	},
	StyleInspiring: {
		BandExcellent:    "Outstanding, %d%%. This is the level of a practitioner ready to lead a study.",
		BandGood:         "A strong %d%%. Excellence is within reach.",
		BandSatisfactory: "%d%% today. Every expert started where you are.",
		BandWeak:         "%d%% today. Mastery is built one workshop at a time.",
	},
	StyleDirect: {
		BandExcellent:    "%d%%. Well done. Move on to the next level.",
		BandGood:         "%d%%. Good. Fix the gaps listed below.",
		BandSatisfactory: "%d%%. Acceptable, not yet sufficient. Address the concerns first.",
		BandWeak:         "%d%%. Not sufficient. Start with the urgent actions.",
	},
}

var motivationPhrases = map[Style]map[Band]string{
	StyleSupportive: {
		BandExcellent:    "Keep this momentum, you are clearly progressing.",
		BandGood:         "Your effort shows. A little more practice and you will master this workshop.",
		BandSatisfactory: "Don't be discouraged, each attempt builds your expertise.",
		BandWeak:         "Take the time to review the hints and try again, you can do it.",
	},
	StyleAnalytical: {
		BandExcellent:    "Your method is sound; apply it to harder scenarios.",
		BandGood:         "Focus your next attempt on the weakest criterion.",
		BandSatisfactory: "Compare your answer with the expected deliverables, criterion by criterion.",
		BandWeak:         "Rebuild the analysis from the methodology before the next attempt.",
	},
	StyleInspiring: {
		BandExcellent:    "Your work sets the standard. Share it with your peers.",
		BandGood:         "You are one step away from excellence. Take it.",
		BandSatisfactory: "Aim higher. The method rewards persistence.",
		BandWeak:         "Great analysts are made through exactly this kind of exercise.",
	},
	StyleDirect: {
		BandExcellent:    "Next exercise.",
		BandGood:         "Close the gaps, then continue.",
		BandSatisfactory: "Redo the weak criteria.",
		BandWeak:         "Review the workshop fundamentals before continuing.",
	},
}

func summary(style Style, percentage int) string {
	return fmt.Sprintf(summaryPhrases[style][BandFor(percentage)], percentage)
}

func motivation(style Style, percentage int) (MotivationTone, string) {
	band := BandFor(percentage)
	var tone MotivationTone
	switch style {
	case StyleInspiring:
		tone = ToneInspiring
	case StyleDirect, StyleAnalytical:
		tone = ToneChallenging
		if band == BandWeak {
			tone = ToneEncouraging
		}
	default:
		tone = ToneSupportive
		if band == BandExcellent || band == BandGood {
			tone = ToneEncouraging
		}
	}
	return tone, motivationPhrases[style][band]
}

// improvementVerb phrases a recommendation in the persona's register.
func improvementVerb(style Style) string {
	switch style {
	case StyleDirect:
		return "Fix"
	case StyleAnalytical:
		return "Strengthen the evidence for"
	case StyleInspiring:
		return "Take to the next level"
	default:
		return "Let's work on"
	}
}
