package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/abhisek/riskdrill/internal/assessment"
)

// Rule kinds understood by the validator. Parameterized kinds use a
// "kind:argument" form, e.g. "min_items:5".
const (
	KindRequired        = "required"
	KindMinItems        = "min_items"
	KindMinLength       = "min_length"
	KindPattern         = "pattern"
	KindOneOf           = "one_of"
	KindEBIOSCompliance = "ebios_compliance"
)

// ebiosTerms are the canonical method terms, in French and English.
var ebiosTerms = []string{
	"valeur métier", "business value",
	"bien support", "supporting asset",
	"événement redouté", "evenement redoute", "feared event",
	"socle de sécurité", "security baseline",
	"source de risque", "risk source",
	"objectif visé", "target objective",
	"partie prenante", "stakeholder",
	"scénario stratégique", "strategic scenario",
	"scénario opérationnel", "operational scenario",
	"chemin d'attaque", "attack path",
	"gravité", "severity",
	"vraisemblance", "likelihood",
	"risque résiduel", "residual risk",
	"mesure de sécurité", "security measure",
}

// patternCache caches compiled rule patterns by source text.
var patternCache sync.Map // map[string]*regexp.Regexp

func compilePattern(expr string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(expr); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	patternCache.Store(expr, re)
	return re, nil
}

// outcome is the result of evaluating one rule against one answer.
type outcome struct {
	ok         bool
	message    string
	suggestion string

	// malformed marks rules that could not be evaluated at all.
	malformed bool
}

func splitRule(rule string) (kind, arg string) {
	kind, arg, _ = strings.Cut(strings.TrimSpace(rule), ":")
	return strings.ToLower(strings.TrimSpace(kind)), arg
}

// check evaluates a rule against an answer value. Missing and malformed
// answers are ordinary failures.
func check(rule assessment.Rule, value any) outcome {
	kind, arg := splitRule(rule.Rule)
	switch kind {
	case KindRequired:
		if assessment.IsEmpty(value) {
			return outcome{
				message:    fmt.Sprintf("%s is required", rule.Field),
				suggestion: fmt.Sprintf("Provide an answer for %s.", rule.Field),
			}
		}
		return outcome{ok: true}

	case KindMinItems:
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n < 0 {
			return outcome{malformed: true, message: fmt.Sprintf("rule %q has an invalid count", rule.Rule)}
		}
		if got := len(assessment.ValueItems(value)); got < n {
			return outcome{
				message:    fmt.Sprintf("%s lists %d entries, at least %d expected", rule.Field, got, n),
				suggestion: fmt.Sprintf("Add %d more entries to %s, one per line.", n-got, rule.Field),
			}
		}
		return outcome{ok: true}

	case KindMinLength:
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n < 0 {
			return outcome{malformed: true, message: fmt.Sprintf("rule %q has an invalid length", rule.Rule)}
		}
		if got := utf8.RuneCountInString(strings.TrimSpace(assessment.ValueText(value))); got < n {
			return outcome{
				message:    fmt.Sprintf("%s is %d characters long, at least %d expected", rule.Field, got, n),
				suggestion: "Develop the answer with concrete justification.",
			}
		}
		return outcome{ok: true}

	case KindPattern:
		re, err := compilePattern(arg)
		if err != nil {
			return outcome{malformed: true, message: fmt.Sprintf("rule %q has an invalid pattern: %v", rule.Rule, err)}
		}
		text := assessment.ValueText(value)
		if raw, ok := value.(string); ok {
			text = raw
		}
		if !re.MatchString(text) {
			return outcome{
				message:    fmt.Sprintf("%s does not match the expected format", rule.Field),
				suggestion: fmt.Sprintf("Follow the expected format (%s).", arg),
			}
		}
		return outcome{ok: true}

	case KindOneOf:
		options := strings.Split(arg, "|")
		got := strings.TrimSpace(assessment.ValueText(value))
		for _, o := range options {
			if strings.EqualFold(strings.TrimSpace(o), got) {
				return outcome{ok: true}
			}
		}
		return outcome{
			message:    fmt.Sprintf("%s must be one of %s", rule.Field, strings.Join(options, ", ")),
			suggestion: fmt.Sprintf("Choose one of: %s.", strings.Join(options, ", ")),
		}

	case KindEBIOSCompliance:
		text := assessment.ValueText(value)
		for _, term := range ebiosTerms {
			if strings.Contains(text, term) {
				return outcome{ok: true}
			}
		}
		return outcome{
			message:    fmt.Sprintf("%s does not use EBIOS RM terminology", rule.Field),
			suggestion: "Reference the EBIOS RM concepts (business values, supporting assets, risk sources, feared events).",
		}
	}
	return outcome{malformed: true, message: fmt.Sprintf("unknown rule %q", rule.Rule)}
}
