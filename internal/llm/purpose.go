package llm

import "context"

// Purpose labels why a request was made. It ends up on the llm.request
// telemetry event so costs can be split per use.
type Purpose string

const (
	PurposeUnspecified         Purpose = "unspecified"
	PurposeCriterionEvaluation Purpose = "criterion_evaluation"
	PurposeConnectivityCheck   Purpose = "connectivity_check"
)

type purposeKey struct{}

// WithPurpose tags ctx with p.
func WithPurpose(ctx context.Context, p Purpose) context.Context {
	return context.WithValue(ctx, purposeKey{}, p)
}

// PurposeFrom returns the purpose on ctx, or PurposeUnspecified.
func PurposeFrom(ctx context.Context) Purpose {
	if p, ok := ctx.Value(purposeKey{}).(Purpose); ok && p != "" {
		return p
	}
	return PurposeUnspecified
}
