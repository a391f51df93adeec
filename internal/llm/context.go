package llm

import "context"

// Purpose labels recorded with every oracle call.
const (
	PurposeQuestionGen = "question-gen"
	PurposeEvaluation  = "evaluation"
	PurposeEmbedding   = "embedding"
)

type contextKey string

const purposeKey contextKey = "llm_purpose"

// WithPurpose tags ctx with a purpose label for event logging and metrics.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom returns the purpose label, or "unknown".
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok {
		return v
	}
	return "unknown"
}
