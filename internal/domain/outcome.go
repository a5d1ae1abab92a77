package domain

// OutcomeKind tags how a scoring call resolved. Terminal upstream
// conditions and the post-retry fallback are outcomes, not errors.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomeQuotaExhausted OutcomeKind = "quota_exhausted"
	OutcomeContextTooLong OutcomeKind = "context_too_long"
	OutcomeFallback       OutcomeKind = "fallback"
)

// ScoringOutcome is the normalized result of one judge invocation.
type ScoringOutcome struct {
	Kind                  OutcomeKind `json:"kind"`
	Score                 float64     `json:"score"`
	NeedsClarification    bool        `json:"needs_clarification"`
	ClarificationQuestion string      `json:"clarification_question"`
	DetailedScores        []float64   `json:"detailed_scores"`
	Strengths             []string    `json:"strengths"`
	Weaknesses            []string    `json:"weaknesses"`
	Recommendations       []string    `json:"recommendations"`
	Usage                 TokenUsage  `json:"usage"`
}

// TokenUsage mirrors the provider usage block for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
