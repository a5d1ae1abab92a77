package domain

import "time"

// ExpertThreshold is the average score from which the examinee is
// considered an expert for the tested competency.
const ExpertThreshold = 4.5

// TestResult is the durable summary row for one completed exam.
// Immutable after creation except ReportPath, which is filled in once
// the artifact upload succeeds.
type TestResult struct {
	ID         int       `json:"id"`
	UserID     string    `json:"user_id"`
	Role       string    `json:"role"`
	Competency string    `json:"competency"`
	TotalScore float64   `json:"total_score"`
	IsExpert   bool      `json:"is_expert"`
	TestDate   time.Time `json:"test_date"`
	ReportPath string    `json:"report_path,omitempty"`
}

// Analytics aggregates judge token usage over one completed exam.
type Analytics struct {
	TestResultID     int    `json:"test_result_id"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
}
