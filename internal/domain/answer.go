package domain

import "time"

// Feedback carries the structured judge commentary for one answer.
type Feedback struct {
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
}

// AnswerRecord is the accepted result for one question or case. Exactly
// one record exists per item once the session has moved past it; a
// clarification round merges into the existing record instead of
// appending a second one.
type AnswerRecord struct {
	ItemID            int       `json:"item_id"`
	Question          string    `json:"question"`
	ReferenceAnswer   string    `json:"reference_answer"`
	UserAnswer        string    `json:"user_answer"`
	Score             float64   `json:"score"`
	Feedback          Feedback  `json:"feedback"`
	KnowledgeArea     string    `json:"knowledge_area"`
	MainJob           string    `json:"main_job"`
	QuestionType      string    `json:"question_type"`
	IsCase            bool      `json:"is_case"`
	ClarificationUsed bool      `json:"clarification_used"`
	SubmittedAt       time.Time `json:"submitted_at"`
}
