package domain

import "time"

// Phase is the state machine position of one exam conversation.
type Phase string

const (
	PhaseIdle                  Phase = "idle"
	PhaseNameIntake            Phase = "name_intake"
	PhaseRoleSelection         Phase = "role_selection"
	PhaseCompetencySelection   Phase = "competency_selection"
	PhaseReadyToStart          Phase = "ready_to_start"
	PhaseAnsweringQuestion     Phase = "answering_question"
	PhaseAwaitingClarification Phase = "awaiting_clarification"
	PhaseAnsweringCase         Phase = "answering_case"
)

// MaxClarifications caps follow-up rounds per question.
const MaxClarifications = 2

// Session holds the transient conversational state of one exam attempt.
// It lives in the session store for the duration of the attempt and is
// evicted on finalization or TTL expiry.
type Session struct {
	UserID                string         `json:"user_id"`
	Phase                 Phase          `json:"phase"`
	ExamineeName          string         `json:"examinee_name,omitempty"`
	Role                  string         `json:"role,omitempty"`
	Competency            string         `json:"competency,omitempty"`
	Questions             []Question     `json:"questions,omitempty"`
	Case                  *Case          `json:"case,omitempty"`
	CurrentQuestion       int            `json:"current_question"`
	Answers               []AnswerRecord `json:"answers,omitempty"`
	ClarificationCount    int            `json:"clarification_count"`
	AwaitingClarification bool           `json:"awaiting_clarification"`
	PendingAnswer         string         `json:"pending_answer,omitempty"`
	Processing            bool           `json:"processing"`
	ProcessingSince       time.Time      `json:"processing_since,omitempty"`
	StartedAt             time.Time      `json:"started_at,omitempty"`
}

// HasQuestionsLeft reports whether the question queue is not yet exhausted.
func (s *Session) HasQuestionsLeft() bool {
	return s.CurrentQuestion < len(s.Questions)
}
