package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"dama-exam/internal/domain"
	"dama-exam/internal/llm"
	"dama-exam/internal/metrics"
)

// ScoreRequest is one answer to be judged. CandidateAnswer must be
// non-empty; the state machine guarantees that before calling.
type ScoreRequest struct {
	UserID          string
	QuestionID      int
	Question        string
	ReferenceAnswer string
	CandidateAnswer string
	Role            string
	Competency      string
	// PriorAnswer, when set, marks a clarification round: the judge
	// sees the original answer as dialogue context instead of treating
	// CandidateAnswer as a fresh attempt.
	PriorAnswer string
}

// ScoringTexts supplies the generic feedback lines the normalizer falls
// back on. Domain wording is configured here, not inside the client.
type ScoringTexts struct {
	DefaultStrength       string
	DefaultWeakness       string
	DefaultRecommendation string // fmt verb %s receives the competency
	QuotaWeakness         string
	ContextWeakness       string
	FallbackStrength      string
	FallbackWeakness      string
	FallbackRecom         string
}

func DefaultScoringTexts() ScoringTexts {
	return ScoringTexts{
		DefaultStrength:       "You demonstrated an understanding of the topic",
		DefaultWeakness:       "More detail could be added",
		DefaultRecommendation: "We recommend studying the DMBOK section on %s",
		QuotaWeakness:         "Contact an administrator to update the model (quota exhausted)",
		ContextWeakness:       "Your answer is too long. Please shorten it and send it again",
		FallbackStrength:      "Thank you for your answer",
		FallbackWeakness:      "A technical error occurred during evaluation",
		FallbackRecom:         "Please try answering again",
	}
}

const defaultRubric = `Evaluate the answer against the reference on accuracy, completeness, terminology and practical applicability. Request a clarification only when the answer is genuinely incomplete.`

// fallbackScore is deliberately generous: the examinee is never
// penalized for an infrastructure failure.
const fallbackScore = 4.5

type settingsSource interface {
	Load(ctx context.Context) JudgeConfig
}

// ScoringService turns one candidate answer into a ScoringOutcome. All
// failure modes resolve to an outcome; Score never returns an error.
type ScoringService struct {
	judge    llm.Judge
	settings settingsSource
	store    SessionStore
	texts    ScoringTexts
	retries  int
	logger   *zap.Logger
}

func NewScoringService(judge llm.Judge, settings settingsSource, store SessionStore, retries int, logger *zap.Logger) *ScoringService {
	if retries <= 0 {
		retries = 3
	}
	return &ScoringService{
		judge:    judge,
		settings: settings,
		store:    store,
		texts:    DefaultScoringTexts(),
		retries:  retries,
		logger:   logger,
	}
}

// SetTexts overrides the generic feedback wording.
func (s *ScoringService) SetTexts(texts ScoringTexts) { s.texts = texts }

func (s *ScoringService) Score(ctx context.Context, req ScoreRequest) domain.ScoringOutcome {
	started := time.Now()

	for attempt := 1; attempt <= s.retries; attempt++ {
		metrics.ScoringAttempts.Inc()

		cfg := s.settings.Load(ctx)
		if !cfg.Usable() {
			// Soft failure: retry, then fall back. Never a hard stop.
			s.logger.Warn("judge settings unavailable", zap.Int("attempt", attempt))
			continue
		}

		resp, err := s.judge.Evaluate(ctx, llm.Request{
			Model:       cfg.Model,
			Token:       cfg.Token,
			BaseURL:     cfg.URL,
			Temperature: cfg.Temperature,
			Instruction: s.buildInstruction(req, cfg.Prompt),
		})
		if err != nil {
			if outcome, terminal := s.classifyTerminal(err); terminal {
				metrics.ObserveScoring(string(outcome.Kind), started)
				return outcome
			}
			s.logger.Warn("judge attempt failed",
				zap.Int("attempt", attempt),
				zap.String("user_id", req.UserID),
				zap.Error(err))
			continue
		}

		outcome, ok := s.parseVerdict(resp.Content, req.Competency)
		if !ok {
			s.logger.Warn("unparseable judge content",
				zap.Int("attempt", attempt),
				zap.String("user_id", req.UserID))
			continue
		}

		outcome.Usage = resp.Usage
		if err := s.store.SaveUsage(ctx, req.UserID, req.QuestionID, resp.Usage); err != nil {
			s.logger.Warn("saving token usage failed", zap.Error(err))
		}
		metrics.ObserveScoring(string(domain.OutcomeSuccess), started)
		return outcome
	}

	s.logger.Error("scoring retries exhausted, using fallback outcome",
		zap.String("user_id", req.UserID),
		zap.Int("question_id", req.QuestionID))
	metrics.ObserveScoring(string(domain.OutcomeFallback), started)
	return domain.ScoringOutcome{
		Kind:            domain.OutcomeFallback,
		Score:           fallbackScore,
		DetailedScores:  []float64{fallbackScore, fallbackScore, fallbackScore, fallbackScore},
		Strengths:       []string{s.texts.FallbackStrength},
		Weaknesses:      []string{s.texts.FallbackWeakness},
		Recommendations: []string{s.texts.FallbackRecom},
	}
}

// classifyTerminal detects upstream conditions that must not be
// retried: quota exhaustion and context overflow. Both resolve to a
// zero-score outcome addressed to the user or administrator.
func (s *ScoringService) classifyTerminal(err error) (domain.ScoringOutcome, bool) {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient_quota"):
		return domain.ScoringOutcome{
			Kind:           domain.OutcomeQuotaExhausted,
			DetailedScores: []float64{0, 0, 0, 0},
			Weaknesses:     []string{s.texts.QuotaWeakness},
		}, true
	case strings.Contains(msg, "context_length"):
		return domain.ScoringOutcome{
			Kind:           domain.OutcomeContextTooLong,
			DetailedScores: []float64{0, 0, 0, 0},
			Weaknesses:     []string{s.texts.ContextWeakness},
		}, true
	}
	return domain.ScoringOutcome{}, false
}

func (s *ScoringService) buildInstruction(req ScoreRequest, rubric string) string {
	if strings.TrimSpace(rubric) == "" {
		rubric = defaultRubric
	}

	answer := req.CandidateAnswer
	if req.PriorAnswer != "" {
		answer = fmt.Sprintf(
			"Original question: %s\nFirst answer: %s\nClarification answer: %s",
			req.Question, req.PriorAnswer, req.CandidateAnswer,
		)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a strict DAMA examiner for the role %s. Assess the answer for the competency '%s'.\n\n", req.Role, req.Competency)
	fmt.Fprintf(&b, "QUESTION: %s\n", req.Question)
	fmt.Fprintf(&b, "REFERENCE ANSWER: %s\n", req.ReferenceAnswer)
	fmt.Fprintf(&b, "CANDIDATE ANSWER: %s\n\n", answer)
	b.WriteString(rubric)
	b.WriteString("\nResponse format (JSON):\n")
	b.WriteString(`{
  "score": average_score (0-5),
  "needs_clarification": true/false,
  "clarification_question": "follow-up question",
  "detailed_scores": [per_criterion_scores],
  "strengths": ["strong points"],
  "weaknesses": ["gaps"],
  "recommendations": ["study materials"]
}`)
	return b.String()
}

// judgeVerdict is the wire shape of the judge reply. Score fields are
// left loosely typed: models occasionally send numbers as strings or
// nest objects where numbers belong.
type judgeVerdict struct {
	Score                 any      `json:"score"`
	NeedsClarification    bool     `json:"needs_clarification"`
	ClarificationQuestion string   `json:"clarification_question"`
	DetailedScores        []any    `json:"detailed_scores"`
	Strengths             []string `json:"strengths"`
	Weaknesses            []string `json:"weaknesses"`
	Recommendations       []string `json:"recommendations"`
}

func (s *ScoringService) parseVerdict(content, competency string) (domain.ScoringOutcome, bool) {
	raw := extractJSONObject(content)
	if raw == "" {
		return domain.ScoringOutcome{}, false
	}

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return domain.ScoringOutcome{}, false
	}

	score := clampScore(toFloat(verdict.Score))

	detailed := make([]float64, 0, len(verdict.DetailedScores))
	for _, item := range verdict.DetailedScores {
		detailed = append(detailed, clampScore(toFloat(item)))
	}
	if len(detailed) == 0 {
		detailed = []float64{score, score, score, score}
	}

	outcome := domain.ScoringOutcome{
		Kind:                  domain.OutcomeSuccess,
		Score:                 score,
		NeedsClarification:    verdict.NeedsClarification,
		ClarificationQuestion: verdict.ClarificationQuestion,
		DetailedScores:        detailed,
		Strengths:             verdict.Strengths,
		Weaknesses:            verdict.Weaknesses,
		Recommendations:       verdict.Recommendations,
	}
	if len(outcome.Strengths) == 0 {
		outcome.Strengths = []string{s.texts.DefaultStrength}
	}
	if len(outcome.Weaknesses) == 0 {
		outcome.Weaknesses = []string{s.texts.DefaultWeakness}
	}
	if len(outcome.Recommendations) == 0 {
		outcome.Recommendations = []string{fmt.Sprintf(s.texts.DefaultRecommendation, competency)}
	}
	return outcome, true
}

// clampScore bounds a score to [0, 5] with one decimal of precision.
func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Round(math.Min(5.0, math.Max(0.0, v))*10) / 10
}

// toFloat tolerates the shapes models actually emit; anything
// non-numeric becomes 0.
func toFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
