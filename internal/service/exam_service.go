package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"dama-exam/internal/domain"
	"dama-exam/internal/metrics"
	"dama-exam/internal/repository"
)

// Reply is one outbound message. Options, when present, are the
// choices the transport should offer; rendering is the transport's
// concern. Document carries artifact bytes for direct delivery.
type Reply struct {
	Text     string         `json:"text"`
	Options  []string       `json:"options,omitempty"`
	Document *ReplyDocument `json:"document,omitempty"`
}

type ReplyDocument struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
	Caption  string `json:"caption,omitempty"`
}

// Conversation actions the machine recognizes as explicit triggers.
const (
	actionStartTest    = "Start testing"
	actionConfirmStart = "Start the test"
)

const genericErrorText = "Something went wrong. Please try again later."

// processingTimeout caps how long the persisted re-entrancy guard is
// honored. It must exceed the slowest possible scoring call (retries
// times the judge timeout); a flag older than this was left behind by
// an interrupted evaluation and would otherwise lock the user out
// until the session TTL expires.
const processingTimeout = 20 * time.Minute

type scorer interface {
	Score(ctx context.Context, req ScoreRequest) domain.ScoringOutcome
}

type reporter interface {
	Finalize(ctx context.Context, userID string) (*ReportResult, error)
}

// Exporter places the finished report artifact in object storage.
type Exporter interface {
	Upload(ctx context.Context, userID string, data []byte) (string, error)
	URLFor(object string) string
}

// ExamService drives the assessment conversation: one inbound message
// is mapped onto the session's current phase, mutates the session, and
// produces the replies to send back.
type ExamService struct {
	store     SessionStore
	directory repository.DirectoryRepository
	results   repository.ResultRepository
	scoring   scorer
	reports   reporter
	exports   Exporter
	logger    *zap.Logger

	handlers map[domain.Phase]phaseHandler
}

type phaseHandler func(ctx context.Context, session *domain.Session, text string) ([]Reply, error)

func NewExamService(
	store SessionStore,
	directory repository.DirectoryRepository,
	results repository.ResultRepository,
	scoring scorer,
	reports reporter,
	exports Exporter,
	logger *zap.Logger,
) *ExamService {
	s := &ExamService{
		store:     store,
		directory: directory,
		results:   results,
		scoring:   scoring,
		reports:   reports,
		exports:   exports,
		logger:    logger,
	}
	s.handlers = map[domain.Phase]phaseHandler{
		domain.PhaseIdle:                  s.handleIdle,
		domain.PhaseNameIntake:            s.handleNameIntake,
		domain.PhaseRoleSelection:         s.handleRoleSelection,
		domain.PhaseCompetencySelection:   s.handleCompetencySelection,
		domain.PhaseReadyToStart:          s.handleReadyToStart,
		domain.PhaseAnsweringQuestion:     s.handleAnswer,
		domain.PhaseAwaitingClarification: s.handleAnswer,
		domain.PhaseAnsweringCase:         s.handleCaseAnswer,
	}
	return s
}

// HandleMessage is the single entry point for inbound text. Every phase
// handler runs under the same interceptor: a panic or error is logged
// and converted into a generic retry message, leaving the previously
// stored session state untouched.
func (s *ExamService) HandleMessage(ctx context.Context, userID, text string) []Reply {
	session, err := s.store.GetSession(ctx, userID)
	if err != nil {
		// Store failure degrades to "no session"; the user starts over
		// rather than getting an error.
		s.logger.Error("session read failed", zap.String("user_id", userID), zap.Error(err))
		session = nil
	}
	if session == nil {
		session = &domain.Session{UserID: userID, Phase: domain.PhaseIdle}
	}

	metrics.ActivePhaseMessages.WithLabelValues(string(session.Phase)).Inc()

	handler, ok := s.handlers[session.Phase]
	if !ok {
		s.logger.Error("unknown session phase, resetting",
			zap.String("user_id", userID), zap.String("phase", string(session.Phase)))
		session.Phase = domain.PhaseIdle
		handler = s.handleIdle
	}

	return s.intercept(ctx, session, strings.TrimSpace(text), handler)
}

func (s *ExamService) intercept(ctx context.Context, session *domain.Session, text string, handler phaseHandler) (replies []Reply) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("phase handler panicked",
				zap.String("user_id", session.UserID),
				zap.String("phase", string(session.Phase)),
				zap.Any("panic", r))
			s.clearProcessing(ctx, session.UserID)
			replies = []Reply{{Text: genericErrorText}}
		}
	}()

	replies, err := handler(ctx, session, text)
	if err != nil {
		s.logger.Error("phase handler failed",
			zap.String("user_id", session.UserID),
			zap.String("phase", string(session.Phase)),
			zap.Error(err))
		return []Reply{{Text: genericErrorText}}
	}
	return replies
}

// save persists the session after a completed step. Failures are
// logged, not surfaced: the conversation continues and the store's
// eventual-consistency contract absorbs the gap.
func (s *ExamService) save(ctx context.Context, session *domain.Session) {
	if err := s.store.SaveSession(ctx, session); err != nil {
		s.logger.Error("session write failed",
			zap.String("user_id", session.UserID), zap.Error(err))
	}
}

func (s *ExamService) handleIdle(ctx context.Context, session *domain.Session, text string) ([]Reply, error) {
	if !strings.EqualFold(text, actionStartTest) && !strings.EqualFold(text, "/start") {
		return []Reply{{
			Text:    "Welcome to the DAMA competency assessment.",
			Options: []string{actionStartTest},
		}}, nil
	}

	session.Phase = domain.PhaseNameIntake
	s.save(ctx, session)
	return []Reply{{
		Text: "Welcome to the DAMA competency assessment!\n\nTo begin, please enter your full name:",
	}}, nil
}

func (s *ExamService) handleNameIntake(ctx context.Context, session *domain.Session, text string) ([]Reply, error) {
	if text == "" {
		return []Reply{{Text: "Please enter your full name:"}}, nil
	}

	roles, err := s.directory.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	session.ExamineeName = text
	session.Phase = domain.PhaseRoleSelection
	s.save(ctx, session)
	return []Reply{{
		Text:    "Choose your DAMA role from the list below:",
		Options: roles,
	}}, nil
}

func (s *ExamService) handleRoleSelection(ctx context.Context, session *domain.Session, text string) ([]Reply, error) {
	roles, err := s.directory.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	role, ok := matchOption(text, roles)
	if !ok {
		return []Reply{{
			Text:    "Please choose a role from the list:",
			Options: roles,
		}}, nil
	}

	competencies, err := s.directory.ListCompetencies(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("list competencies: %w", err)
	}

	session.Role = role
	session.Phase = domain.PhaseCompetencySelection
	s.save(ctx, session)
	return []Reply{{
		Text:    fmt.Sprintf("You chose the role: %s\n\nNow choose a competency to be tested on:", role),
		Options: competencies,
	}}, nil
}

func (s *ExamService) handleCompetencySelection(ctx context.Context, session *domain.Session, text string) ([]Reply, error) {
	competencies, err := s.directory.ListCompetencies(ctx, session.Role)
	if err != nil {
		return nil, fmt.Errorf("list competencies: %w", err)
	}

	competency, ok := matchOption(text, competencies)
	if !ok {
		return []Reply{{
			Text:    "Please choose a competency from the list:",
			Options: competencies,
		}}, nil
	}

	prepared, err := s.prepareExam(ctx, session.Role, competency)
	if err != nil {
		return nil, fmt.Errorf("prepare exam: %w", err)
	}

	if len(prepared.Questions) == 0 {
		// Nothing to ask: abort back to idle without a single scoring
		// call.
		if err := s.store.Clear(ctx, session.UserID); err != nil {
			s.logger.Warn("store clear failed", zap.Error(err))
		}
		s.save(ctx, &domain.Session{UserID: session.UserID, Phase: domain.PhaseIdle})
		return []Reply{{
			Text:    "There are no questions available for the chosen role and competency.",
			Options: []string{actionStartTest},
		}}, nil
	}

	session.Competency = competency
	session.Questions = prepared.Questions
	session.Case = prepared.Case
	session.Phase = domain.PhaseReadyToStart
	s.save(ctx, session)

	hasCase := "no"
	if prepared.Case != nil {
		hasCase = "yes"
	}
	confirmation := fmt.Sprintf(
		"Confirm your choice:\n\nExaminee: %s\nRole: %s\nCompetency: %s\n\nTotal questions: %d\nScenario case: %s\n\nReady to start?",
		session.ExamineeName, session.Role, competency, len(prepared.Questions), hasCase,
	)
	return []Reply{{Text: confirmation, Options: []string{actionConfirmStart}}}, nil
}

func (s *ExamService) handleReadyToStart(ctx context.Context, session *domain.Session, text string) ([]Reply, error) {
	if !strings.EqualFold(text, actionConfirmStart) {
		return []Reply{{
			Text:    "Press the button to start the test.",
			Options: []string{actionConfirmStart},
		}}, nil
	}

	session.Phase = domain.PhaseAnsweringQuestion
	session.CurrentQuestion = 0
	session.Answers = nil
	session.ClarificationCount = 0
	session.AwaitingClarification = false
	session.PendingAnswer = ""
	session.StartedAt = time.Now().UTC()
	s.save(ctx, session)

	return []Reply{s.questionReply(session)}, nil
}

func (s *ExamService) questionReply(session *domain.Session) Reply {
	q := session.Questions[session.CurrentQuestion]
	text := fmt.Sprintf(
		"Question %d/%d\n\nType: %s\nKnowledge area: %s\nMain job: %s\n\n%s\n\nPlease give a detailed answer:",
		session.CurrentQuestion+1, len(session.Questions),
		q.QuestionType, q.KnowledgeArea, q.MainJob, q.Question,
	)
	return Reply{Text: text}
}

func (s *ExamService) handleAnswer(ctx context.Context, session *domain.Session, text string) ([]Reply, error) {
	if guarded := s.checkProcessing(session); guarded != nil {
		return guarded, nil
	}
	if text == "" {
		return []Reply{{Text: "Please answer with text."}}, nil
	}

	if session.AwaitingClarification {
		return s.handleClarificationAnswer(ctx, session, text)
	}

	q := session.Questions[session.CurrentQuestion]

	s.beginScoring(ctx, session)
	outcome := s.scoring.Score(ctx, ScoreRequest{
		UserID:          session.UserID,
		QuestionID:      session.CurrentQuestion,
		Question:        q.Question,
		ReferenceAnswer: q.Answer,
		CandidateAnswer: text,
		Role:            session.Role,
		Competency:      session.Competency,
	})
	session.Processing = false

	if outcome.NeedsClarification && session.ClarificationCount < domain.MaxClarifications {
		record := recordFromOutcome(q, text, outcome)
		session.Answers = append(session.Answers, record)
		session.PendingAnswer = text
		session.ClarificationCount++
		session.AwaitingClarification = true
		session.Phase = domain.PhaseAwaitingClarification
		s.save(ctx, session)
		return []Reply{{Text: outcome.ClarificationQuestion}}, nil
	}

	record := recordFromOutcome(q, text, outcome)
	session.Answers = append(session.Answers, record)
	if err := s.store.SaveAnswer(ctx, session.UserID, session.CurrentQuestion, record); err != nil {
		s.logger.Warn("answer cache write failed", zap.Error(err))
	}

	replies := []Reply{{Text: formatFeedback(outcome, false)}}
	return append(replies, s.advance(ctx, session)...), nil
}

func (s *ExamService) handleClarificationAnswer(ctx context.Context, session *domain.Session, text string) ([]Reply, error) {
	q := session.Questions[session.CurrentQuestion]

	s.beginScoring(ctx, session)
	outcome := s.scoring.Score(ctx, ScoreRequest{
		UserID:          session.UserID,
		QuestionID:      session.CurrentQuestion,
		Question:        q.Question,
		ReferenceAnswer: q.Answer,
		CandidateAnswer: text,
		Role:            session.Role,
		Competency:      session.Competency,
		PriorAnswer:     session.PendingAnswer,
	})
	session.Processing = false

	if outcome.NeedsClarification && session.ClarificationCount < domain.MaxClarifications {
		session.PendingAnswer = session.PendingAnswer + "\n\nAddition: " + text
		session.ClarificationCount++
		s.save(ctx, session)
		return []Reply{{Text: outcome.ClarificationQuestion}}, nil
	}

	// Merge into the provisional record: mean score, concatenated
	// feedback, combined answer text. PendingAnswer already carries
	// every earlier round, so the merge starts from it rather than from
	// the provisional record's first-round text.
	provisional := &session.Answers[len(session.Answers)-1]
	provisional.UserAnswer = session.PendingAnswer + "\n\nAddition: " + text
	provisional.Score = clampScore((provisional.Score + outcome.Score) / 2)
	provisional.Feedback.Strengths = append(provisional.Feedback.Strengths, outcome.Strengths...)
	provisional.Feedback.Weaknesses = append(provisional.Feedback.Weaknesses, outcome.Weaknesses...)
	provisional.Feedback.Recommendations = append(provisional.Feedback.Recommendations, outcome.Recommendations...)
	provisional.ClarificationUsed = true

	if err := s.store.SaveAnswer(ctx, session.UserID, session.CurrentQuestion, *provisional); err != nil {
		s.logger.Warn("answer cache write failed", zap.Error(err))
	}

	session.AwaitingClarification = false
	session.ClarificationCount = 0
	session.PendingAnswer = ""
	session.Phase = domain.PhaseAnsweringQuestion

	replies := []Reply{{Text: fmt.Sprintf(
		"Your clarified answer was scored %.1f/5.0\n\n%s",
		provisional.Score, formatFeedback(outcome, false),
	)}}
	return append(replies, s.advance(ctx, session)...), nil
}

// advance moves past the just-answered question: next question, the
// case step, or finalization.
func (s *ExamService) advance(ctx context.Context, session *domain.Session) []Reply {
	session.CurrentQuestion++

	if session.HasQuestionsLeft() {
		s.save(ctx, session)
		return []Reply{s.questionReply(session)}
	}

	if session.Case != nil {
		session.Phase = domain.PhaseAnsweringCase
		s.save(ctx, session)
		c := session.Case
		return []Reply{{Text: fmt.Sprintf(
			"Scenario case\n\nSituation: %s\n\nTask: %s\n\nPlease propose your solution:",
			c.Situation, c.Task,
		)}}
	}

	return s.finalize(ctx, session)
}

func (s *ExamService) handleCaseAnswer(ctx context.Context, session *domain.Session, text string) ([]Reply, error) {
	if guarded := s.checkProcessing(session); guarded != nil {
		return guarded, nil
	}
	if text == "" {
		return []Reply{{Text: "Please answer with text."}}, nil
	}

	c := session.Case

	s.beginScoring(ctx, session)
	outcome := s.scoring.Score(ctx, ScoreRequest{
		UserID:          session.UserID,
		QuestionID:      len(session.Questions),
		Question:        c.PromptText(),
		ReferenceAnswer: c.Answer,
		CandidateAnswer: text,
		Role:            session.Role,
		Competency:      session.Competency,
	})
	session.Processing = false

	record := domain.AnswerRecord{
		ItemID:          c.ID,
		Question:        c.PromptText(),
		ReferenceAnswer: c.Answer,
		UserAnswer:      text,
		Score:           outcome.Score,
		Feedback: domain.Feedback{
			Strengths:       outcome.Strengths,
			Weaknesses:      outcome.Weaknesses,
			Recommendations: outcome.Recommendations,
		},
		KnowledgeArea: c.KnowledgeArea,
		MainJob:       c.MainJob,
		QuestionType:  "case",
		IsCase:        true,
		SubmittedAt:   time.Now().UTC(),
	}
	session.Answers = append(session.Answers, record)
	if err := s.store.SaveAnswer(ctx, session.UserID, len(session.Questions), record); err != nil {
		s.logger.Warn("answer cache write failed", zap.Error(err))
	}

	replies := []Reply{{Text: formatFeedback(outcome, true)}}
	return append(replies, s.finalize(ctx, session)...), nil
}

// finalize hands off to the report aggregator and, regardless of its
// result, clears the store and returns the session to idle.
func (s *ExamService) finalize(ctx context.Context, session *domain.Session) []Reply {
	defer func() {
		if err := s.store.Clear(ctx, session.UserID); err != nil {
			s.logger.Warn("store clear failed", zap.String("user_id", session.UserID), zap.Error(err))
		}
		s.save(ctx, &domain.Session{UserID: session.UserID, Phase: domain.PhaseIdle})
	}()

	report, err := s.reports.Finalize(ctx, session.UserID)
	if err != nil {
		s.logger.Error("report finalization failed",
			zap.String("user_id", session.UserID), zap.Error(err))
		metrics.ExamsFinalized.WithLabelValues("failed").Inc()
		return []Reply{{
			Text:    "The test is complete, but the report could not be generated. Please contact an administrator.",
			Options: []string{actionStartTest},
		}}
	}

	expert := "not reached"
	if report.IsExpert {
		expert = "reached"
	}

	object, err := s.exports.Upload(ctx, session.UserID, report.File)
	if err != nil {
		// Storage is down: deliver the artifact bytes directly.
		s.logger.Warn("report upload failed, delivering directly",
			zap.String("user_id", session.UserID), zap.Error(err))
		metrics.ExamsFinalized.WithLabelValues("direct_delivery").Inc()
		filename := fmt.Sprintf("DAMA_Report_%s_%s.xlsx",
			session.ExamineeName, time.Now().Format("20060102_150405"))
		return []Reply{
			{
				Text: fmt.Sprintf("Testing complete!\n\nAverage score: %.2f\nExpert level: %s",
					report.AvgScore, expert),
			},
			{
				Text: "The cloud upload failed, so the report is attached directly.",
				Document: &ReplyDocument{
					Filename: filename,
					Data:     report.File,
					Caption:  "Your DAMA competency assessment report",
				},
				Options: []string{actionStartTest},
			},
		}
	}

	if err := s.results.SetReportPath(ctx, report.ResultID, object); err != nil {
		s.logger.Warn("storing report path failed", zap.Error(err))
	}
	metrics.ExamsFinalized.WithLabelValues("ok").Inc()

	return []Reply{{
		Text: fmt.Sprintf(
			"Testing complete!\n\nAverage score: %.2f\nExpert level: %s\n\nDownload the full report:\n%s",
			report.AvgScore, expert, s.exports.URLFor(object),
		),
		Options: []string{actionStartTest},
	}}
}

// checkProcessing returns the hold-on reply while a scoring call is
// outstanding for this user; out-of-order submissions are acknowledged,
// not queued. A guard older than processingTimeout is ignored and
// cleared: it was persisted by a scoring call that never finished.
func (s *ExamService) checkProcessing(session *domain.Session) []Reply {
	if !session.Processing {
		return nil
	}
	if time.Since(session.ProcessingSince) < processingTimeout {
		return []Reply{{Text: "Your previous answer is still being evaluated, one moment..."}}
	}
	s.logger.Warn("ignoring stale processing flag",
		zap.String("user_id", session.UserID),
		zap.Time("since", session.ProcessingSince))
	session.Processing = false
	session.ProcessingSince = time.Time{}
	return nil
}

// beginScoring flips the re-entrancy guard and makes it visible to
// concurrent messages before the judge call starts.
func (s *ExamService) beginScoring(ctx context.Context, session *domain.Session) {
	session.Processing = true
	session.ProcessingSince = time.Now().UTC()
	s.save(ctx, session)
}

// clearProcessing resets a persisted re-entrancy guard after a crashed
// handler run. It works on the stored session, not the in-memory copy,
// so the rest of the previously saved state stays untouched.
func (s *ExamService) clearProcessing(ctx context.Context, userID string) {
	stored, err := s.store.GetSession(ctx, userID)
	if err != nil || stored == nil || !stored.Processing {
		return
	}
	stored.Processing = false
	stored.ProcessingSince = time.Time{}
	s.save(ctx, stored)
}

func recordFromOutcome(q domain.Question, answer string, outcome domain.ScoringOutcome) domain.AnswerRecord {
	return domain.AnswerRecord{
		ItemID:          q.ID,
		Question:        q.Question,
		ReferenceAnswer: q.Answer,
		UserAnswer:      answer,
		Score:           outcome.Score,
		Feedback: domain.Feedback{
			Strengths:       outcome.Strengths,
			Weaknesses:      outcome.Weaknesses,
			Recommendations: outcome.Recommendations,
		},
		KnowledgeArea: q.KnowledgeArea,
		MainJob:       q.MainJob,
		QuestionType:  q.QuestionType,
		SubmittedAt:   time.Now().UTC(),
	}
}

func formatFeedback(outcome domain.ScoringOutcome, isCase bool) string {
	kind := "question"
	if isCase {
		kind = "case"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your answer to the %s was scored %.1f/5.0\n\n", kind, outcome.Score)
	b.WriteString("Strengths:\n")
	for _, item := range outcome.Strengths {
		b.WriteString("• " + item + "\n")
	}
	b.WriteString("\nRecommendations:\n")
	for _, item := range outcome.Recommendations {
		b.WriteString("• " + item + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// matchOption accepts either the exact option text or its 1-based
// index in the presented list.
func matchOption(input string, options []string) (string, bool) {
	for _, opt := range options {
		if input == opt {
			return opt, true
		}
	}
	if idx, err := strconv.Atoi(input); err == nil && idx >= 1 && idx <= len(options) {
		return options[idx-1], true
	}
	return "", false
}
