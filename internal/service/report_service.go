package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"dama-exam/internal/domain"
	"dama-exam/internal/repository"
)

// ErrNoAnswers is returned when finalization finds nothing to report,
// including a second finalize after cleanup already ran.
var ErrNoAnswers = errors.New("no valid answers to report")

// ReportResult is the outcome of one finalization: the persisted row
// id, the computed aggregate and the export artifact bytes. Uploading
// the artifact is the caller's job.
type ReportResult struct {
	ResultID int
	AvgScore float64
	IsExpert bool
	File     []byte
}

// ReportService reduces the per-question answer cache into one durable
// TestResult plus an xlsx artifact. Single attempt, no retries: compute
// and persist, or fail whole.
type ReportService struct {
	store    SessionStore
	results  repository.ResultRepository
	settings settingsSource
	logger   *zap.Logger
}

func NewReportService(store SessionStore, results repository.ResultRepository, settings settingsSource, logger *zap.Logger) *ReportService {
	return &ReportService{store: store, results: results, settings: settings, logger: logger}
}

func (s *ReportService) Finalize(ctx context.Context, userID string) (*ReportResult, error) {
	answers, err := s.store.GetAnswers(ctx, userID)
	if err != nil {
		// Store failure reads as "no data"; the explicit error below
		// still stops a bogus empty report.
		s.logger.Error("answer cache read failed", zap.String("user_id", userID), zap.Error(err))
		answers = nil
	}

	// Defensive filter: records with empty answer text should not
	// exist, but they are excluded rather than trusted.
	filtered := make([]domain.AnswerRecord, 0, len(answers))
	for _, a := range answers {
		if strings.TrimSpace(a.UserAnswer) == "" {
			s.logger.Warn("skipping answer with empty text",
				zap.String("user_id", userID), zap.Int("item_id", a.ItemID))
			continue
		}
		filtered = append(filtered, a)
	}
	if len(filtered) == 0 {
		return nil, ErrNoAnswers
	}

	var total float64
	for _, a := range filtered {
		total += a.Score
	}
	avg := math.Round(total/float64(len(filtered))*100) / 100
	isExpert := avg >= domain.ExpertThreshold

	session, err := s.store.GetSession(ctx, userID)
	if err != nil || session == nil {
		if err != nil {
			s.logger.Warn("session metadata read failed", zap.Error(err))
		}
		session = &domain.Session{UserID: userID}
	}

	result := domain.TestResult{
		UserID:     userID,
		Role:       session.Role,
		Competency: session.Competency,
		TotalScore: avg,
		IsExpert:   isExpert,
		TestDate:   time.Now().UTC(),
	}

	analytics := s.collectAnalytics(ctx, userID)

	resultID, err := s.results.SaveResult(ctx, result, filtered, analytics)
	if err != nil {
		return nil, fmt.Errorf("persist test result: %w", err)
	}

	file, err := s.buildWorkbook(session, avg, isExpert, filtered)
	if err != nil {
		return nil, fmt.Errorf("build report workbook: %w", err)
	}

	return &ReportResult{
		ResultID: resultID,
		AvgScore: avg,
		IsExpert: isExpert,
		File:     file,
	}, nil
}

// collectAnalytics sums token usage across the exam. Returns nil when
// no model is configured, matching the durable schema's expectations.
func (s *ReportService) collectAnalytics(ctx context.Context, userID string) *domain.Analytics {
	model := s.settings.Load(ctx).Model
	if model == "" {
		return nil
	}

	usages, err := s.store.GetUsage(ctx, userID)
	if err != nil {
		s.logger.Warn("usage read failed", zap.Error(err))
		return nil
	}

	analytics := &domain.Analytics{Model: model}
	for _, u := range usages {
		analytics.PromptTokens += u.PromptTokens
		analytics.CompletionTokens += u.CompletionTokens
	}
	analytics.TotalTokens = analytics.PromptTokens + analytics.CompletionTokens
	return analytics
}

const reportSheet = "DAMA Assessment Report"

func (s *ReportService) buildWorkbook(session *domain.Session, avg float64, isExpert bool, answers []domain.AnswerRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), reportSheet)

	if err := f.MergeCell(reportSheet, "A1", "E1"); err != nil {
		return nil, err
	}
	title := "Results of the data management competency assessment under the DAMA framework"
	if err := f.SetCellValue(reportSheet, "A1", title); err != nil {
		return nil, err
	}

	expert := "No"
	if isExpert {
		expert = "Yes"
	}
	meta := [][2]any{
		{"Date and time of testing", time.Now().Format("2006-01-02 15:04:05")},
		{"Examinee", session.ExamineeName},
		{"Role", session.Role},
		{"Competency", session.Competency},
		{"Average competency score", avg},
		{"DAMA data management expert (threshold ≥ 4.5)", expert},
	}
	for i, row := range meta {
		cell := fmt.Sprintf("A%d", 3+i)
		if err := f.SetCellValue(reportSheet, cell, row[0]); err != nil {
			return nil, err
		}
		cell = fmt.Sprintf("B%d", 3+i)
		if err := f.SetCellValue(reportSheet, cell, row[1]); err != nil {
			return nil, err
		}
	}

	header := []any{"Knowledge area / main job", "Question", "Answer", "Recommended study materials", "Score (1-5)"}
	if err := f.SetSheetRow(reportSheet, "A10", &header); err != nil {
		return nil, err
	}

	for i, a := range answers {
		row := []any{
			a.KnowledgeArea,
			a.Question,
			a.UserAnswer,
			strings.Join(a.Feedback.Recommendations, " "),
			a.Score,
		}
		if err := f.SetSheetRow(reportSheet, fmt.Sprintf("A%d", 11+i), &row); err != nil {
			return nil, err
		}
	}

	widths := map[string]float64{"A": 35, "B": 40, "C": 50, "D": 50, "E": 15}
	for col, width := range widths {
		if err := f.SetColWidth(reportSheet, col, col, width); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
