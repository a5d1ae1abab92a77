package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"dama-exam/internal/domain"
)

// ResultRepository persists completed exams. SaveResult writes the
// summary row, every answer row and the aggregated analytics row in a
// single transaction; nothing is kept on failure.
type ResultRepository interface {
	SaveResult(ctx context.Context, result domain.TestResult, answers []domain.AnswerRecord, analytics *domain.Analytics) (int, error)
	SetReportPath(ctx context.Context, resultID int, path string) error
}

type PgResultRepository struct {
	pool *pgxpool.Pool
}

func NewPgResultRepository(pool *pgxpool.Pool) *PgResultRepository {
	return &PgResultRepository{pool: pool}
}

func (r *PgResultRepository) SaveResult(ctx context.Context, result domain.TestResult, answers []domain.AnswerRecord, analytics *domain.Analytics) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertResult = `
		INSERT INTO exam_test_results (user_id, role_name, competence_name, total_score, is_expert, test_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var resultID int
	if err := tx.QueryRow(ctx, insertResult,
		result.UserID,
		result.Role,
		result.Competency,
		result.TotalScore,
		result.IsExpert,
		result.TestDate,
	).Scan(&resultID); err != nil {
		return 0, fmt.Errorf("insert test result: %w", err)
	}

	const insertAnswer = `
		INSERT INTO exam_test_answers (test_result_id, question_id, is_case, answer_text, score, feedback)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, a := range answers {
		feedback, err := json.Marshal(a.Feedback)
		if err != nil {
			return 0, fmt.Errorf("marshal feedback: %w", err)
		}
		if _, err := tx.Exec(ctx, insertAnswer,
			resultID,
			a.ItemID,
			a.IsCase,
			a.UserAnswer,
			a.Score,
			feedback,
		); err != nil {
			return 0, fmt.Errorf("insert test answer: %w", err)
		}
	}

	if analytics != nil {
		const insertAnalytics = `
			INSERT INTO exam_analytics (test_result_id, prompt_tokens, completion_tokens, total_tokens, model)
			VALUES ($1, $2, $3, $4, $5)
		`
		if _, err := tx.Exec(ctx, insertAnalytics,
			resultID,
			analytics.PromptTokens,
			analytics.CompletionTokens,
			analytics.TotalTokens,
			analytics.Model,
		); err != nil {
			return 0, fmt.Errorf("insert analytics: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return resultID, nil
}

func (r *PgResultRepository) SetReportPath(ctx context.Context, resultID int, path string) error {
	const query = `
		UPDATE exam_test_results
		SET report_path = $2
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, resultID, path)
	return err
}
