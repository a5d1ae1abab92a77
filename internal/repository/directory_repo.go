package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dama-exam/internal/domain"
)

// DirectoryRepository exposes the read-only role/competency/question
// directory the exam is built from.
type DirectoryRepository interface {
	ListRoles(ctx context.Context) ([]string, error)
	ListCompetencies(ctx context.Context, role string) ([]string, error)
	ListQuestions(ctx context.Context, role, competency, questionType string) ([]domain.Question, error)
	GetCase(ctx context.Context, role, competency string) (*domain.Case, error)
}

type PgDirectoryRepository struct {
	pool *pgxpool.Pool
}

func NewPgDirectoryRepository(pool *pgxpool.Pool) *PgDirectoryRepository {
	return &PgDirectoryRepository{pool: pool}
}

func (r *PgDirectoryRepository) ListRoles(ctx context.Context) ([]string, error) {
	const query = `
		SELECT DISTINCT role_name
		FROM exam_roles
		ORDER BY role_name
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *PgDirectoryRepository) ListCompetencies(ctx context.Context, role string) ([]string, error) {
	const query = `
		SELECT DISTINCT competence_name
		FROM exam_competencies
		WHERE role_name = $1
		ORDER BY competence_name
	`
	rows, err := r.pool.Query(ctx, query, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var competencies []string
	for rows.Next() {
		var comp string
		if err := rows.Scan(&comp); err != nil {
			return nil, err
		}
		competencies = append(competencies, comp)
	}
	return competencies, rows.Err()
}

func (r *PgDirectoryRepository) ListQuestions(ctx context.Context, role, competency, questionType string) ([]domain.Question, error) {
	const query = `
		SELECT DISTINCT id, role_name, competence_name, question_type,
		       question, question_answer,
		       COALESCE(knowledge_area, ''), COALESCE(main_job, '')
		FROM exam_questions
		WHERE role_name = $1 AND competence_name = $2 AND question_type = $3
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, role, competency, questionType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(
			&q.ID,
			&q.RoleName,
			&q.CompetenceName,
			&q.QuestionType,
			&q.Question,
			&q.Answer,
			&q.KnowledgeArea,
			&q.MainJob,
		); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetCase returns nil without error when the pair has no case attached.
func (r *PgDirectoryRepository) GetCase(ctx context.Context, role, competency string) (*domain.Case, error) {
	const query = `
		SELECT id, role_name, competence_name, main_job,
		       situation, case_task, case_answer, COALESCE(knowledge_area, '')
		FROM exam_cases
		WHERE role_name = $1 AND competence_name = $2
		LIMIT 1
	`
	var c domain.Case
	err := r.pool.QueryRow(ctx, query, role, competency).Scan(
		&c.ID,
		&c.RoleName,
		&c.CompetenceName,
		&c.MainJob,
		&c.Situation,
		&c.Task,
		&c.Answer,
		&c.KnowledgeArea,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
