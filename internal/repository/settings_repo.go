package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dama-exam/internal/domain"
)

// SettingsRepository stores judge provider/model/tuning rows managed by
// admins. Reads return ErrNotConfigured when nothing is selected yet.
type SettingsRepository interface {
	SelectedProvider(ctx context.Context) (domain.Provider, error)
	SelectedModel(ctx context.Context) (domain.Model, error)
	JudgeSettings(ctx context.Context) (domain.JudgeSettings, error)
	SelectModel(ctx context.Context, name string) error
	UpdateTemperature(ctx context.Context, temperature float64) error
	UpdatePrompt(ctx context.Context, prompt string) error
}

var ErrNotConfigured = errors.New("judge settings not configured")

type PgSettingsRepository struct {
	pool *pgxpool.Pool
}

func NewPgSettingsRepository(pool *pgxpool.Pool) *PgSettingsRepository {
	return &PgSettingsRepository{pool: pool}
}

// SelectedProvider returns the provider owning the selected model.
func (r *PgSettingsRepository) SelectedProvider(ctx context.Context) (domain.Provider, error) {
	const query = `
		SELECT p.id, p.name, p.token, p.url
		FROM ai_providers p
		JOIN ai_models m ON m.provider_id = p.id
		WHERE m.selected
		LIMIT 1
	`
	var p domain.Provider
	err := r.pool.QueryRow(ctx, query).Scan(&p.ID, &p.Name, &p.Token, &p.URL)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Provider{}, ErrNotConfigured
	}
	return p, err
}

func (r *PgSettingsRepository) SelectedModel(ctx context.Context) (domain.Model, error) {
	const query = `
		SELECT id, name, selected, provider_id
		FROM ai_models
		WHERE selected
		LIMIT 1
	`
	var m domain.Model
	err := r.pool.QueryRow(ctx, query).Scan(&m.ID, &m.Name, &m.Selected, &m.ProviderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Model{}, ErrNotConfigured
	}
	return m, err
}

func (r *PgSettingsRepository) JudgeSettings(ctx context.Context) (domain.JudgeSettings, error) {
	const query = `
		SELECT temperature, COALESCE(prompt, '')
		FROM ai_settings
		LIMIT 1
	`
	var s domain.JudgeSettings
	err := r.pool.QueryRow(ctx, query).Scan(&s.Temperature, &s.Prompt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.JudgeSettings{}, ErrNotConfigured
	}
	return s, err
}

// SelectModel marks one model as selected and clears the previous choice.
func (r *PgSettingsRepository) SelectModel(ctx context.Context, name string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE ai_models SET selected = false WHERE selected`); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE ai_models SET selected = true WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotConfigured
	}
	return tx.Commit(ctx)
}

func (r *PgSettingsRepository) UpdateTemperature(ctx context.Context, temperature float64) error {
	_, err := r.pool.Exec(ctx, `UPDATE ai_settings SET temperature = $1`, temperature)
	return err
}

func (r *PgSettingsRepository) UpdatePrompt(ctx context.Context, prompt string) error {
	_, err := r.pool.Exec(ctx, `UPDATE ai_settings SET prompt = $1`, prompt)
	return err
}
