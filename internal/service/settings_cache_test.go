package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"dama-exam/internal/domain"
)

type fakeSettingsRepo struct {
	provider domain.Provider
	model    domain.Model
	judge    domain.JudgeSettings
	err      error

	modelReads int
}

func (f *fakeSettingsRepo) SelectedProvider(_ context.Context) (domain.Provider, error) {
	return f.provider, f.err
}

func (f *fakeSettingsRepo) SelectedModel(_ context.Context) (domain.Model, error) {
	f.modelReads++
	return f.model, f.err
}

func (f *fakeSettingsRepo) JudgeSettings(_ context.Context) (domain.JudgeSettings, error) {
	return f.judge, f.err
}

func (f *fakeSettingsRepo) SelectModel(_ context.Context, _ string) error { return f.err }

func (f *fakeSettingsRepo) UpdateTemperature(_ context.Context, _ float64) error { return f.err }

func (f *fakeSettingsRepo) UpdatePrompt(_ context.Context, _ string) error { return f.err }

func configuredRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{
		provider: domain.Provider{ID: 1, Name: "openai", Token: "sk-test", URL: "https://api.openai.com/v1"},
		model:    domain.Model{ID: 1, Name: "gpt-4o", Selected: true, ProviderID: 1},
		judge:    domain.JudgeSettings{Temperature: 0.3, Prompt: "Be strict."},
	}
}

func newTestSettingsCache(client redisCommander, repo *fakeSettingsRepo) *SettingsCache {
	return &SettingsCache{client: client, settings: repo, logger: zap.NewNop()}
}

func TestSettingsCache_ReadThrough(t *testing.T) {
	client := newFakeRedis()
	repo := configuredRepo()
	cache := newTestSettingsCache(client, repo)

	cfg := cache.Load(context.Background())
	if !cfg.Usable() {
		t.Fatalf("expected usable config, got %+v", cfg)
	}
	if cfg.Model != "gpt-4o" || cfg.Token != "sk-test" || cfg.Temperature != 0.3 || cfg.Prompt != "Be strict." {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if repo.modelReads != 1 {
		t.Fatalf("expected one db read, got %d", repo.modelReads)
	}

	// Second load is served from the cache.
	cfg = cache.Load(context.Background())
	if cfg.Model != "gpt-4o" {
		t.Fatalf("unexpected cached config: %+v", cfg)
	}
	if repo.modelReads != 1 {
		t.Fatalf("cached load must not hit the db, got %d reads", repo.modelReads)
	}
}

func TestSettingsCache_InvalidateForcesReload(t *testing.T) {
	client := newFakeRedis()
	repo := configuredRepo()
	cache := newTestSettingsCache(client, repo)

	cache.Load(context.Background())
	repo.model.Name = "gpt-4o-mini"
	cache.Invalidate(context.Background())

	cfg := cache.Load(context.Background())
	if cfg.Model != "gpt-4o-mini" {
		t.Fatalf("expected reloaded model, got %q", cfg.Model)
	}
	if repo.modelReads != 2 {
		t.Fatalf("expected a second db read after invalidation, got %d", repo.modelReads)
	}
}

func TestSettingsCache_NotConfiguredIsUnusable(t *testing.T) {
	repo := &fakeSettingsRepo{}
	cache := newTestSettingsCache(newFakeRedis(), repo)

	cfg := cache.Load(context.Background())
	if cfg.Usable() {
		t.Fatalf("expected unusable config, got %+v", cfg)
	}
}

func TestSettingsCache_RedisFailureFallsThroughToDB(t *testing.T) {
	client := newFakeRedis()
	client.getErr = errTest
	client.setErr = errTest
	repo := configuredRepo()
	cache := newTestSettingsCache(client, repo)

	cfg := cache.Load(context.Background())
	if !cfg.Usable() {
		t.Fatalf("expected db fallback to produce a usable config, got %+v", cfg)
	}
}
