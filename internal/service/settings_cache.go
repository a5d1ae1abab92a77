package service

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dama-exam/internal/repository"
)

const (
	keyJudgeModel       = "judge:model"
	keyJudgeToken       = "judge:token"
	keyJudgeURL         = "judge:url"
	keyJudgeTemperature = "judge:temperature"
	keyJudgePrompt      = "judge:prompt"
)

// JudgeConfig is one resolved snapshot of the runtime judge settings.
type JudgeConfig struct {
	Model       string
	Token       string
	URL         string
	Temperature float64
	Prompt      string
}

// SettingsCache is a redis read-through cache over the admin-managed
// judge settings. Every lookup soft-fails: a redis or database problem
// yields an empty value, never an error, and the scoring layer decides
// what an unusable snapshot means.
type SettingsCache struct {
	client   redisCommander
	settings repository.SettingsRepository
	logger   *zap.Logger
}

func NewSettingsCache(client *redis.Client, settings repository.SettingsRepository, logger *zap.Logger) *SettingsCache {
	return &SettingsCache{client: client, settings: settings, logger: logger}
}

// Load resolves the full judge configuration, filling the cache from
// the database as needed.
func (c *SettingsCache) Load(ctx context.Context) JudgeConfig {
	cfg := JudgeConfig{
		Model: c.loadString(ctx, keyJudgeModel, c.dbModel),
		Token: c.loadString(ctx, keyJudgeToken, c.dbToken),
		URL:   c.loadString(ctx, keyJudgeURL, c.dbURL),
	}
	cfg.Prompt = c.loadString(ctx, keyJudgePrompt, c.dbPrompt)

	raw := c.loadString(ctx, keyJudgeTemperature, c.dbTemperature)
	if raw != "" {
		if t, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.Temperature = t
		} else if c.logger != nil {
			c.logger.Warn("invalid temperature in cache", zap.String("value", raw))
		}
	}
	return cfg
}

// Usable reports whether the snapshot can drive a judge call.
func (cfg JudgeConfig) Usable() bool {
	return cfg.Model != "" && cfg.Token != "" && cfg.URL != ""
}

// Invalidate drops the cached entries so the next Load re-reads the
// database. Called after admin updates.
func (c *SettingsCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, keyJudgeModel, keyJudgeToken, keyJudgeURL, keyJudgeTemperature, keyJudgePrompt).Err(); err != nil && c.logger != nil {
		c.logger.Warn("settings cache invalidation failed", zap.Error(err))
	}
}

func (c *SettingsCache) loadString(ctx context.Context, key string, fromDB func(context.Context) (string, error)) string {
	val, err := c.client.Get(ctx, key).Result()
	if err == nil && val != "" {
		return val
	}
	if err != nil && err != redis.Nil && c.logger != nil {
		c.logger.Warn("settings cache read failed", zap.String("key", key), zap.Error(err))
	}

	val, err = fromDB(ctx)
	if err != nil || val == "" {
		if err != nil && c.logger != nil {
			c.logger.Warn("settings db read failed", zap.String("key", key), zap.Error(err))
		}
		return ""
	}
	if err := c.client.Set(ctx, key, val, 0).Err(); err != nil && c.logger != nil {
		c.logger.Warn("settings cache fill failed", zap.String("key", key), zap.Error(err))
	}
	return val
}

func (c *SettingsCache) dbModel(ctx context.Context) (string, error) {
	m, err := c.settings.SelectedModel(ctx)
	if err != nil {
		return "", err
	}
	return m.Name, nil
}

func (c *SettingsCache) dbToken(ctx context.Context) (string, error) {
	p, err := c.settings.SelectedProvider(ctx)
	if err != nil {
		return "", err
	}
	return p.Token, nil
}

func (c *SettingsCache) dbURL(ctx context.Context) (string, error) {
	p, err := c.settings.SelectedProvider(ctx)
	if err != nil {
		return "", err
	}
	return p.URL, nil
}

func (c *SettingsCache) dbTemperature(ctx context.Context) (string, error) {
	s, err := c.settings.JudgeSettings(ctx)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(s.Temperature, 'f', -1, 64), nil
}

func (c *SettingsCache) dbPrompt(ctx context.Context) (string, error) {
	s, err := c.settings.JudgeSettings(ctx)
	if err != nil {
		return "", err
	}
	return s.Prompt, nil
}
