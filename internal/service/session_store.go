package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dama-exam/internal/domain"
)

// SessionStore keeps transient exam state per user: the full session
// blob plus a per-question answer cache and per-question token usage.
// The two representations are independent: the report is
// built from the answer cache so accumulation survives a corrupted
// session blob. Every write refreshes the same TTL.
type SessionStore interface {
	SaveSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, userID string) (*domain.Session, error)
	SaveAnswer(ctx context.Context, userID string, questionIdx int, record domain.AnswerRecord) error
	GetAnswers(ctx context.Context, userID string) ([]domain.AnswerRecord, error)
	SaveUsage(ctx context.Context, userID string, questionIdx int, usage domain.TokenUsage) error
	GetUsage(ctx context.Context, userID string) ([]domain.TokenUsage, error)
	Clear(ctx context.Context, userID string) error
}

// redisCommander is the slice of go-redis used by the store.
type redisCommander interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

type RedisSessionStore struct {
	client redisCommander
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisSessionStore{client: client, ttl: ttl, logger: logger}
}

func sessionKey(userID string) string { return "exam:" + userID + ":session" }

func answerKey(userID string, idx int) string {
	return fmt.Sprintf("exam:%s:question:%d", userID, idx)
}

func usageKey(userID string, idx int) string {
	return fmt.Sprintf("exam:%s:analytics:%d", userID, idx)
}

func (s *RedisSessionStore) SaveSession(ctx context.Context, session *domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.client.Set(ctx, sessionKey(session.UserID), payload, s.ttl).Err()
}

// GetSession returns (nil, nil) when no session exists; a missing key
// is an absence signal, not an error.
func (s *RedisSessionStore) GetSession(ctx context.Context, userID string) (*domain.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		// A corrupted blob counts as absence; the answer cache is the
		// recovery path.
		if s.logger != nil {
			s.logger.Warn("corrupted session blob, treating as absent",
				zap.String("user_id", userID), zap.Error(err))
		}
		return nil, nil
	}
	return &session, nil
}

func (s *RedisSessionStore) SaveAnswer(ctx context.Context, userID string, questionIdx int, record domain.AnswerRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	return s.client.Set(ctx, answerKey(userID, questionIdx), payload, s.ttl).Err()
}

// GetAnswers reads the per-question cache in question order. Entries
// that fail to decode are skipped.
func (s *RedisSessionStore) GetAnswers(ctx context.Context, userID string) ([]domain.AnswerRecord, error) {
	keys, err := s.scanKeys(ctx, "exam:"+userID+":question:*")
	if err != nil {
		return nil, err
	}
	sortByIndexSuffix(keys)

	var answers []domain.AnswerRecord
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var record domain.AnswerRecord
		if err := json.Unmarshal(data, &record); err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping undecodable answer entry", zap.String("key", key), zap.Error(err))
			}
			continue
		}
		answers = append(answers, record)
	}
	return answers, nil
}

func (s *RedisSessionStore) SaveUsage(ctx context.Context, userID string, questionIdx int, usage domain.TokenUsage) error {
	payload, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}
	return s.client.Set(ctx, usageKey(userID, questionIdx), payload, s.ttl).Err()
}

func (s *RedisSessionStore) GetUsage(ctx context.Context, userID string) ([]domain.TokenUsage, error) {
	keys, err := s.scanKeys(ctx, "exam:"+userID+":analytics:*")
	if err != nil {
		return nil, err
	}

	var usages []domain.TokenUsage
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var usage domain.TokenUsage
		if err := json.Unmarshal(data, &usage); err != nil {
			continue
		}
		usages = append(usages, usage)
	}
	return usages, nil
}

// Clear removes the session blob, the answer cache and usage entries.
func (s *RedisSessionStore) Clear(ctx context.Context, userID string) error {
	keys, err := s.scanKeys(ctx, "exam:"+userID+":*")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// sortByIndexSuffix orders keys by their numeric question index so the
// report rows come out in question order.
func sortByIndexSuffix(keys []string) {
	idx := func(key string) int {
		pos := strings.LastIndexByte(key, ':')
		if pos == -1 {
			return 0
		}
		n, err := strconv.Atoi(key[pos+1:])
		if err != nil {
			return 0
		}
		return n
	}
	sort.Slice(keys, func(i, j int) bool { return idx(keys[i]) < idx(keys[j]) })
}

func (s *RedisSessionStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}
