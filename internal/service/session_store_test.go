package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"dama-exam/internal/domain"
)

func newTestSessionStore(client redisCommander) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: time.Hour, logger: zap.NewNop()}
}

func TestRedisSessionStore_SessionRoundTrip(t *testing.T) {
	store := newTestSessionStore(newFakeRedis())
	ctx := context.Background()

	session := &domain.Session{
		UserID:       "u1",
		Phase:        domain.PhaseAnsweringQuestion,
		ExamineeName: "Ivan Petrov",
		Role:         "Data Steward",
		Competency:   "Data Quality",
		Questions:    []domain.Question{{ID: 1, Question: "Q1"}},
	}
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	got, err := store.GetSession(ctx, "u1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if got.Phase != domain.PhaseAnsweringQuestion || got.ExamineeName != "Ivan Petrov" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Questions) != 1 || got.Questions[0].ID != 1 {
		t.Fatalf("questions not preserved: %+v", got.Questions)
	}
}

func TestRedisSessionStore_MissingSessionIsAbsence(t *testing.T) {
	store := newTestSessionStore(newFakeRedis())

	got, err := store.GetSession(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("expected nil error for missing session, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil session, got %+v", got)
	}
}

func TestRedisSessionStore_CorruptedBlobIsAbsence(t *testing.T) {
	client := newFakeRedis()
	client.data["exam:u1:session"] = "{not json"
	store := newTestSessionStore(client)

	got, err := store.GetSession(context.Background(), "u1")
	if err != nil {
		t.Fatalf("expected nil error for corrupted blob, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil session, got %+v", got)
	}
}

func TestRedisSessionStore_AnswersKeepQuestionOrder(t *testing.T) {
	store := newTestSessionStore(newFakeRedis())
	ctx := context.Background()

	// Write out of order, with a double digit index that would sort
	// wrong lexicographically.
	for _, idx := range []int{10, 0, 2} {
		record := domain.AnswerRecord{ItemID: idx, UserAnswer: "answer"}
		if err := store.SaveAnswer(ctx, "u1", idx, record); err != nil {
			t.Fatalf("save answer %d: %v", idx, err)
		}
	}

	answers, err := store.GetAnswers(ctx, "u1")
	if err != nil {
		t.Fatalf("get answers: %v", err)
	}
	if len(answers) != 3 {
		t.Fatalf("expected 3 answers, got %d", len(answers))
	}
	for i, want := range []int{0, 2, 10} {
		if answers[i].ItemID != want {
			t.Fatalf("position %d: expected item %d, got %d", i, want, answers[i].ItemID)
		}
	}
}

func TestRedisSessionStore_ClearRemovesEverything(t *testing.T) {
	client := newFakeRedis()
	store := newTestSessionStore(client)
	ctx := context.Background()

	if err := store.SaveSession(ctx, &domain.Session{UserID: "u1"}); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := store.SaveAnswer(ctx, "u1", 0, domain.AnswerRecord{UserAnswer: "a"}); err != nil {
		t.Fatalf("save answer: %v", err)
	}
	if err := store.SaveUsage(ctx, "u1", 0, domain.TokenUsage{TotalTokens: 10}); err != nil {
		t.Fatalf("save usage: %v", err)
	}
	if err := store.SaveSession(ctx, &domain.Session{UserID: "u2"}); err != nil {
		t.Fatalf("save other session: %v", err)
	}

	if err := store.Clear(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if got, _ := store.GetSession(ctx, "u1"); got != nil {
		t.Fatalf("expected u1 session gone, got %+v", got)
	}
	if answers, _ := store.GetAnswers(ctx, "u1"); len(answers) != 0 {
		t.Fatalf("expected u1 answers gone, got %d", len(answers))
	}
	if got, _ := store.GetSession(ctx, "u2"); got == nil {
		t.Fatal("u2 session must survive a u1 clear")
	}
}

func TestRedisSessionStore_UsageRoundTrip(t *testing.T) {
	store := newTestSessionStore(newFakeRedis())
	ctx := context.Background()

	for idx, usage := range []domain.TokenUsage{
		{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		{PromptTokens: 20, CompletionTokens: 7, TotalTokens: 27},
	} {
		if err := store.SaveUsage(ctx, "u1", idx, usage); err != nil {
			t.Fatalf("save usage %d: %v", idx, err)
		}
	}

	usages, err := store.GetUsage(ctx, "u1")
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	if len(usages) != 2 {
		t.Fatalf("expected 2 usage entries, got %d", len(usages))
	}
	var total int
	for _, u := range usages {
		total += u.TotalTokens
	}
	if total != 42 {
		t.Fatalf("expected 42 total tokens, got %d", total)
	}
}
