package service

import (
	"testing"

	"dama-exam/internal/domain"
)

func makeQuestions(questionType string, n int) []domain.Question {
	out := make([]domain.Question, n)
	for i := range out {
		out[i] = domain.Question{ID: i + 1, QuestionType: questionType}
	}
	return out
}

func countByType(questions []domain.Question, questionType string) int {
	var n int
	for _, q := range questions {
		if q.QuestionType == questionType {
			n++
		}
	}
	return n
}

func TestBalanceQuestions(t *testing.T) {
	t.Run("both pools sufficient gives five and five", func(t *testing.T) {
		got := balanceQuestions(
			makeQuestions(domain.QuestionTypeTheory, 12),
			makeQuestions(domain.QuestionTypePractice, 9),
		)
		if len(got) != 10 {
			t.Fatalf("expected 10 questions, got %d", len(got))
		}
		if n := countByType(got, domain.QuestionTypeTheory); n != 5 {
			t.Fatalf("expected 5 theory questions, got %d", n)
		}
		if n := countByType(got, domain.QuestionTypePractice); n != 5 {
			t.Fatalf("expected 5 practice questions, got %d", n)
		}
	})

	t.Run("short practice pool is topped up from theory", func(t *testing.T) {
		got := balanceQuestions(
			makeQuestions(domain.QuestionTypeTheory, 8),
			makeQuestions(domain.QuestionTypePractice, 3),
		)
		if len(got) != 10 {
			t.Fatalf("expected 10 questions, got %d", len(got))
		}
		if n := countByType(got, domain.QuestionTypeTheory); n != 7 {
			t.Fatalf("expected 7 theory questions, got %d", n)
		}
		if n := countByType(got, domain.QuestionTypePractice); n != 3 {
			t.Fatalf("expected 3 practice questions, got %d", n)
		}
	})

	t.Run("short theory pool is topped up from practice", func(t *testing.T) {
		got := balanceQuestions(
			makeQuestions(domain.QuestionTypeTheory, 2),
			makeQuestions(domain.QuestionTypePractice, 20),
		)
		if len(got) != 10 {
			t.Fatalf("expected 10 questions, got %d", len(got))
		}
		if n := countByType(got, domain.QuestionTypeTheory); n != 2 {
			t.Fatalf("expected 2 theory questions, got %d", n)
		}
	})

	t.Run("both pools short yields everything available", func(t *testing.T) {
		got := balanceQuestions(
			makeQuestions(domain.QuestionTypeTheory, 2),
			makeQuestions(domain.QuestionTypePractice, 3),
		)
		if len(got) != 5 {
			t.Fatalf("expected 5 questions, got %d", len(got))
		}
	})

	t.Run("empty pools yield empty set", func(t *testing.T) {
		got := balanceQuestions(nil, nil)
		if len(got) != 0 {
			t.Fatalf("expected no questions, got %d", len(got))
		}
	})
}
