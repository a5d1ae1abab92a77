package service

import (
	"context"

	"dama-exam/internal/domain"
)

const (
	questionTarget = 10
	perTypeTarget  = 5
)

// preparedExam is the question set assembled for one (role, competency)
// pair before the examinee confirms the start.
type preparedExam struct {
	Questions []domain.Question
	Case      *domain.Case
}

func (s *ExamService) prepareExam(ctx context.Context, role, competency string) (preparedExam, error) {
	theory, err := s.directory.ListQuestions(ctx, role, competency, domain.QuestionTypeTheory)
	if err != nil {
		return preparedExam{}, err
	}
	practice, err := s.directory.ListQuestions(ctx, role, competency, domain.QuestionTypePractice)
	if err != nil {
		return preparedExam{}, err
	}
	caseItem, err := s.directory.GetCase(ctx, role, competency)
	if err != nil {
		return preparedExam{}, err
	}

	return preparedExam{
		Questions: balanceQuestions(theory, practice),
		Case:      caseItem,
	}, nil
}

// balanceQuestions mixes theory and practice toward a 10-item set:
// 5 of each when both pools allow it, otherwise an even split at the
// smaller pool's size with the shortfall filled from the larger pool.
func balanceQuestions(theory, practice []domain.Question) []domain.Question {
	if len(theory) >= perTypeTarget && len(practice) >= perTypeTarget {
		selected := make([]domain.Question, 0, questionTarget)
		selected = append(selected, theory[:perTypeTarget]...)
		selected = append(selected, practice[:perTypeTarget]...)
		return selected
	}

	minCount := min(len(theory), len(practice))
	selected := make([]domain.Question, 0, questionTarget)
	selected = append(selected, theory[:minCount]...)
	selected = append(selected, practice[:minCount]...)

	remaining := questionTarget - len(selected)
	if remaining > 0 {
		if len(theory) > minCount {
			end := min(minCount+remaining, len(theory))
			selected = append(selected, theory[minCount:end]...)
		} else {
			end := min(minCount+remaining, len(practice))
			selected = append(selected, practice[minCount:end]...)
		}
	}
	return selected
}
