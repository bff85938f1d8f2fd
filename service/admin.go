package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"polls-backend/models"
	"polls-backend/repository"
)

// QuestionInput carries the editable fields of a question
type QuestionInput struct {
	QuestionText string
	PubDate      *time.Time // nil means now on create
	EndDate      *time.Time
	Choices      []string // create only
}

func validateText(field, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidQuestion, field)
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return "", fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidQuestion, field, MaxTextLength)
	}
	return text, nil
}

func (s *PollService) buildQuestion(q *models.Question, in QuestionInput) error {
	text, err := validateText("question_text", in.QuestionText)
	if err != nil {
		return err
	}
	q.QuestionText = text

	if in.PubDate != nil {
		q.PubDate = in.PubDate.UTC()
	} else if q.PubDate.IsZero() {
		q.PubDate = s.now().UTC()
	}

	q.EndDate = nil
	if in.EndDate != nil {
		end := in.EndDate.UTC()
		q.EndDate = &end
	}

	if err := q.ValidateWindow(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuestion, err)
	}
	return nil
}

// CreateQuestion creates a question with its initial choices
func (s *PollService) CreateQuestion(ctx context.Context, in QuestionInput) (*models.Question, error) {
	q := &models.Question{}
	if err := s.buildQuestion(q, in); err != nil {
		return nil, err
	}

	for _, raw := range in.Choices {
		text, err := validateText("choice_text", raw)
		if err != nil {
			return nil, err
		}
		q.Choices = append(q.Choices, models.Choice{ChoiceText: text})
	}

	if err := s.repo.CreateQuestion(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	log.Printf("Created question %d: %s", q.ID, q.QuestionText)
	return q, nil
}

// UpdateQuestion replaces the text and window of a question
func (s *PollService) UpdateQuestion(ctx context.Context, id uint, in QuestionInput) (*models.Question, error) {
	q, err := s.Question(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.buildQuestion(q, in); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateQuestion(ctx, q); err != nil {
		return nil, fmt.Errorf("update question %d: %w", id, err)
	}
	if err := s.InvalidateResults(ctx, id); err != nil {
		log.Printf("Failed to invalidate results of question %d: %v", id, err)
	}
	return q, nil
}

// AddChoice appends a choice to the question
func (s *PollService) AddChoice(ctx context.Context, questionID uint, choiceText string) (*models.Choice, error) {
	if _, err := s.Question(ctx, questionID); err != nil {
		return nil, err
	}
	text, err := validateText("choice_text", choiceText)
	if err != nil {
		return nil, err
	}

	c := &models.Choice{QuestionID: questionID, ChoiceText: text}
	if err := s.repo.CreateChoice(ctx, c); err != nil {
		return nil, fmt.Errorf("create choice: %w", err)
	}
	if err := s.InvalidateResults(ctx, questionID); err != nil {
		log.Printf("Failed to invalidate results of question %d: %v", questionID, err)
	}
	return c, nil
}

// DeleteChoice removes a choice together with the votes cast for it
func (s *PollService) DeleteChoice(ctx context.Context, id uint) error {
	c, err := s.repo.ChoiceByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrChoiceNotFound
	}
	if err != nil {
		return fmt.Errorf("load choice %d: %w", id, err)
	}

	if err := s.repo.DeleteChoice(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrChoiceNotFound
		}
		return fmt.Errorf("delete choice %d: %w", id, err)
	}
	if err := s.InvalidateResults(ctx, c.QuestionID); err != nil {
		log.Printf("Failed to invalidate results of question %d: %v", c.QuestionID, err)
	}
	return nil
}

// AllQuestions lists every question including unpublished ones
func (s *PollService) AllQuestions(ctx context.Context) ([]models.Question, error) {
	questions, err := s.repo.AllQuestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}
