package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"polls-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestCreateQuestion(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, Options{})

	q, err := svc.CreateQuestion(ctx, QuestionInput{
		QuestionText: "  What's up?  ",
		Choices:      []string{"Not much", "The sky"},
	})
	require.NoError(t, err)
	assert.Equal(t, "What's up?", q.QuestionText)
	assert.True(t, q.PubDate.Equal(testNow))
	assert.Nil(t, q.EndDate)

	var choices []models.Choice
	require.NoError(t, db.Where("question_id = ?", q.ID).Find(&choices).Error)
	assert.Len(t, choices, 2)
}

func TestCreateQuestion_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})

	tests := []struct {
		name  string
		input QuestionInput
	}{
		{"empty text", QuestionInput{QuestionText: "  "}},
		{"text too long", QuestionInput{QuestionText: strings.Repeat("x", 201)}},
		{"end before publication", QuestionInput{
			QuestionText: "Q",
			PubDate:      timePtr(testNow),
			EndDate:      timePtr(testNow.Add(-time.Minute)),
		}},
		{"empty choice", QuestionInput{QuestionText: "Q", Choices: []string{"A", ""}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateQuestion(ctx, tc.input)
			assert.ErrorIs(t, err, ErrInvalidQuestion)
		})
	}

	_, err := svc.CreateQuestion(ctx, QuestionInput{QuestionText: strings.Repeat("é", 200)})
	assert.NoError(t, err)
}

func TestUpdateQuestion(t *testing.T) {
	ctx := context.Background()
	results := newMemoryResults()
	svc, db := newTestService(t, Options{Results: results})
	q := createQuestion(t, db, "Old", -1, "A")

	end := testNow.Add(48 * time.Hour)
	updated, err := svc.UpdateQuestion(ctx, q.ID, QuestionInput{
		QuestionText: "New",
		PubDate:      timePtr(testNow.Add(-2 * time.Hour)),
		EndDate:      &end,
	})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.QuestionText)

	var stored models.Question
	require.NoError(t, db.First(&stored, q.ID).Error)
	assert.Equal(t, "New", stored.QuestionText)
	require.NotNil(t, stored.EndDate)
	assert.True(t, stored.EndDate.Equal(end))
	assert.Equal(t, []uint{q.ID}, results.invalidated)

	_, err = svc.UpdateQuestion(ctx, q.ID, QuestionInput{
		QuestionText: "New",
		PubDate:      timePtr(testNow),
		EndDate:      timePtr(testNow.Add(-time.Hour)),
	})
	assert.ErrorIs(t, err, ErrInvalidQuestion)

	_, err = svc.UpdateQuestion(ctx, 9999, QuestionInput{QuestionText: "x"})
	assert.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestAddAndDeleteChoice(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, Options{})
	user := createUser(t, db, "user")
	q := createQuestion(t, db, "Question", -1, "A")

	c, err := svc.AddChoice(ctx, q.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, q.ID, c.QuestionID)

	_, err = svc.AddChoice(ctx, 9999, "C")
	assert.ErrorIs(t, err, ErrQuestionNotFound)

	_, err = svc.RecordVote(ctx, q.ID, fmt.Sprint(c.ID), user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), countVotes(t, db))

	require.NoError(t, svc.DeleteChoice(ctx, c.ID))
	assert.Zero(t, countVotes(t, db))

	assert.ErrorIs(t, svc.DeleteChoice(ctx, c.ID), ErrChoiceNotFound)
}

func TestAllQuestions_IncludesUnpublished(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, Options{})
	createQuestion(t, db, "Past", -1)
	createQuestion(t, db, "Future", 1)

	questions, err := svc.AllQuestions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Future", "Past"}, questionTexts(questions))
}
