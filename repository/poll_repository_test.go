package repository

import (
	"context"
	"testing"
	"time"

	"polls-backend/database"
	"polls-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return db
}

func seedQuestion(t *testing.T, db *gorm.DB) (*models.Question, *models.User) {
	t.Helper()
	q := &models.Question{
		QuestionText: "Question",
		PubDate:      time.Now().Add(-time.Hour),
		Choices:      []models.Choice{{ChoiceText: "A"}, {ChoiceText: "B"}},
	}
	require.NoError(t, db.Create(q).Error)
	u := &models.User{Username: "user", PasswordHash: "x"}
	require.NoError(t, db.Create(u).Error)
	return q, u
}

func TestCreateVote_OneVotePerUserAndQuestion(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewPollRepository(db)
	q, u := seedQuestion(t, db)

	require.NoError(t, repo.CreateVote(ctx, &models.Vote{UserID: u.ID, QuestionID: q.ID, ChoiceID: q.Choices[0].ID}))

	err := repo.CreateVote(ctx, &models.Vote{UserID: u.ID, QuestionID: q.ID, ChoiceID: q.Choices[1].ID})
	assert.ErrorIs(t, err, ErrDuplicate)

	var n int64
	require.NoError(t, db.Model(&models.Vote{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	vote, err := repo.VoteFor(ctx, u.ID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.Choices[0].ID, vote.ChoiceID)
	assert.Equal(t, "A", vote.Choice.ChoiceText)
}

func TestCreateVote_OtherUserOrQuestion(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewPollRepository(db)
	q, u := seedQuestion(t, db)

	other := &models.User{Username: "other", PasswordHash: "x"}
	require.NoError(t, db.Create(other).Error)
	second := &models.Question{QuestionText: "Second", PubDate: time.Now(), Choices: []models.Choice{{ChoiceText: "C"}}}
	require.NoError(t, db.Create(second).Error)

	require.NoError(t, repo.CreateVote(ctx, &models.Vote{UserID: u.ID, QuestionID: q.ID, ChoiceID: q.Choices[0].ID}))
	require.NoError(t, repo.CreateVote(ctx, &models.Vote{UserID: other.ID, QuestionID: q.ID, ChoiceID: q.Choices[0].ID}))
	require.NoError(t, repo.CreateVote(ctx, &models.Vote{UserID: u.ID, QuestionID: second.ID, ChoiceID: second.Choices[0].ID}))

	counts, err := repo.CountVotes(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, int64(2), counts[0].Votes)
}

func TestVoteFor_NotFound(t *testing.T) {
	db := setupTestDB(t)
	q, u := seedQuestion(t, db)

	_, err := NewPollRepository(db).VoteFor(context.Background(), u.ID, q.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
