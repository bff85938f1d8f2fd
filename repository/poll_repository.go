package repository

import (
	"context"
	"errors"
	"time"

	"polls-backend/models"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a unique index
	ErrDuplicate = errors.New("duplicate record")
)

// translate maps gorm errors onto the repository sentinels
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

// ChoiceCount is the number of votes recorded for one choice
type ChoiceCount struct {
	ChoiceID uint
	Votes    int64
}

// PollRepository is the gorm-backed store for questions, choices and votes
type PollRepository struct {
	db *gorm.DB
}

// NewPollRepository creates a repository on db
func NewPollRepository(db *gorm.DB) *PollRepository {
	return &PollRepository{db: db}
}

// Transaction runs fn with a repository bound to a single database transaction
func (r *PollRepository) Transaction(ctx context.Context, fn func(tx *PollRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PollRepository{db: tx})
	})
}

// LatestPublished returns up to limit questions with pub_date <= now, newest first
func (r *PollRepository) LatestPublished(ctx context.Context, now time.Time, limit int) ([]models.Question, error) {
	var questions []models.Question
	err := r.db.WithContext(ctx).
		Where("pub_date <= ?", now).
		Order("pub_date DESC").
		Order("id DESC").
		Limit(limit).
		Find(&questions).Error
	return questions, translate(err)
}

// QuestionByID loads a question with its choices ordered by id
func (r *PollRepository) QuestionByID(ctx context.Context, id uint) (*models.Question, error) {
	var q models.Question
	err := r.db.WithContext(ctx).
		Preload("Choices", func(db *gorm.DB) *gorm.DB { return db.Order("choices.id ASC") }).
		First(&q, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &q, nil
}

// AllQuestions returns every question, published or not, newest first
func (r *PollRepository) AllQuestions(ctx context.Context) ([]models.Question, error) {
	var questions []models.Question
	err := r.db.WithContext(ctx).
		Preload("Choices", func(db *gorm.DB) *gorm.DB { return db.Order("choices.id ASC") }).
		Order("pub_date DESC").
		Find(&questions).Error
	return questions, translate(err)
}

// CreateQuestion inserts the question together with any choices it carries
func (r *PollRepository) CreateQuestion(ctx context.Context, q *models.Question) error {
	return translate(r.db.WithContext(ctx).Create(q).Error)
}

// UpdateQuestion saves the question's own columns; choices are left untouched
func (r *PollRepository) UpdateQuestion(ctx context.Context, q *models.Question) error {
	err := r.db.WithContext(ctx).Model(q).Updates(map[string]interface{}{
		"question_text": q.QuestionText,
		"pub_date":      q.PubDate,
		"end_date":      q.EndDate,
	}).Error
	return translate(err)
}

// CreateChoice inserts a choice
func (r *PollRepository) CreateChoice(ctx context.Context, c *models.Choice) error {
	return translate(r.db.WithContext(ctx).Create(c).Error)
}

// ChoiceByID loads a single choice
func (r *PollRepository) ChoiceByID(ctx context.Context, id uint) (*models.Choice, error) {
	var c models.Choice
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// ChoiceForQuestion loads a choice only if it belongs to the question
func (r *PollRepository) ChoiceForQuestion(ctx context.Context, questionID, choiceID uint) (*models.Choice, error) {
	var c models.Choice
	err := r.db.WithContext(ctx).
		Where("id = ? AND question_id = ?", choiceID, questionID).
		First(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// DeleteChoice removes a choice and its votes
func (r *PollRepository) DeleteChoice(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("choice_id = ?", id).Delete(&models.Vote{}).Error; err != nil {
			return translate(err)
		}
		res := tx.Delete(&models.Choice{}, id)
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// VoteFor returns the user's vote on the question with its choice loaded
func (r *PollRepository) VoteFor(ctx context.Context, userID, questionID uint) (*models.Vote, error) {
	var v models.Vote
	err := r.db.WithContext(ctx).
		Preload("Choice").
		Where("user_id = ? AND question_id = ?", userID, questionID).
		First(&v).Error
	if err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

// CreateVote inserts a new vote. A concurrent insert for the same user and
// question yields ErrDuplicate.
func (r *PollRepository) CreateVote(ctx context.Context, v *models.Vote) error {
	return translate(r.db.WithContext(ctx).Omit("Choice", "User").Create(v).Error)
}

// UpdateVoteChoice points an existing vote at another choice
func (r *PollRepository) UpdateVoteChoice(ctx context.Context, v *models.Vote, choiceID uint) error {
	err := r.db.WithContext(ctx).Model(v).Omit("Choice", "User").Update("choice_id", choiceID).Error
	if err != nil {
		return translate(err)
	}
	v.ChoiceID = choiceID
	return nil
}

// CountVotes returns the number of votes per choice of the question. Choices
// without votes are absent from the result.
func (r *PollRepository) CountVotes(ctx context.Context, questionID uint) ([]ChoiceCount, error) {
	var counts []ChoiceCount
	err := r.db.WithContext(ctx).
		Model(&models.Vote{}).
		Select("votes.choice_id AS choice_id, COUNT(*) AS votes").
		Joins("JOIN choices ON choices.id = votes.choice_id").
		Where("choices.question_id = ?", questionID).
		Group("votes.choice_id").
		Scan(&counts).Error
	return counts, translate(err)
}
