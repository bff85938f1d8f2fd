package models

import (
	"errors"
	"time"
)

// ErrEndBeforePublication is returned when a question closes before it opens
var ErrEndBeforePublication = errors.New("end date must not be before the publication date")

// RecentWindow is how far back a publication still counts as recent
const RecentWindow = 24 * time.Hour

// Question represents a poll prompt with a publication window
type Question struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	QuestionText string     `gorm:"size:200;not null" json:"question_text"`
	PubDate      time.Time  `gorm:"not null;index" json:"pub_date"`
	EndDate      *time.Time `json:"end_date,omitempty"` // nil keeps voting open forever
	Choices      []Choice   `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"choices,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsPublished reports whether the question is visible at now
func (q *Question) IsPublished(now time.Time) bool {
	return !now.Before(q.PubDate)
}

// WasPublishedRecently reports whether the publication date falls within
// [now-24h, now].
func (q *Question) WasPublishedRecently(now time.Time) bool {
	return !q.PubDate.Before(now.Add(-RecentWindow)) && !q.PubDate.After(now)
}

// CanVote reports whether now lies inside the voting window
func (q *Question) CanVote(now time.Time) bool {
	if now.Before(q.PubDate) {
		return false
	}
	return q.EndDate == nil || !now.After(*q.EndDate)
}

// ValidateWindow checks that the end date, if any, is not before the publication date
func (q *Question) ValidateWindow() error {
	if q.EndDate != nil && q.EndDate.Before(q.PubDate) {
		return ErrEndBeforePublication
	}
	return nil
}

func (q *Question) String() string {
	return q.QuestionText
}

// Choice is one selectable answer of a question. Its vote count is derived
// from the votes table and never stored.
type Choice struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	QuestionID uint      `gorm:"not null;index" json:"question_id"`
	ChoiceText string    `gorm:"size:200;not null" json:"choice_text"`
	CreatedAt  time.Time `json:"created_at"`
}

func (c *Choice) String() string {
	return c.ChoiceText
}

// Vote is a user's selection of a choice. QuestionID always mirrors
// Choice.QuestionID; the unique index on (user_id, question_id) keeps one
// vote per user per question.
type Vote struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_votes_user_question" json:"user_id"`
	QuestionID uint      `gorm:"not null;uniqueIndex:idx_votes_user_question;index" json:"question_id"`
	ChoiceID   uint      `gorm:"not null;index" json:"choice_id"`
	Choice     Choice    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	User       User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// QuestionRef returns the question id the vote belongs to, following the
// loaded choice when present.
func (v *Vote) QuestionRef() uint {
	if v.Choice.ID != 0 {
		return v.Choice.QuestionID
	}
	return v.QuestionID
}
