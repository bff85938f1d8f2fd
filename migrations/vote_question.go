package migrations

import (
	"fmt"
	"log"

	"gorm.io/gorm"
)

// VoteUniqueIndex is the index keeping one vote per user per question
const VoteUniqueIndex = "idx_votes_user_question"

// legacyVote is the minimal shape of the votes table used by this migration
type legacyVote struct {
	QuestionID uint `gorm:"not null;default:0"`
}

func (legacyVote) TableName() string {
	return "votes"
}

// BackfillVoteQuestion prepares a votes table created before votes carried
// their question id. It adds and fills the question_id column from each
// vote's choice, then drops duplicate votes per (user, question) keeping the
// newest, so the unique index can be created by AutoMigrate.
func BackfillVoteQuestion(db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasTable(&legacyVote{}) {
		log.Println("Migration skipped: votes table does not exist yet")
		return nil
	}

	if !m.HasColumn(&legacyVote{}, "question_id") {
		log.Println("Migration: adding question_id to votes")
		if err := m.AddColumn(&legacyVote{}, "QuestionID"); err != nil {
			return fmt.Errorf("add votes.question_id: %w", err)
		}
	}

	res := db.Exec(`UPDATE votes SET question_id = (
		SELECT choices.question_id FROM choices WHERE choices.id = votes.choice_id
	) WHERE question_id = 0 OR question_id IS NULL`)
	if res.Error != nil {
		return fmt.Errorf("backfill votes.question_id: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("Migration: backfilled question_id on %d votes", res.RowsAffected)
	}

	if m.HasIndex(&legacyVote{}, VoteUniqueIndex) {
		return nil
	}

	res = db.Exec(`DELETE FROM votes WHERE id NOT IN (
		SELECT id FROM (SELECT MAX(id) AS id FROM votes GROUP BY user_id, question_id) AS keep_votes
	)`)
	if res.Error != nil {
		return fmt.Errorf("collapse duplicate votes: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("Migration: removed %d duplicate votes", res.RowsAffected)
	}
	return nil
}
