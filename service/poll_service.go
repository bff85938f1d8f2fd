package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"polls-backend/models"
	"polls-backend/mq"
	"polls-backend/repository"
)

var (
	ErrQuestionNotFound  = errors.New("question not found")
	ErrChoiceNotFound    = errors.New("choice not found")
	ErrChoiceNotSelected = errors.New("no choice selected")
	ErrNotPublished      = errors.New("question is not published yet")
	ErrVotingClosed      = errors.New("voting on this question has ended")
	ErrLoginRequired     = errors.New("login required")
	ErrInvalidQuestion   = errors.New("invalid question")
)

const (
	// LatestLimit is the number of questions on the listing
	LatestLimit = 5
	// MaxTextLength bounds question and choice texts
	MaxTextLength = 200

	voteLockExpiry = 5 * time.Second
)

// Locker runs fn while holding a named cross-instance lock
type Locker interface {
	WithLock(ctx context.Context, name string, expiry time.Duration, fn func() error) error
}

// ResultsStore caches computed results per question. Every Invalidate bumps
// the question's generation; SetIfGeneration stores nothing once the
// generation has moved past the one read before computing.
type ResultsStore interface {
	Get(ctx context.Context, questionID uint, dest interface{}) (bool, error)
	Generation(ctx context.Context, questionID uint) (int64, error)
	SetIfGeneration(ctx context.Context, questionID uint, generation int64, value interface{}) (bool, error)
	Invalidate(ctx context.Context, questionID uint) error
}

// EventPublisher receives vote events after they are committed
type EventPublisher interface {
	PublishVote(ctx context.Context, event mq.VoteEvent) error
}

// Options wires optional collaborators into PollService. Nil fields disable
// the corresponding feature.
type Options struct {
	Locker            Locker
	Results           ResultsStore
	Events            EventPublisher
	EnforceVoteWindow bool
	Now               func() time.Time
}

// PollService holds the polling rules: listing, the detail gate, the vote
// upsert and results
type PollService struct {
	repo          *repository.PollRepository
	locker        Locker
	results       ResultsStore
	events        EventPublisher
	enforceWindow bool
	now           func() time.Time
}

// NewPollService creates the service
func NewPollService(repo *repository.PollRepository, opts Options) *PollService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &PollService{
		repo:          repo,
		locker:        opts.Locker,
		results:       opts.Results,
		events:        opts.Events,
		enforceWindow: opts.EnforceVoteWindow,
		now:           now,
	}
}

// Now returns the service clock's current time
func (s *PollService) Now() time.Time {
	return s.now()
}

// LatestQuestions returns the five most recently published questions
func (s *PollService) LatestQuestions(ctx context.Context) ([]models.Question, error) {
	questions, err := s.repo.LatestPublished(ctx, s.now(), LatestLimit)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

// Question loads a question with its choices
func (s *PollService) Question(ctx context.Context, id uint) (*models.Question, error) {
	q, err := s.repo.QuestionByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load question %d: %w", id, err)
	}
	return q, nil
}

// DetailView is what the voting form shows
type DetailView struct {
	Question *models.Question
	// CheckedChoiceID is the choice the user voted for, 0 if none
	CheckedChoiceID uint
}

// Detail applies the vote-eligibility gate and returns the voting form.
// userID 0 means the viewer is anonymous.
func (s *PollService) Detail(ctx context.Context, id, userID uint) (*DetailView, error) {
	q, err := s.Question(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch {
	case !q.IsPublished(now):
		return nil, ErrNotPublished
	case userID == 0:
		return nil, ErrLoginRequired
	case !q.CanVote(now):
		return nil, ErrVotingClosed
	}

	return s.detailView(ctx, q, userID)
}

// DetailForm returns the voting form without applying the gate. The vote
// handler uses it to redisplay the form.
func (s *PollService) DetailForm(ctx context.Context, id, userID uint) (*DetailView, error) {
	q, err := s.Question(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detailView(ctx, q, userID)
}

func (s *PollService) detailView(ctx context.Context, q *models.Question, userID uint) (*DetailView, error) {
	view := &DetailView{Question: q}
	if userID == 0 {
		return view, nil
	}

	vote, err := s.repo.VoteFor(ctx, userID, q.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load vote: %w", err)
	default:
		view.CheckedChoiceID = vote.ChoiceID
	}
	return view, nil
}

// VoteOutcome describes a recorded vote
type VoteOutcome struct {
	QuestionID       uint
	ChoiceID         uint
	PreviousChoiceID uint // 0 when the vote is new
}

// Created reports whether the vote was new rather than changed
func (o *VoteOutcome) Created() bool {
	return o.PreviousChoiceID == 0
}

// RecordVote stores the user's choice for the question, replacing an earlier
// vote on the same question. rawChoice is the submitted form value.
func (s *PollService) RecordVote(ctx context.Context, questionID uint, rawChoice string, userID uint) (*VoteOutcome, error) {
	if userID == 0 {
		return nil, ErrLoginRequired
	}

	q, err := s.Question(ctx, questionID)
	if err != nil {
		return nil, err
	}

	if s.enforceWindow && !q.CanVote(s.now()) {
		return nil, ErrVotingClosed
	}

	choiceID, err := strconv.ParseUint(strings.TrimSpace(rawChoice), 10, 64)
	if err != nil || choiceID == 0 {
		return nil, ErrChoiceNotSelected
	}
	choice, err := s.repo.ChoiceForQuestion(ctx, q.ID, uint(choiceID))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrChoiceNotSelected
	}
	if err != nil {
		return nil, fmt.Errorf("load choice: %w", err)
	}

	outcome, err := s.upsertVoteLocked(ctx, userID, q.ID, choice.ID)
	if err != nil {
		return nil, err
	}

	s.afterVote(ctx, userID, outcome)
	return outcome, nil
}

// upsertVoteLocked serializes the upsert per user and question when a
// locker is configured. A failing lock backend does not block the vote: the
// unique index still holds.
func (s *PollService) upsertVoteLocked(ctx context.Context, userID, questionID, choiceID uint) (*VoteOutcome, error) {
	if s.locker == nil {
		return s.upsertVote(ctx, userID, questionID, choiceID)
	}

	var outcome *VoteOutcome
	var upsertErr error
	ran := false
	lockName := fmt.Sprintf("vote:user:%d:question:%d", userID, questionID)
	err := s.locker.WithLock(ctx, lockName, voteLockExpiry, func() error {
		ran = true
		outcome, upsertErr = s.upsertVote(ctx, userID, questionID, choiceID)
		return upsertErr
	})
	if ran {
		return outcome, upsertErr
	}

	log.Printf("Vote lock %s unavailable, continuing without it: %v", lockName, err)
	return s.upsertVote(ctx, userID, questionID, choiceID)
}

// upsertVote updates the user's vote on the question or creates one. An
// insert that loses a race against the unique index is retried once, which
// then finds and updates the winner's row.
func (s *PollService) upsertVote(ctx context.Context, userID, questionID, choiceID uint) (*VoteOutcome, error) {
	var outcome *VoteOutcome
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.repo.Transaction(ctx, func(tx *repository.PollRepository) error {
			outcome = &VoteOutcome{QuestionID: questionID, ChoiceID: choiceID}

			existing, err := tx.VoteFor(ctx, userID, questionID)
			if errors.Is(err, repository.ErrNotFound) {
				return tx.CreateVote(ctx, &models.Vote{
					UserID:     userID,
					QuestionID: questionID,
					ChoiceID:   choiceID,
				})
			}
			if err != nil {
				return err
			}

			outcome.PreviousChoiceID = existing.ChoiceID
			if existing.ChoiceID == choiceID {
				return nil
			}
			return tx.UpdateVoteChoice(ctx, existing, choiceID)
		})
		if !errors.Is(err, repository.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("record vote: %w", err)
	}
	return outcome, nil
}

// afterVote runs the post-commit side effects. Failures are logged only.
func (s *PollService) afterVote(ctx context.Context, userID uint, outcome *VoteOutcome) {
	if err := s.InvalidateResults(ctx, outcome.QuestionID); err != nil {
		log.Printf("Failed to invalidate results of question %d: %v", outcome.QuestionID, err)
	}

	if s.events == nil {
		return
	}
	event := mq.NewVoteEvent(userID, outcome.QuestionID, outcome.ChoiceID, outcome.PreviousChoiceID)
	if err := s.events.PublishVote(ctx, event); err != nil {
		log.Printf("Failed to publish vote event %s: %v", event.MessageID, err)
	}
}

// ChoiceResult is one row of a results table
type ChoiceResult struct {
	ID         uint    `json:"id"`
	ChoiceText string  `json:"choice_text"`
	Votes      int64   `json:"votes"`
	Percentage float64 `json:"percentage"`
}

// Results is the vote tally of a question
type Results struct {
	QuestionID   uint           `json:"question_id"`
	QuestionText string         `json:"question_text"`
	TotalVotes   int64          `json:"total_votes"`
	Choices      []ChoiceResult `json:"choices"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

// Results returns the question's vote counts, from cache when possible. A
// vote committed while the counts are computed keeps them out of the cache.
func (s *PollService) Results(ctx context.Context, questionID uint) (*Results, error) {
	cacheable := false
	var generation int64
	if s.results != nil {
		var cached Results
		found, err := s.results.Get(ctx, questionID, &cached)
		if err != nil {
			log.Printf("Results cache read failed for question %d: %v", questionID, err)
		} else if found {
			return &cached, nil
		}

		generation, err = s.results.Generation(ctx, questionID)
		if err != nil {
			log.Printf("Results generation read failed for question %d: %v", questionID, err)
		} else {
			cacheable = true
		}
	}

	res, err := s.computeResults(ctx, questionID)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if _, err := s.results.SetIfGeneration(ctx, questionID, generation, res); err != nil {
			log.Printf("Results cache write failed for question %d: %v", questionID, err)
		}
	}
	return res, nil
}

func (s *PollService) computeResults(ctx context.Context, questionID uint) (*Results, error) {
	q, err := s.Question(ctx, questionID)
	if err != nil {
		return nil, err
	}

	counts, err := s.repo.CountVotes(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}
	byChoice := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byChoice[c.ChoiceID] = c.Votes
	}

	res := &Results{
		QuestionID:   q.ID,
		QuestionText: q.QuestionText,
		Choices:      make([]ChoiceResult, 0, len(q.Choices)),
		GeneratedAt:  s.now(),
	}
	for _, c := range q.Choices {
		votes := byChoice[c.ID]
		res.TotalVotes += votes
		res.Choices = append(res.Choices, ChoiceResult{ID: c.ID, ChoiceText: c.ChoiceText, Votes: votes})
	}
	calculatePercentages(res)
	return res, nil
}

func calculatePercentages(res *Results) {
	if res.TotalVotes == 0 {
		return
	}
	for i := range res.Choices {
		res.Choices[i].Percentage = float64(res.Choices[i].Votes) / float64(res.TotalVotes) * 100
	}
}

// InvalidateResults drops cached results of the question
func (s *PollService) InvalidateResults(ctx context.Context, questionID uint) error {
	if s.results == nil {
		return nil
	}
	return s.results.Invalidate(ctx, questionID)
}
