package mq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TopicVoteEvents is the topic / queue name vote events are published on
const TopicVoteEvents = "poll_vote_events"

var (
	// ErrQueueClosed is returned when publishing to a closed queue
	ErrQueueClosed = errors.New("message queue closed")
	// ErrNoHandler is returned when a consumer starts without a handler
	ErrNoHandler = errors.New("no message handler registered")
)

// VoteEvent is published after a vote is recorded or changed
type VoteEvent struct {
	MessageID        string `json:"message_id"`
	UserID           uint   `json:"user_id"`
	QuestionID       uint   `json:"question_id"`
	ChoiceID         uint   `json:"choice_id"`
	PreviousChoiceID uint   `json:"previous_choice_id,omitempty"`
	Changed          bool   `json:"changed"`
	Timestamp        int64  `json:"timestamp"`
}

// NewVoteEvent stamps a new event with a unique id and the current time
func NewVoteEvent(userID, questionID, choiceID, previousChoiceID uint) VoteEvent {
	return VoteEvent{
		MessageID:        uuid.NewString(),
		UserID:           userID,
		QuestionID:       questionID,
		ChoiceID:         choiceID,
		PreviousChoiceID: previousChoiceID,
		Changed:          previousChoiceID != 0 && previousChoiceID != choiceID,
		Timestamp:        time.Now().Unix(),
	}
}

// Handler processes one vote event. Returning an error asks the queue to
// redeliver it later.
type Handler func(ctx context.Context, event VoteEvent) error

// Queue is a vote event transport
type Queue interface {
	Publish(ctx context.Context, event VoteEvent) error
	Start(handler Handler) error
	Stats() map[string]interface{}
	Close()
}

// processedSet remembers handled message ids for a while so redelivered
// messages are processed once
type processedSet struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

func newProcessedSet(ttl time.Duration) *processedSet {
	return &processedSet{ttl: ttl, seen: make(map[string]time.Time)}
}

func (p *processedSet) contains(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	at, ok := p.seen[id]
	return ok && time.Since(at) < p.ttl
}

func (p *processedSet) add(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.seen[id] = now
	for k, at := range p.seen {
		if now.Sub(at) >= p.ttl {
			delete(p.seen, k)
		}
	}
}
