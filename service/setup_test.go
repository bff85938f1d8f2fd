package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"polls-backend/database"
	"polls-backend/models"
	"polls-backend/mq"
	"polls-backend/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

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

func newTestService(t *testing.T, opts Options) (*PollService, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	return NewPollService(repository.NewPollRepository(db), opts), db
}

// createQuestion stores a question published days away from testNow with
// the given choices
func createQuestion(t *testing.T, db *gorm.DB, text string, days float64, choices ...string) *models.Question {
	t.Helper()
	q := &models.Question{
		QuestionText: text,
		PubDate:      testNow.Add(time.Duration(days * float64(24*time.Hour))),
	}
	for _, c := range choices {
		q.Choices = append(q.Choices, models.Choice{ChoiceText: c})
	}
	require.NoError(t, db.Create(q).Error)
	return q
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, PasswordHash: "x"}
	require.NoError(t, db.Create(u).Error)
	return u
}

func countVotes(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Vote{}).Count(&n).Error)
	return n
}

type memoryResults struct {
	mu          sync.Mutex
	data        map[uint]Results
	generations map[uint]int64
	invalidated []uint

	// beforeSet, when set, runs at the start of every SetIfGeneration
	beforeSet func()
}

func newMemoryResults() *memoryResults {
	return &memoryResults{data: make(map[uint]Results), generations: make(map[uint]int64)}
}

func (m *memoryResults) Get(_ context.Context, id uint, dest interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[id]
	if ok {
		*dest.(*Results) = r
	}
	return ok, nil
}

func (m *memoryResults) Generation(_ context.Context, id uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[id], nil
}

func (m *memoryResults) SetIfGeneration(_ context.Context, id uint, generation int64, value interface{}) (bool, error) {
	if m.beforeSet != nil {
		m.beforeSet()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generations[id] != generation {
		return false, nil
	}
	m.data[id] = *value.(*Results)
	return true, nil
}

func (m *memoryResults) Invalidate(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	m.generations[id]++
	m.invalidated = append(m.invalidated, id)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []mq.VoteEvent
}

func (p *recordingPublisher) PublishVote(_ context.Context, e mq.VoteEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type brokenLocker struct{ calls int }

func (l *brokenLocker) WithLock(context.Context, string, time.Duration, func() error) error {
	l.calls++
	return errors.New("redis: connection refused")
}

type mutexLocker struct {
	mu    sync.Mutex
	names []string
}

func (l *mutexLocker) WithLock(_ context.Context, name string, _ time.Duration, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
	return fn()
}
