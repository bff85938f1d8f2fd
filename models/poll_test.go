package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return now.Add(d) }

func ptr(t time.Time) *time.Time { return &t }

func TestWasPublishedRecently(t *testing.T) {
	tests := []struct {
		name    string
		pubDate time.Time
		want    bool
	}{
		{"future question", at(30 * 24 * time.Hour), false},
		{"older than one day", at(-(24*time.Hour + time.Second)), false},
		{"within the last day", at(-(23*time.Hour + 59*time.Minute + 59*time.Second)), true},
		{"exactly one day ago", at(-24 * time.Hour), true},
		{"published right now", now, true},
		{"one second ahead", at(time.Second), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := Question{PubDate: tc.pubDate}
			assert.Equal(t, tc.want, q.WasPublishedRecently(now))
		})
	}
}

func TestIsPublished(t *testing.T) {
	tests := []struct {
		name    string
		pubDate time.Time
		want    bool
	}{
		{"published yesterday", at(-(23*time.Hour + 59*time.Minute + 59*time.Second)), true},
		{"publishes tomorrow", at(23*time.Hour + 59*time.Minute + 59*time.Second), false},
		{"publishes right now", now, true},
		{"a nanosecond early", at(time.Nanosecond), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := Question{PubDate: tc.pubDate}
			assert.Equal(t, tc.want, q.IsPublished(now))
		})
	}
}

func TestCanVote(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		name    string
		pubDate time.Time
		endDate *time.Time
		want    bool
	}{
		{"open window", at(-day), ptr(at(day)), true},
		{"not published yet", at(day), nil, false},
		{"end before publication", at(day), ptr(at(-day)), false},
		{"already closed", at(-day), ptr(at(-day)), false},
		{"no end date", at(-day), nil, true},
		{"ends exactly now", at(-day), ptr(now), true},
		{"opens exactly now", now, nil, true},
		{"published thirty days ago", at(-30 * day), nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := Question{PubDate: tc.pubDate, EndDate: tc.endDate}
			assert.Equal(t, tc.want, q.CanVote(now))
		})
	}
}

func TestCanVote_ImpliesPublished(t *testing.T) {
	for offset := -48; offset <= 48; offset += 6 {
		q := Question{PubDate: at(time.Duration(offset) * time.Hour)}
		if q.CanVote(now) {
			assert.True(t, q.IsPublished(now), "offset %dh", offset)
		}
	}
}

func TestValidateWindow(t *testing.T) {
	q := Question{PubDate: now}
	assert.NoError(t, q.ValidateWindow())

	q.EndDate = ptr(now)
	assert.NoError(t, q.ValidateWindow())

	q.EndDate = ptr(at(-time.Minute))
	assert.ErrorIs(t, q.ValidateWindow(), ErrEndBeforePublication)
}

func TestVoteQuestionRef(t *testing.T) {
	v := Vote{QuestionID: 3}
	assert.Equal(t, uint(3), v.QuestionRef())

	v.Choice = Choice{ID: 9, QuestionID: 7}
	assert.Equal(t, uint(7), v.QuestionRef())
}
