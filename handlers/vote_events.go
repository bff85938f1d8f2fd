package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"

	"polls-backend/mq"
	"polls-backend/service"
	"polls-backend/websocket"
)

// NewVoteEventHandler returns the queue consumer for vote events: it drops
// the cached results and pushes fresh ones to live results clients.
func NewVoteEventHandler(polls *service.PollService, hub *websocket.Hub) mq.Handler {
	return func(ctx context.Context, event mq.VoteEvent) error {
		if err := polls.InvalidateResults(ctx, event.QuestionID); err != nil {
			log.Printf("Failed to invalidate results of question %d: %v", event.QuestionID, err)
		}

		if hub == nil || hub.ClientCount(event.QuestionID) == 0 {
			return nil
		}

		res, err := polls.Results(ctx, event.QuestionID)
		if errors.Is(err, service.ErrQuestionNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("compute results of question %d: %w", event.QuestionID, err)
		}

		hub.Broadcast(event.QuestionID, &websocket.Message{
			Type:       websocket.MessageUpdate,
			QuestionID: event.QuestionID,
			Payload:    res,
		})
		return nil
	}
}
