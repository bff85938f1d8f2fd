package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis list names used by RedisMQ
const (
	MainQueueName       = "poll_vote_events"
	ProcessingQueueName = "poll_vote_events:processing"
	DeadLetterQueueName = "poll_vote_events:dead_letter"
	RetriesHashName     = "poll_vote_events:retries"
	StartedHashName     = "poll_vote_events:started"
	ProcessedSetName    = "poll_vote_events:processed"
)

// RedisMQ is a reliable list queue: BRPOPLPUSH moves each message to a
// processing list until it is handled, failed messages are retried and then
// parked on a dead letter list.
type RedisMQ struct {
	client            *redis.Client
	ctx               context.Context
	cancel            context.CancelFunc
	handler           Handler
	mu                sync.Mutex
	isRunning         bool
	wg                sync.WaitGroup
	processingTimeout time.Duration
	retryDelay        time.Duration
	maxRetries        int
}

// NewRedisMQ creates a queue on the client
func NewRedisMQ(client *redis.Client) *RedisMQ {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisMQ{
		client:            client,
		ctx:               ctx,
		cancel:            cancel,
		processingTimeout: 5 * time.Minute,
		retryDelay:        30 * time.Second,
		maxRetries:        3,
	}
}

// Publish pushes the event onto the main list
func (r *RedisMQ) Publish(ctx context.Context, event VoteEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode vote event: %w", err)
	}
	if err := r.client.LPush(ctx, MainQueueName, data).Err(); err != nil {
		return fmt.Errorf("push vote event: %w", err)
	}
	return nil
}

// Start launches the consumer and the processing-timeout sweeper
func (r *RedisMQ) Start(handler Handler) error {
	if handler == nil {
		return ErrNoHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return nil
	}
	r.handler = handler
	r.isRunning = true

	r.wg.Add(2)
	go r.consumeLoop()
	go r.timeoutCheckLoop()

	log.Println("Redis vote event consumer started")
	return nil
}

// Close stops the consumer and waits for in-flight messages
func (r *RedisMQ) Close() {
	r.mu.Lock()
	running := r.isRunning
	r.isRunning = false
	r.mu.Unlock()

	r.cancel()
	if running {
		r.wg.Wait()
		log.Println("Redis vote event consumer stopped")
	}
}

func (r *RedisMQ) consumeLoop() {
	defer r.wg.Done()

	for {
		if r.ctx.Err() != nil {
			return
		}

		msgData, err := r.client.BRPopLPush(r.ctx, MainQueueName, ProcessingQueueName, time.Second).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && r.ctx.Err() == nil {
				log.Printf("Failed to pop vote event: %v", err)
				time.Sleep(time.Second)
			}
			continue
		}

		r.processMessage(msgData)
	}
}

func (r *RedisMQ) timeoutCheckLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.checkTimeouts()
		}
	}
}

// checkTimeouts requeues messages stuck in the processing list, e.g. after a
// crash between pop and acknowledgement. The timeout runs from the time the
// message was popped, not from its publish time.
func (r *RedisMQ) checkTimeouts() {
	messages, err := r.client.LRange(r.ctx, ProcessingQueueName, 0, -1).Result()
	if err != nil {
		log.Printf("Failed to read processing list: %v", err)
		return
	}

	now := time.Now().Unix()
	for _, msgData := range messages {
		var event VoteEvent
		if err := json.Unmarshal([]byte(msgData), &event); err != nil {
			r.moveToDeadLetter(msgData)
			continue
		}

		started, err := r.client.HGet(r.ctx, StartedHashName, event.MessageID).Int64()
		if errors.Is(err, redis.Nil) {
			// popped by a consumer that died before stamping it
			r.client.HSetNX(r.ctx, StartedHashName, event.MessageID, now)
			continue
		}
		if err != nil {
			log.Printf("Failed to read start time of vote event %s: %v", event.MessageID, err)
			continue
		}
		if !processingExpired(started, now, r.processingTimeout) {
			continue
		}
		r.retry(msgData, event)
	}
}

// processingExpired reports whether a message popped at started (unix
// seconds) has been processing longer than timeout at now
func processingExpired(started, now int64, timeout time.Duration) bool {
	return now-started > int64(timeout.Seconds())
}

func (r *RedisMQ) processMessage(msgData string) {
	var event VoteEvent
	if err := json.Unmarshal([]byte(msgData), &event); err != nil {
		log.Printf("Unreadable vote event, moving to dead letter: %v", err)
		r.moveToDeadLetter(msgData)
		return
	}

	seen, err := r.client.SIsMember(r.ctx, ProcessedSetName, event.MessageID).Result()
	if err == nil && seen {
		r.client.LRem(r.ctx, ProcessingQueueName, 1, msgData)
		return
	}

	if err := r.client.HSet(r.ctx, StartedHashName, event.MessageID, time.Now().Unix()).Err(); err != nil {
		log.Printf("Failed to stamp vote event %s: %v", event.MessageID, err)
	}

	if err := r.handler(r.ctx, event); err != nil {
		log.Printf("Vote event %s failed: %v", event.MessageID, err)
		r.retry(msgData, event)
		return
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(r.ctx, ProcessedSetName, event.MessageID)
	pipe.Expire(r.ctx, ProcessedSetName, 48*time.Hour)
	pipe.HDel(r.ctx, RetriesHashName, event.MessageID)
	pipe.HDel(r.ctx, StartedHashName, event.MessageID)
	pipe.LRem(r.ctx, ProcessingQueueName, 1, msgData)
	if _, err := pipe.Exec(r.ctx); err != nil {
		log.Printf("Failed to acknowledge vote event %s: %v", event.MessageID, err)
	}
}

// retry requeues the message after retryDelay, or dead-letters it once
// maxRetries is exhausted
func (r *RedisMQ) retry(msgData string, event VoteEvent) {
	r.client.HDel(r.ctx, StartedHashName, event.MessageID)
	retries, _ := r.client.HIncrBy(r.ctx, RetriesHashName, event.MessageID, 1).Result()
	if int(retries) > r.maxRetries {
		log.Printf("Vote event %s exceeded %d retries, moving to dead letter", event.MessageID, r.maxRetries)
		r.moveToDeadLetter(msgData)
		return
	}

	r.client.LRem(r.ctx, ProcessingQueueName, 1, msgData)
	event.Timestamp = time.Now().Unix()
	updated, _ := json.Marshal(event)
	time.AfterFunc(r.retryDelay, func() {
		if err := r.client.LPush(context.Background(), MainQueueName, updated).Err(); err != nil {
			log.Printf("Failed to requeue vote event %s: %v", event.MessageID, err)
		}
	})
}

func (r *RedisMQ) moveToDeadLetter(msgData string) {
	pipe := r.client.TxPipeline()
	pipe.LPush(r.ctx, DeadLetterQueueName, msgData)
	pipe.LRem(r.ctx, ProcessingQueueName, 1, msgData)
	if _, err := pipe.Exec(r.ctx); err != nil {
		log.Printf("Failed to dead-letter message: %v", err)
	}
}

// RetryDeadLetters moves every dead-lettered message back onto the main list
func (r *RedisMQ) RetryDeadLetters(ctx context.Context) (int, error) {
	messages, err := r.client.LRange(ctx, DeadLetterQueueName, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("read dead letter list: %w", err)
	}

	count := 0
	for _, msgData := range messages {
		if err := r.client.LPush(ctx, MainQueueName, msgData).Err(); err != nil {
			log.Printf("Failed to requeue dead letter: %v", err)
			continue
		}
		r.client.LRem(ctx, DeadLetterQueueName, 1, msgData)

		var event VoteEvent
		if json.Unmarshal([]byte(msgData), &event) == nil {
			r.client.HDel(ctx, RetriesHashName, event.MessageID)
		}
		count++
	}

	log.Printf("Requeued %d dead-lettered vote events", count)
	return count, nil
}

// Stats reports list lengths
func (r *RedisMQ) Stats() map[string]interface{} {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	mainLen, _ := r.client.LLen(ctx, MainQueueName).Result()
	procLen, _ := r.client.LLen(ctx, ProcessingQueueName).Result()
	deadLen, _ := r.client.LLen(ctx, DeadLetterQueueName).Result()

	return map[string]interface{}{
		"main_queue":        mainLen,
		"processing_queue":  procLen,
		"dead_letter_queue": deadLen,
	}
}
