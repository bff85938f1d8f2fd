package mq

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Driver names accepted by MQ_DRIVER
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverRocketMQ = "rocketmq"
)

const memoryQueueSize = 1024

// Options selects and configures the vote event transport
type Options struct {
	Driver      string
	RedisClient *redis.Client // required by the redis driver
	NameServers []string      // required by the rocketmq driver
}

// MQAdapter hides the configured transport behind one publish/consume API.
// When the configured broker cannot be reached it falls back to the
// in-memory queue.
type MQAdapter struct {
	opts     Options
	queue    Queue
	driver   string
	initOnce sync.Once
}

// NewMQAdapter creates an adapter; call Initialize before use
func NewMQAdapter(opts Options) *MQAdapter {
	return &MQAdapter{opts: opts}
}

// Initialize connects the configured driver
func (a *MQAdapter) Initialize() error {
	var err error
	a.initOnce.Do(func() {
		switch a.opts.Driver {
		case DriverRedis:
			if a.opts.RedisClient == nil {
				log.Println("MQ_DRIVER=redis but Redis is unavailable, using in-memory queue")
				break
			}
			a.queue, a.driver = NewRedisMQ(a.opts.RedisClient), DriverRedis
		case DriverRocketMQ:
			q, rerr := NewRocketMQ(a.opts.NameServers)
			if rerr != nil {
				log.Printf("RocketMQ unavailable, using in-memory queue: %v", rerr)
				break
			}
			a.queue, a.driver = q, DriverRocketMQ
		case DriverMemory, "":
		default:
			err = fmt.Errorf("unknown MQ_DRIVER %q", a.opts.Driver)
			return
		}

		if a.queue == nil {
			a.queue, a.driver = NewMemoryQueue(memoryQueueSize), DriverMemory
		}
		log.Printf("Vote events use the %s queue", a.driver)
	})
	return err
}

// Driver returns the active driver name
func (a *MQAdapter) Driver() string {
	return a.driver
}

// RegisterHandler starts consuming vote events with handler
func (a *MQAdapter) RegisterHandler(handler Handler) error {
	if a.queue == nil {
		return errors.New("message queue adapter not initialized")
	}
	return a.queue.Start(handler)
}

// PublishVote publishes a vote event
func (a *MQAdapter) PublishVote(ctx context.Context, event VoteEvent) error {
	if a.queue == nil {
		return errors.New("message queue adapter not initialized")
	}
	return a.queue.Publish(ctx, event)
}

// GetQueueStats describes the active queue
func (a *MQAdapter) GetQueueStats() map[string]interface{} {
	if a.queue == nil {
		return map[string]interface{}{"status": "not initialized"}
	}
	return map[string]interface{}{
		"type":   a.driver,
		"status": "running",
		"queues": a.queue.Stats(),
	}
}

// RetryDeadLetters requeues dead-lettered events; only the redis driver keeps them
func (a *MQAdapter) RetryDeadLetters(ctx context.Context) (int, error) {
	rq, ok := a.queue.(*RedisMQ)
	if !ok {
		return 0, fmt.Errorf("driver %q has no dead letter queue", a.driver)
	}
	return rq.RetryDeadLetters(ctx)
}

// Close stops the active queue
func (a *MQAdapter) Close() {
	if a.queue != nil {
		a.queue.Close()
	}
	log.Println("Message queue closed")
}
