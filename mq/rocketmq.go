package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
)

const (
	rocketProducerGroup = "poll_vote_producer"
	rocketConsumerGroup = "poll_vote_consumer"
	rocketTag           = "vote"
)

// RocketMQ publishes vote events to a RocketMQ topic and consumes them with a
// clustering push consumer
type RocketMQ struct {
	nameServers []string
	producer    rocketmq.Producer
	consumer    rocketmq.PushConsumer
	processed   *processedSet
	mu          sync.Mutex

	published atomic.Int64
	consumed  atomic.Int64
	failed    atomic.Int64
}

// NewRocketMQ starts a producer against the name servers
func NewRocketMQ(nameServers []string) (*RocketMQ, error) {
	p, err := rocketmq.NewProducer(
		producer.WithNameServer(nameServers),
		producer.WithGroupName(rocketProducerGroup),
		producer.WithRetry(2),
		producer.WithSendMsgTimeout(10*time.Second),
		producer.WithVIPChannel(false),
	)
	if err != nil {
		return nil, fmt.Errorf("create rocketmq producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("start rocketmq producer: %w", err)
	}

	log.Printf("RocketMQ producer connected to %v", nameServers)
	return &RocketMQ{
		nameServers: nameServers,
		producer:    p,
		processed:   newProcessedSet(24 * time.Hour),
	}, nil
}

// Publish sends the event synchronously. Events of one question share a
// sharding key so they land on the same queue.
func (r *RocketMQ) Publish(ctx context.Context, event VoteEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode vote event: %w", err)
	}

	msg := primitive.NewMessage(TopicVoteEvents, body)
	msg.WithTag(rocketTag)
	msg.WithKeys([]string{event.MessageID})
	msg.WithShardingKey(strconv.FormatUint(uint64(event.QuestionID), 10))

	res, err := r.producer.SendSync(ctx, msg)
	if err != nil {
		return fmt.Errorf("send vote event: %w", err)
	}
	r.published.Add(1)
	log.Printf("Vote event %s sent, msgID=%s queue=%s", event.MessageID, res.MsgID, res.MessageQueue.String())
	return nil
}

// Start subscribes a push consumer to the vote topic
func (r *RocketMQ) Start(handler Handler) error {
	if handler == nil {
		return ErrNoHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consumer != nil {
		return nil
	}

	c, err := rocketmq.NewPushConsumer(
		consumer.WithNameServer(r.nameServers),
		consumer.WithGroupName(rocketConsumerGroup),
		consumer.WithConsumerModel(consumer.Clustering),
		consumer.WithConsumeFromWhere(consumer.ConsumeFromLastOffset),
	)
	if err != nil {
		return fmt.Errorf("create rocketmq consumer: %w", err)
	}

	selector := consumer.MessageSelector{Type: consumer.TAG, Expression: rocketTag}
	err = c.Subscribe(TopicVoteEvents, selector, func(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
		for _, msg := range msgs {
			var event VoteEvent
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				log.Printf("Dropping unreadable vote event %s: %v", msg.MsgId, err)
				continue
			}
			if r.processed.contains(event.MessageID) {
				continue
			}

			if err := handler(ctx, event); err != nil {
				r.failed.Add(1)
				log.Printf("Vote event %s failed: %v", event.MessageID, err)
				return consumer.ConsumeRetryLater, nil
			}
			r.processed.add(event.MessageID)
			r.consumed.Add(1)
		}
		return consumer.ConsumeSuccess, nil
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicVoteEvents, err)
	}

	if err := c.Start(); err != nil {
		return fmt.Errorf("start rocketmq consumer: %w", err)
	}
	r.consumer = c
	log.Println("RocketMQ vote event consumer started")
	return nil
}

// Stats reports local counters
func (r *RocketMQ) Stats() map[string]interface{} {
	return map[string]interface{}{
		"name_servers": r.nameServers,
		"published":    r.published.Load(),
		"consumed":     r.consumed.Load(),
		"failed":       r.failed.Load(),
	}
}

// Close shuts down the consumer and the producer
func (r *RocketMQ) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consumer != nil {
		if err := r.consumer.Shutdown(); err != nil {
			log.Printf("Failed to shut down RocketMQ consumer: %v", err)
		}
		r.consumer = nil
	}
	if err := r.producer.Shutdown(); err != nil {
		log.Printf("Failed to shut down RocketMQ producer: %v", err)
	}
	log.Println("RocketMQ closed")
}
