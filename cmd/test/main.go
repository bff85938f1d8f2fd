// Command test exercises the Redis-backed components against a live Redis:
// the vote rate limiter, the vote lock, the results cache, the Redis vote
// queue and its dead letter retry. Pass component names (rate, lock, cache,
// queue, dlq) to run a subset.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"polls-backend/cache"
	"polls-backend/config"
	"polls-backend/mq"

	"github.com/redis/go-redis/v9"
)

func testRateLimiter(client *redis.Client) {
	fmt.Println("=== rate limiter ===")

	limiter := cache.NewTokenBucketRateLimiter(client, "smoke", 3, 5)
	ctx := context.Background()
	key := fmt.Sprintf("smoke:%d", time.Now().UnixNano())

	allowed := 0
	for i := 0; i < 10; i++ {
		ok, err := limiter.Allow(ctx, key)
		if err != nil {
			log.Printf("request %d: limiter error: %v", i+1, err)
			continue
		}
		if ok {
			allowed++
		}
	}
	log.Printf("burst of 10: %d allowed (expected 5)", allowed)

	time.Sleep(time.Second)
	ok, err := limiter.Allow(ctx, key)
	log.Printf("after refill: allowed=%v err=%v", ok, err)
}

func testDistributedLock(client *redis.Client) {
	fmt.Println("\n=== vote lock ===")

	locks := cache.NewLockService(client)
	ctx := context.Background()
	name := fmt.Sprintf("vote:user:0:question:%d", time.Now().UnixNano())

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := locks.WithLock(ctx, name, 5*time.Second, func() error {
				n := inside.Add(1)
				for m := maxInside.Load(); n > m && !maxInside.CompareAndSwap(m, n); m = maxInside.Load() {
				}
				time.Sleep(100 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			if err != nil {
				log.Printf("worker %d: %v", idx+1, err)
			}
		}(i)
	}
	wg.Wait()

	if maxInside.Load() == 1 {
		log.Println("lock held by one worker at a time")
	} else {
		log.Printf("lock overlap: %d workers inside at once", maxInside.Load())
	}
}

func testResultsCache(client *redis.Client) {
	fmt.Println("\n=== results cache ===")

	results := cache.NewResultsCache(client, time.Minute)
	ctx := context.Background()
	const questionID = 999999

	gen, err := results.Generation(ctx, questionID)
	if err != nil {
		log.Printf("generation read failed: %v", err)
		return
	}
	stored, err := results.SetIfGeneration(ctx, questionID, gen, map[string]int{"votes": 3})
	log.Printf("set at generation %d: stored=%v err=%v", gen, stored, err)

	var got map[string]int
	found, err := results.Get(ctx, questionID, &got)
	log.Printf("get: found=%v value=%v err=%v", found, got, err)

	if err := results.Invalidate(ctx, questionID); err != nil {
		log.Printf("invalidate failed: %v", err)
	}
	found, err = results.Get(ctx, questionID, &got)
	log.Printf("after invalidate: found=%v err=%v", found, err)

	stored, err = results.SetIfGeneration(ctx, questionID, gen, map[string]int{"votes": 2})
	log.Printf("set at stale generation %d: stored=%v (expected false) err=%v", gen, stored, err)
}

func testVoteQueue(client *redis.Client) {
	fmt.Println("\n=== redis vote queue ===")

	queue := mq.NewRedisMQ(client)
	defer queue.Close()

	received := make(chan mq.VoteEvent, 1)
	if err := queue.Start(func(_ context.Context, event mq.VoteEvent) error {
		received <- event
		return nil
	}); err != nil {
		log.Printf("start failed: %v", err)
		return
	}

	event := mq.NewVoteEvent(1, 1, 2, 0)
	if err := queue.Publish(context.Background(), event); err != nil {
		log.Printf("publish failed: %v", err)
		return
	}

	select {
	case got := <-received:
		log.Printf("consumed %s (question %d, choice %d)", got.MessageID, got.QuestionID, got.ChoiceID)
	case <-time.After(5 * time.Second):
		log.Println("no event consumed within 5s")
	}
	log.Printf("stats: %v", queue.Stats())
}

func testDeadLetters(client *redis.Client) {
	fmt.Println("\n=== dead letter retry ===")

	adapter := mq.NewMQAdapter(mq.Options{Driver: mq.DriverRedis, RedisClient: client})
	if err := adapter.Initialize(); err != nil {
		log.Printf("initialize failed: %v", err)
		return
	}
	defer adapter.Close()

	ctx := context.Background()
	if err := client.LPush(ctx, mq.DeadLetterQueueName, "{unreadable").Err(); err != nil {
		log.Printf("seed dead letter failed: %v", err)
		return
	}

	count, err := adapter.RetryDeadLetters(ctx)
	log.Printf("requeued %d dead letters, err=%v", count, err)
	log.Printf("stats: %v", adapter.GetQueueStats())
	client.LRem(ctx, mq.MainQueueName, 1, "{unreadable")
}

func main() {
	defer fmt.Println("done")

	cfg := config.Load()
	if err := cache.InitRedis(cfg.Redis); err != nil {
		log.Fatalf("Redis unavailable: %v", err)
	}
	defer cache.CloseRedis()

	client, err := cache.GetClient()
	if err != nil {
		log.Fatalf("Redis unavailable: %v", err)
	}

	tests := map[string]func(*redis.Client){
		"rate":  testRateLimiter,
		"lock":  testDistributedLock,
		"cache": testResultsCache,
		"queue": testVoteQueue,
		"dlq":   testDeadLetters,
	}

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"rate", "lock", "cache", "queue", "dlq"}
	}
	for _, arg := range args {
		test, ok := tests[arg]
		if !ok {
			log.Printf("unknown test: %s", arg)
			continue
		}
		test(client)
	}
}
