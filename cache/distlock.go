package cache

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// DistributedLockService serializes work across server instances with redsync
type DistributedLockService struct {
	rs *redsync.Redsync
}

// NewLockService creates a lock service on the client
func NewLockService(client *redis.Client) *DistributedLockService {
	return &DistributedLockService{rs: redsync.New(goredis.NewPool(client))}
}

// AcquireLock takes the named lock, retrying briefly before giving up
func (s *DistributedLockService) AcquireLock(ctx context.Context, lockName string, expiry time.Duration) (*redsync.Mutex, error) {
	mutex := s.rs.NewMutex(lockName,
		redsync.WithExpiry(expiry),
		redsync.WithTries(32),
		redsync.WithRetryDelay(50*time.Millisecond),
		redsync.WithDriftFactor(0.01),
	)

	if err := mutex.LockContext(ctx); err != nil {
		var taken redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return nil, ErrLockNotAcquired
		}
		return nil, err
	}
	return mutex, nil
}

// WithLock runs action while holding the named lock
func (s *DistributedLockService) WithLock(ctx context.Context, lockName string, expiry time.Duration, action func() error) error {
	mutex, err := s.AcquireLock(ctx, lockName, expiry)
	if err != nil {
		return err
	}

	defer func() {
		if ok, err := mutex.UnlockContext(context.Background()); !ok || err != nil {
			log.Printf("Failed to release lock %s: %v", lockName, err)
		}
	}()

	return action()
}
