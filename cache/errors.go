package cache

import "errors"

var (
	// ErrRedisNotAvailable is returned when no Redis connection exists
	ErrRedisNotAvailable = errors.New("redis not available")

	// ErrLockNotAcquired is returned when a distributed lock is held elsewhere
	ErrLockNotAcquired = errors.New("could not acquire distributed lock")
)
