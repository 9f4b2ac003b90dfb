package redisrepo

import "errors"

var (
	ErrOracleUnavailable = errors.New("occupancy view unavailable")
	ErrLockNotAcquired   = errors.New("lock not acquired")
)
