package domain

import "errors"

var (
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrLockHeld         = errors.New("lock already held")
	ErrEmptyBatch       = errors.New("empty batch")
	ErrSealed           = errors.New("batch already encoded")
	ErrInvalidHash      = errors.New("invalid safe transaction hash")
	ErrUnknownParam     = errors.New("unknown parameter")
	ErrMissingBetAmount = errors.New("no bet amount for confidence")
)
