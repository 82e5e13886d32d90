package models

import (
	"time"
)

// RetryJob represents a swap whose last step failed retryably
type RetryJob struct {
	SwapID      uint64
	RetryCount  int
	NextAttempt time.Time
	ErrorType   string // classification of the error that caused the retry
}
