package util

import (
	"time"
)

const maxBackoff = 60 * time.Second

// CalculateConnectionRetryBackoff computes backoff for reconnect attempts.
// Linear progression: consecutiveFailures * 2 seconds, capped at maxBackoff
func CalculateConnectionRetryBackoff(consecutiveFailures int) time.Duration {
	backoffDuration := time.Duration(consecutiveFailures*2) * time.Second
	if backoffDuration > maxBackoff {
		backoffDuration = maxBackoff
	}
	return backoffDuration
}
