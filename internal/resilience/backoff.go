package resilience

import "time"

// RestartPolicy bounds how often a dropped stream is brought back up.
// Attempt n (1-based) waits InitialBackoff * Multiplier^(n-1), capped at MaxBackoff.
// After MaxAttempts failed attempts the caller gives up.
type RestartPolicy struct {
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
	MaxAttempts    int
}

// DefaultRestartPolicy waits 1s, then 2s, then gives up.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		InitialBackoff: time.Second,
		Multiplier:     2.0,
		MaxBackoff:     30 * time.Second,
		MaxAttempts:    2,
	}
}

// Delay returns the wait before the given 1-based attempt.
func (p RestartPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	return CalculateBackoff(attempt-1, p.InitialBackoff, p.MaxBackoff, multiplier)
}

// Allows reports whether the given 1-based attempt is within the cap.
func (p RestartPolicy) Allows(attempt int) bool {
	return attempt >= 1 && attempt <= p.MaxAttempts
}
