package slack

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"time"
)

// BackoffPolicy configures retry delays for transient failures.
type BackoffPolicy struct {
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	MaxAttempts int
	Jitter      bool
}

// DefaultBackoffPolicy matches the documented defaults: 1s base, factor 2,
// 3 attempts, capped at 60s. Jitter defaults off for determinism.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:   time.Second,
		Factor:      2.0,
		MaxDelay:    60 * time.Second,
		MaxAttempts: 3,
		Jitter:      false,
	}
}

func (p BackoffPolicy) withDefaults() BackoffPolicy {
	d := DefaultBackoffPolicy()
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.Factor <= 0 {
		p.Factor = d.Factor
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}

// DelayForAttempt computes the delay before retry number attempt (1-indexed:
// the first retry is attempt=1): base * factor^(attempt-1), capped, with
// optional deterministic jitter in [0.5, 1.5] derived from seed.
func DelayForAttempt(attempt int, p BackoffPolicy, jitterSeed string) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt-1))
	if max := float64(p.MaxDelay); base > max {
		base = max
	}
	if p.Jitter {
		base *= 0.5 + jitterUnit(jitterSeed)
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

func jitterUnit(seed string) float64 {
	sum := sha256.Sum256([]byte(seed))
	u := binary.BigEndian.Uint64(sum[:8])
	return float64(u) / float64(^uint64(0))
}
