// Package ratelimit implements the per-connection token bucket that gates
// message sending. It is distinct from the HTTP handshake limiter in
// internal/mw: the warn counter here is part of the chat protocol and
// drives automatic spam bans.
package ratelimit

import "time"

const warnLimit = 3

// Limiter monitors a series of repeated actions expressed as limit per
// interval. It is not safe for concurrent use; each connection owns one.
type Limiter struct {
	limit       float64
	interval    float64
	allowance   float64
	warnCount   int
	lastChecked time.Time
	now         func() time.Time
}

// New returns a limiter allowing limit actions per interval seconds.
func New(limit, interval float64) *Limiter {
	l := &Limiter{
		limit:     limit,
		interval:  interval,
		allowance: limit,
		now:       time.Now,
	}
	l.lastChecked = l.now()
	return l
}

// Update refills the allowance proportionally to the time passed since the
// last check, clamped at the limit. Without the clamp a client could idle
// and then spam freely. Call once per monitored action, before evaluating
// thresholds.
func (l *Limiter) Update() {
	current := l.now()
	passed := current.Sub(l.lastChecked).Seconds()
	l.lastChecked = current
	l.allowance += passed * (l.limit / l.interval)
	if l.allowance > l.limit {
		l.allowance = l.limit
	}
}

// SpamWarning reports whether the allowance has been exhausted. Every call
// that finds the allowance below the threshold increments the warn counter,
// not just the first one.
func (l *Limiter) SpamWarning() bool {
	if l.allowance < 1.0 {
		l.warnCount++
		return true
	}
	return false
}

// SpamDetected reports whether the warn limit has also been exceeded.
func (l *Limiter) SpamDetected() bool {
	return l.allowance < 1.0 && l.warnCount >= warnLimit+1
}

// Decrease charges one token. Called after the gated action actually
// executed, so a rejected action costs nothing.
func (l *Limiter) Decrease() {
	l.allowance -= 1.0
}
