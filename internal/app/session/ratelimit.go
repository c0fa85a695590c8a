/*
Package session contains the core logic for pairing anonymous participants.

This file defines the per-connection message rate limiter. It is a coarse
fixed-window counter rather than a token bucket: the window only advances when
a message arrives after the previous window elapsed, and rejections during a
window never extend it. Bursts straddling a window boundary are accepted as a
known trade-off of the algorithm.
*/
package session

import "time"

// rateRecord tracks one connection's message count within the current window.
type rateRecord struct {
	count     int
	windowEnd time.Time
}

// messageLimiter gates outbound message events per connection.
type messageLimiter struct {
	limit   int
	window  time.Duration
	records map[string]*rateRecord

	// now is swappable for tests.
	now func() time.Time
}

func newMessageLimiter(limit int, window time.Duration) *messageLimiter {
	return &messageLimiter{
		limit:   limit,
		window:  window,
		records: make(map[string]*rateRecord),
		now:     time.Now,
	}
}

// admit reports whether the connection may send another message.
// The record is created lazily on the first message; the count resets and the
// window boundary advances the first time a message arrives after the previous
// window has elapsed.
func (l *messageLimiter) admit(connID string) bool {
	now := l.now()

	rec, ok := l.records[connID]
	if !ok || !now.Before(rec.windowEnd) {
		l.records[connID] = &rateRecord{
			count:     1,
			windowEnd: now.Add(l.window),
		}
		return true
	}

	if rec.count < l.limit {
		rec.count++
		return true
	}

	return false
}

// forget discards the connection's record on disconnect.
func (l *messageLimiter) forget(connID string) {
	delete(l.records, connID)
}
