// Package metrics counts what a knockknock server has done: sessions,
// rounds, lines and failures.  The counters are atomics so handlers can
// record without locking, and a nil *Collector ignores every call.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

type counter int

const (
	active counter = iota
	opened
	completed
	rejected
	rounds
	matched
	linesIn
	linesOut
	failures
	numCounters
)

// Collector is shared by every session of one server.
type Collector struct {
	n       [numCounters]atomic.Int64
	started time.Time

	mu        sync.Mutex
	lastErrAt time.Time
	lastErr   string
}

// New returns a Collector whose uptime starts now.
func New() *Collector {
	return &Collector{started: time.Now()}
}

func (c *Collector) add(k counter, delta int64) {
	if c != nil {
		c.n[k].Add(delta)
	}
}

func (c *Collector) get(k counter) int64 {
	if c == nil {
		return 0
	}
	return c.n[k].Load()
}

// SessionOpened records a handler starting.
func (c *Collector) SessionOpened() {
	c.add(active, 1)
	c.add(opened, 1)
}

// SessionClosed records a handler finishing; ok means the terminator
// went out.
func (c *Collector) SessionClosed(ok bool) {
	c.add(active, -1)
	if ok {
		c.add(completed, 1)
	}
}

// SessionRejected records a connection turned away by the ceiling or
// a stopping listener.
func (c *Collector) SessionRejected() { c.add(rejected, 1) }

// RoundCompleted records one clue and its reply.
func (c *Collector) RoundCompleted(answerMatched bool) {
	c.add(rounds, 1)
	if answerMatched {
		c.add(matched, 1)
	}
}

func (c *Collector) LineReceived() { c.add(linesIn, 1) }
func (c *Collector) LineSent()     { c.add(linesOut, 1) }

// RecordError counts a failed session and remembers its message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.add(failures, 1)
	c.mu.Lock()
	c.lastErrAt, c.lastErr = time.Now(), msg
	c.mu.Unlock()
}

func (c *Collector) TotalSessions() int64    { return c.get(opened) }
func (c *Collector) RejectedSessions() int64 { return c.get(rejected) }
func (c *Collector) Rounds() int64           { return c.get(rounds) }
func (c *Collector) ErrorCount() int64       { return c.get(failures) }

// Snapshot is the /metrics document.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	SessionsActive    int64  `json:"sessions_active"`
	SessionsTotal     int64  `json:"sessions_total"`
	SessionsCompleted int64  `json:"sessions_completed"`
	SessionsRejected  int64  `json:"sessions_rejected"`
	Rounds            int64  `json:"rounds"`
	AnswersMatched    int64  `json:"answers_matched"`
	LinesIn           int64  `json:"lines_in"`
	LinesOut          int64  `json:"lines_out"`
	ErrorsTotal       int64  `json:"errors_total"`
	LastErrorAt       string `json:"last_error_at,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot reads every counter.  The counters are loaded one by one, so
// a snapshot taken under load may be off by an in-flight session.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	s := Snapshot{
		Uptime:            time.Since(c.started).Truncate(time.Second).String(),
		SessionsActive:    c.get(active),
		SessionsTotal:     c.get(opened),
		SessionsCompleted: c.get(completed),
		SessionsRejected:  c.get(rejected),
		Rounds:            c.get(rounds),
		AnswersMatched:    c.get(matched),
		LinesIn:           c.get(linesIn),
		LinesOut:          c.get(linesOut),
		ErrorsTotal:       c.get(failures),
	}
	c.mu.Lock()
	if !c.lastErrAt.IsZero() {
		s.LastErrorAt = c.lastErrAt.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErr
	}
	c.mu.Unlock()
	return s
}

// JSON renders Snapshot with two-space indentation.
func (c *Collector) JSON() string {
	b, _ := json.MarshalIndent(c.Snapshot(), "", "  ")
	return string(b)
}
