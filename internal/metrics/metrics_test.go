package metrics

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestCollector_SessionLifecycle(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.SessionOpened()
	c.SessionOpened()
	c.SessionClosed(true)
	c.SessionClosed(false)
	c.SessionRejected()
	c.RecordError("read: connection reset by peer")

	got := c.Snapshot()
	want := Snapshot{
		Uptime:            got.Uptime,
		SessionsActive:    1,
		SessionsTotal:     3,
		SessionsCompleted: 1,
		SessionsRejected:  1,
		ErrorsTotal:       1,
		LastErrorAt:       got.LastErrorAt,
		LastErrorMessage:  "read: connection reset by peer",
	}
	if got != want {
		t.Errorf("snapshot:\n got %+v\nwant %+v", got, want)
	}
	if got.LastErrorAt == "" {
		t.Error("last error time missing")
	}
	if c.TotalSessions() != 3 || c.RejectedSessions() != 1 || c.ErrorCount() != 1 {
		t.Errorf("accessors disagree with snapshot: %d %d %d",
			c.TotalSessions(), c.RejectedSessions(), c.ErrorCount())
	}
}

func TestCollector_RoundsAndLines(t *testing.T) {
	c := New()
	for _, ok := range []bool{true, false, true} {
		c.LineSent()
		c.LineReceived()
		c.RoundCompleted(ok)
	}
	c.LineSent() // terminator

	s := c.Snapshot()
	if s.Rounds != 3 || c.Rounds() != 3 {
		t.Errorf("rounds = %d", s.Rounds)
	}
	if s.AnswersMatched != 2 {
		t.Errorf("matched = %d, want 2", s.AnswersMatched)
	}
	if s.LinesOut != 4 || s.LinesIn != 3 {
		t.Errorf("lines out/in = %d/%d, want 4/3", s.LinesOut, s.LinesIn)
	}
}

func TestCollector_ConcurrentHandlers(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.SessionOpened()
			c.RoundCompleted(true)
			c.SessionClosed(true)
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.SessionsActive != 0 || s.SessionsCompleted != 50 || s.AnswersMatched != 50 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestCollector_JSONFieldNames(t *testing.T) {
	c := New()
	c.SessionOpened()

	var doc map[string]any
	if err := json.Unmarshal([]byte(c.JSON()), &doc); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"uptime", "sessions_active", "rounds", "errors_total"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("missing %q in %v", key, doc)
		}
	}
	if _, ok := doc["last_error_at"]; ok {
		t.Error("last_error_at should be omitted before any failure")
	}

	c.RecordError("write: broken pipe")
	doc = nil
	if err := json.Unmarshal([]byte(c.JSON()), &doc); err != nil {
		t.Fatal(err)
	}
	at, _ := doc["last_error_at"].(string)
	if _, err := time.Parse(time.RFC3339, at); err != nil {
		t.Errorf("last_error_at = %q: %v", at, err)
	}
	if doc["last_error_message"] != "write: broken pipe" {
		t.Errorf("last_error_message = %v", doc["last_error_message"])
	}
}

func TestCollector_Nil(t *testing.T) {
	var c *Collector
	c.SessionOpened()
	c.SessionClosed(true)
	c.SessionRejected()
	c.RoundCompleted(true)
	c.LineReceived()
	c.LineSent()
	c.RecordError("ignored")

	if c.TotalSessions() != 0 || c.Rounds() != 0 || c.ErrorCount() != 0 {
		t.Error("nil collector should read as zero")
	}
	if c.Snapshot() != (Snapshot{}) {
		t.Error("nil snapshot should be zero")
	}
	if c.JSON() == "" {
		t.Error("nil collector should still render JSON")
	}
}
