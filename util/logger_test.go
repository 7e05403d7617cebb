package util

import (
	"bytes"
	"regexp"
	"testing"
)

func captured(verbosity int) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(verbosity)
	l.SetOutput(&buf)
	l.SetTimestamps(false)
	return l, &buf
}

func emitAll(l *Logger) {
	l.Debug("d")
	l.Verbose("v")
	l.Info("i")
	l.Warn("w")
	l.Error("e")
}

func TestLogger_Thresholds(t *testing.T) {
	tests := []struct {
		verbosity int
		want      string
	}{
		{0, "[ERR] e\n"},
		{1, "[INF] i\n[WRN] w\n[ERR] e\n"},
		{2, "[VRB] v\n[INF] i\n[WRN] w\n[ERR] e\n"},
		{3, "[DBG] d\n[VRB] v\n[INF] i\n[WRN] w\n[ERR] e\n"},
	}
	for _, tt := range tests {
		l, buf := captured(tt.verbosity)
		emitAll(l)
		if got := buf.String(); got != tt.want {
			t.Errorf("-v=%d:\n got %q\nwant %q", tt.verbosity, got, tt.want)
		}
	}
}

func TestLogger_DebugStampsLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(3)
	l.SetOutput(&buf)

	l.Debug("accepted %s", "127.0.0.1:5000")

	stamped := regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\.\d{3} \[DBG\] accepted 127\.0\.0\.1:5000\n$`)
	if !stamped.MatchString(buf.String()) {
		t.Errorf("got %q", buf.String())
	}
}

func TestLogger_ScopesNest(t *testing.T) {
	root, buf := captured(1)

	root.With("7c1e").With("10.0.0.9:41000").Warn("reply %q", "Who?")
	root.Info("unscoped")

	want := "[WRN] 7c1e 10.0.0.9:41000: reply \"Who?\"\n[INF] unscoped\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
