package throttle

import (
	"net/http"
	"testing"
	"time"
)

func TestParseRetryAfterSeconds(t *testing.T) {
	d, ok := ParseRetryAfter("120", time.Now())
	if !ok || d != 120*time.Second {
		t.Fatalf("expected 120s, got %v ok=%v", d, ok)
	}
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(30 * time.Second).Format(http.TimeFormat)
	d, ok := ParseRetryAfter(future, now)
	if !ok || d != 30*time.Second {
		t.Fatalf("expected 30s, got %v ok=%v", d, ok)
	}
}

func TestParseRetryAfterInvalid(t *testing.T) {
	if _, ok := ParseRetryAfter("not-a-value", time.Now()); ok {
		t.Fatal("expected ok=false for invalid header")
	}
}

func TestParseRetryAfterNeverNegative(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-30 * time.Second).Format(http.TimeFormat)
	d, ok := ParseRetryAfter(past, now)
	if !ok || d < 0 {
		t.Fatalf("expected non-negative delay, got %v ok=%v", d, ok)
	}
}
