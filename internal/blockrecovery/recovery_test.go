package blockrecovery

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/identity"
	"github.com/iaros/marketwatch/internal/throttle"
)

func TestDetectPrecedence(t *testing.T) {
	if bt := Detect(Response{StatusCode: 200, Body: "please digite os caracteres abaixo"}); bt != BlockCaptcha {
		t.Fatalf("expected captcha, got %v", bt)
	}
	if bt := Detect(Response{StatusCode: 429, Body: ""}); bt != BlockHTTP429 {
		t.Fatalf("expected 429, got %v", bt)
	}
	if bt := Detect(Response{StatusCode: 403, Body: ""}); bt != BlockHTTP403 {
		t.Fatalf("expected 403, got %v", bt)
	}
	if bt := Detect(Response{StatusCode: 200, Body: "ok"}); bt != BlockNone {
		t.Fatalf("expected none, got %v", bt)
	}
}

// fakeCmdable stubs only the commands Manager.Handle exercises via
// kv.SuspendGlobally (a Set call).
type fakeCmdable struct {
	redis.Cmdable
	sets map[string]time.Duration
}

func (f *fakeCmdable) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	if f.sets == nil {
		f.sets = map[string]time.Duration{}
	}
	f.sets[key] = ttl
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func TestHandleEscalatesSuspensionWithSeverity(t *testing.T) {
	client := &fakeCmdable{}
	logger := zap.NewNop()
	uas := identity.NewUserAgentManager(nil)
	cookies := identity.NewCookieManager()
	delay := throttle.NewHumanizedDelay(time.Second, 0, 200)

	m := New(client, uas, cookies, delay, nil,
		[]time.Duration{300 * time.Second, 900 * time.Second, 1800 * time.Second},
		30*time.Second, logger)

	out := m.Handle(context.Background(), "sess-1", "https://example.com", BlockCaptcha, 0)
	if out.Severity != 3 {
		t.Fatalf("expected severity 3 for captcha, got %d", out.Severity)
	}
	if out.SuspendDuration != 1800*time.Second {
		t.Fatalf("expected 1800s suspension for severity 3, got %v", out.SuspendDuration)
	}
	if !out.CookiesReset {
		t.Fatal("expected cookies reset")
	}
	if out.BrowserAttempted {
		t.Fatal("expected no browser attempt with nil fallback")
	}
}

func TestHandleSeverityMonotonicallyIncrements(t *testing.T) {
	client := &fakeCmdable{}
	logger := zap.NewNop()
	uas := identity.NewUserAgentManager(nil)
	cookies := identity.NewCookieManager()
	delay := throttle.NewHumanizedDelay(time.Second, 0, 200)

	m := New(client, uas, cookies, delay, nil,
		[]time.Duration{300 * time.Second, 900 * time.Second, 1800 * time.Second},
		30*time.Second, logger)

	// block_recovery.py: self._severity = max(level, self._severity + 1) —
	// severity climbs by at least one on every call, even when the new
	// block's own level is lower than where severity already stood.
	out := m.Handle(context.Background(), "sess-1", "https://example.com", BlockHTTP429, 3)
	if out.Severity != 4 {
		t.Fatalf("expected severity to climb to 4, got %d", out.Severity)
	}
}

func TestHandleEscalatesAcrossThreeSuccessive429Blocks(t *testing.T) {
	client := &fakeCmdable{}
	logger := zap.NewNop()
	uas := identity.NewUserAgentManager(nil)
	cookies := identity.NewCookieManager()
	delay := throttle.NewHumanizedDelay(time.Second, 0, 200)

	m := New(client, uas, cookies, delay, nil,
		[]time.Duration{300 * time.Second, 900 * time.Second, 1800 * time.Second},
		30*time.Second, logger)

	wantDurations := []time.Duration{300 * time.Second, 900 * time.Second, 1800 * time.Second}
	severity := 0
	for i, want := range wantDurations {
		out := m.Handle(context.Background(), "sess-1", "https://example.com", BlockHTTP429, severity)
		severity = out.Severity
		if out.SuspendDuration != want {
			t.Fatalf("block %d: expected suspension %v, got %v", i+1, want, out.SuspendDuration)
		}
	}
	if severity != 3 {
		t.Fatalf("expected severity 3 after three successive 429 blocks, got %d", severity)
	}
}
