package gatekeep

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestBuild_LocalWithoutRedis(t *testing.T) {
	gate, err := New().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(gate.Close)

	if gate.RemoteBacked() {
		t.Fatal("no redis client configured, expected local stores")
	}
	for _, name := range []string{LimiterLogin, LimiterPasswordReset, LimiterAPI, LimiterChat, LimiterUpload} {
		if _, err := gate.Limiter(name); err != nil {
			t.Fatalf("limiter %q missing: %v", name, err)
		}
	}
	if gate.Sessions() == nil {
		t.Fatal("session manager not wired")
	}
}

func TestBuild_UnreachableRedisFallsBackLocal(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1", // nothing listens here
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	sink := NewChannelSink(4)
	gate, err := New().WithRedis(client).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if gate.RemoteBacked() {
		t.Fatal("unreachable redis must downgrade to local stores")
	}

	// The permanent fallback still enforces.
	ctx := context.Background()
	lim := gate.MustLimiter(LimiterLogin)
	for i := 0; i < 5; i++ {
		if st := lim.Evaluate(ctx, "ip_10.0.0.1"); !st.Allowed {
			t.Fatalf("request %d rejected within budget", i+1)
		}
	}
	if st := lim.Evaluate(ctx, "ip_10.0.0.1"); st.Allowed {
		t.Fatal("sixth request should be rejected locally")
	}

	gate.Close()

	var degraded bool
drain:
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType == AuditBackendDegraded {
				degraded = true
			}
		default:
			break drain
		}
	}
	if !degraded {
		t.Fatal("startup downgrade was not audited")
	}
}

func TestBuild_ValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit.Chat.MaxRequests = 0
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected validation error for zero budget")
	}
}

func TestBuild_SingleUse(t *testing.T) {
	b := New()
	gate, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(gate.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("second Build on the same builder must fail")
	}
}

func TestBuild_ProductionModeForcesSecureCookies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.ProductionMode = true
	cfg.Session.Secure = false

	gate, err := New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(gate.Close)

	if !gate.Sessions().Config().Secure {
		t.Fatal("production mode must force Secure cookies")
	}
}

func TestMustLimiter_PanicsOnUnknownName(t *testing.T) {
	gate, _ := newLocalGate(t, DefaultConfig())

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown limiter name")
		}
	}()
	gate.MustLimiter("nope")
}
