package gatekeep

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRecordAttempt_FifthFailureLocks(t *testing.T) {
	gate, _ := newLocalGate(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		res := gate.RecordAttempt(ctx, IdentifierEmail, "user@example.com", "10.1.1.1", false)
		if res.LockedNow {
			t.Fatalf("failure %d locked early", i+1)
		}
		if res.RemainingBeforeLock != 4-i {
			t.Fatalf("failure %d: remaining = %d, want %d", i+1, res.RemainingBeforeLock, 4-i)
		}
	}

	res := gate.RecordAttempt(ctx, IdentifierEmail, "user@example.com", "10.1.1.1", false)
	if !res.LockedNow {
		t.Fatal("fifth failure must lock")
	}

	st := gate.IsLocked(ctx, IdentifierEmail, "user@example.com", "10.1.1.1")
	if !st.Locked {
		t.Fatal("expected active lockout")
	}
	if st.Remaining <= 0 || st.Remaining > 15*time.Minute {
		t.Fatalf("remaining = %v, want (0, 15m]", st.Remaining)
	}
	if st.WaitMinutes() != 16 && st.WaitMinutes() != 15 {
		t.Fatalf("WaitMinutes = %d, want rounded-up minutes", st.WaitMinutes())
	}
}

func TestRecordAttempt_SuccessClearsFailureWindow(t *testing.T) {
	gate, _ := newLocalGate(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		gate.RecordAttempt(ctx, IdentifierEmail, "user@example.com", "ip", false)
	}
	gate.RecordAttempt(ctx, IdentifierEmail, "user@example.com", "ip", true)

	// The slate is clean: four more failures still do not lock.
	for i := 0; i < 4; i++ {
		res := gate.RecordAttempt(ctx, IdentifierEmail, "user@example.com", "ip", false)
		if res.LockedNow {
			t.Fatalf("failure %d after success locked early", i+1)
		}
	}
}

func TestProgressiveLockout_SecondEpisodeDoubles(t *testing.T) {
	gate, clock := newLocalGate(t, DefaultConfig())
	ctx := context.Background()

	episode := func() time.Duration {
		for i := 0; i < 5; i++ {
			gate.RecordAttempt(ctx, IdentifierEmail, "repeat@example.com", "ip", false)
		}
		st := gate.IsLocked(ctx, IdentifierEmail, "repeat@example.com", "ip")
		if !st.Locked {
			t.Fatal("expected lockout")
		}
		clock.Advance(st.Remaining + time.Second)
		return st.Remaining
	}

	first := episode()
	second := episode()
	third := episode()

	if second != 2*first {
		t.Fatalf("second episode = %v, want double %v", second, first)
	}
	if third != time.Hour {
		t.Fatalf("third episode = %v, want the 1h cap", third)
	}
}

func TestLockout_ExpiresLazily(t *testing.T) {
	gate, clock := newLocalGate(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		gate.RecordAttempt(ctx, IdentifierIP, "", "192.0.2.7", false)
	}
	if st := gate.IsLocked(ctx, IdentifierIP, "", "192.0.2.7"); !st.Locked {
		t.Fatal("expected lockout")
	}

	clock.Advance(15*time.Minute + time.Second)
	if st := gate.IsLocked(ctx, IdentifierIP, "", "192.0.2.7"); st.Locked {
		t.Fatal("lockout should expire without a timer")
	}
}

func TestCheckLoginLocked_CoversAllGranularities(t *testing.T) {
	gate, _ := newLocalGate(t, DefaultConfig())
	ctx := context.Background()

	// Lock only the IP dimension.
	for i := 0; i < 5; i++ {
		gate.RecordAttempt(ctx, IdentifierIP, "", "198.51.100.4", false)
	}

	// A fresh email from the same address is still refused.
	st := gate.CheckLoginLocked(ctx, "fresh@example.com", "198.51.100.4")
	if !st.Locked {
		t.Fatal("rotating the email must not bypass the IP lockout")
	}

	// Same email from a clean address passes.
	if st := gate.CheckLoginLocked(ctx, "fresh@example.com", "203.0.113.11"); st.Locked {
		t.Fatal("clean address and email should be unlocked")
	}
}

func TestRecordLoginAttempt_CombinedOnlyOnFailure(t *testing.T) {
	gate, _ := newLocalGate(t, DefaultConfig())
	ctx := context.Background()

	// Four failures populate the combined dimension.
	for i := 0; i < 4; i++ {
		gate.RecordLoginAttempt(ctx, "pair@example.com", "10.0.0.5", false)
	}
	// One failure for the email alone from elsewhere locks email at five,
	// but combined for the original pair is still at four.
	gate.RecordLoginAttempt(ctx, "pair@example.com", "10.9.9.9", false)

	if st := gate.IsLocked(ctx, IdentifierEmail, "pair@example.com", "10.0.0.5"); !st.Locked {
		t.Fatal("email dimension should be locked after five failures")
	}
	if st := gate.IsLocked(ctx, IdentifierCombined, "pair@example.com", "10.0.0.5"); st.Locked {
		t.Fatal("combined dimension should still be one failure short")
	}
}

func TestIsLocked_RedisFailureFailsOpen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audit.Enabled = false
	gate, mr, _ := newRedisGate(t, cfg)
	ctx := context.Background()

	mr.Close()

	if st := gate.IsLocked(ctx, IdentifierEmail, "user@example.com", "ip"); st.Locked {
		t.Fatal("backend failure must read as not locked")
	}
	res := gate.RecordAttempt(ctx, IdentifierEmail, "user@example.com", "ip", false)
	if res.LockedNow {
		t.Fatal("backend failure must not lock")
	}
	if res.RemainingBeforeLock != 5 {
		t.Fatalf("fail-open remaining = %d, want full budget", res.RemainingBeforeLock)
	}
	if gate.Metrics().Value(MetricLockoutFailOpen) == 0 {
		t.Fatal("fail-open metric not recorded")
	}
}

func TestLockout_RedisBackendParity(t *testing.T) {
	gate, mr, _ := newRedisGate(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		gate.RecordAttempt(ctx, IdentifierEmail, "user@example.com", "ip", false)
	}
	if st := gate.IsLocked(ctx, IdentifierEmail, "user@example.com", "ip"); !st.Locked {
		t.Fatal("expected lockout on redis backend")
	}

	mr.FastForward(15*time.Minute + time.Second)
	if st := gate.IsLocked(ctx, IdentifierEmail, "user@example.com", "ip"); st.Locked {
		t.Fatal("lockout key should have expired")
	}
}

func TestAllowLogin_ErrorForm(t *testing.T) {
	gate, _ := newLocalGate(t, DefaultConfig())
	ctx := context.Background()

	if err := gate.AllowLogin(ctx, "user@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("clean identity: %v", err)
	}
	for i := 0; i < 5; i++ {
		gate.RecordLoginAttempt(ctx, "user@example.com", "10.0.0.1", false)
	}
	if err := gate.AllowLogin(ctx, "user@example.com", "10.0.0.1"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("err = %v, want ErrAccountLocked", err)
	}
}

func TestLockoutID_HashesEmail(t *testing.T) {
	id := lockoutID(IdentifierEmail, "User@Example.COM", "")
	if strings.Contains(id, "example.com") {
		t.Fatal("raw email must not appear in the lockout key")
	}
	// Normalization: case differences map to the same bucket.
	if id != lockoutID(IdentifierEmail, "user@example.com", "") {
		t.Fatal("email hashing must be case-insensitive")
	}

	combined := lockoutID(IdentifierCombined, "user@example.com", "10.0.0.1")
	if combined == lockoutID(IdentifierCombined, "user@example.com", "10.0.0.2") {
		t.Fatal("combined key must vary with the address")
	}

	// Missing email falls back to the IP dimension.
	if got := lockoutID(IdentifierEmail, "", "10.0.0.1"); got != "ip:10.0.0.1" {
		t.Fatalf("fallback id = %q", got)
	}
}
