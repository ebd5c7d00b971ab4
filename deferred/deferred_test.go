package deferred

import (
	"context"
	"errors"
	"testing"
	"time"

	"post-rpc/wire"
)

func TestResolveWins(t *testing.T) {
	d := New(0)
	d.Resolve(42)
	d.Reject(errors.New("too late"))
	d.Resolve(43)

	v, err := d.Await(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != 42 {
		t.Fatalf("expect 42, got %v", v)
	}
}

func TestRejectWins(t *testing.T) {
	d := New(0)
	boom := errors.New("boom")
	d.Reject(boom)
	d.Resolve(42)

	if _, err := d.Await(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expect boom, got %v", err)
	}
}

func TestTimeoutAutoRejects(t *testing.T) {
	d := New(20 * time.Millisecond)

	start := time.Now()
	_, err := d.Await(context.Background())
	if !errors.Is(err, wire.ErrTimeout) {
		t.Fatalf("expect timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("rejected early, after %v", elapsed)
	}
}

func TestSettlementCancelsTimer(t *testing.T) {
	d := New(20 * time.Millisecond)
	d.Resolve("ok")

	time.Sleep(50 * time.Millisecond)
	v, err := d.Await(context.Background())
	if err != nil {
		t.Fatalf("late timeout fired after settlement: %v", err)
	}
	if v != "ok" {
		t.Fatalf("expect ok, got %v", v)
	}
}

func TestZeroTimeoutNeverFires(t *testing.T) {
	d := New(0)
	time.Sleep(30 * time.Millisecond)
	if d.Settled() {
		t.Fatal("untimed deferred settled on its own")
	}
	d.Resolve(1)
}

func TestArmStartsClockLate(t *testing.T) {
	d := New(0)
	time.Sleep(30 * time.Millisecond)
	if d.Settled() {
		t.Fatal("settled before arming")
	}
	d.Arm(15 * time.Millisecond)

	if _, err := d.Await(context.Background()); !errors.Is(err, wire.ErrTimeout) {
		t.Fatalf("expect timeout after arming, got %v", err)
	}
}

func TestAwaitContextCancelDoesNotSettle(t *testing.T) {
	d := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Await(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect context.Canceled, got %v", err)
	}
	if d.Settled() {
		t.Fatal("cancellation settled the deferred")
	}

	d.Resolve("still fine")
	if v, err := d.Await(context.Background()); err != nil || v != "still fine" {
		t.Fatalf("real outcome lost: %v %v", v, err)
	}
}
