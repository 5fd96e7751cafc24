package delay

import (
	"context"
	"testing"
	"time"
)

func TestHandleZeroIsNoop(t *testing.T) {
	m := Manager{}
	start := time.Now()
	if err := m.Handle(context.Background(), Cmd); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Fatalf("expected near-instant return for zero delay")
	}
}

func TestHandleSleepsConfiguredDuration(t *testing.T) {
	m := Manager{PerCmd: 30 * time.Millisecond, Post: 60 * time.Millisecond}
	start := time.Now()
	if err := m.Handle(context.Background(), Cmd); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("returned too early")
	}

	start = time.Now()
	if err := m.Handle(context.Background(), PostBlock); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 60*time.Millisecond {
		t.Fatalf("returned too early for post delay")
	}
}

func TestHandleCancelledByContext(t *testing.T) {
	m := Manager{PerCmd: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := m.Handle(ctx, Cmd)
	if err == nil {
		t.Fatalf("expected context cancellation error")
	}
}
