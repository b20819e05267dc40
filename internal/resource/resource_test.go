package resource

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquireTemp_FailsFastWhenExhausted(t *testing.T) {
	m := NewManager(1, 1000)

	lease, err := m.AcquireTemp(600)
	if err != nil {
		t.Fatalf("first reservation: %v", err)
	}

	start := time.Now()
	_, err = m.AcquireTemp(600)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("exhausted acquire must not block, took %s", elapsed)
	}
	var ee *ExhaustedError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if ee.Need != 600 || ee.Free != 400 {
		t.Fatalf("error should report need/free, got need=%d free=%d", ee.Need, ee.Free)
	}

	lease.Release()
	if _, err := m.AcquireTemp(600); err != nil {
		t.Fatalf("after release the quota must fit again: %v", err)
	}
}

func TestTempLease_ReleaseIdempotent(t *testing.T) {
	m := NewManager(1, 1000)
	lease, err := m.AcquireTemp(400)
	if err != nil {
		t.Fatal(err)
	}
	lease.Release()
	lease.Release()
	if used := m.TempUsed(); used != 0 {
		t.Fatalf("double release corrupted accounting: used=%d", used)
	}
}

func TestAcquireJob_BlocksUntilSlotFree(t *testing.T) {
	m := NewManager(1, 0)

	release, err := m.AcquireJob(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	go func() {
		r, err := m.AcquireJob(context.Background())
		if err != nil {
			t.Error(err)
			close(acquired)
			return
		}
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second job acquired a slot while the pool was full")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("released slot never reached the waiter")
	}
}

func TestAcquireJob_CancelledContext(t *testing.T) {
	m := NewManager(1, 0)
	release, err := m.AcquireJob(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.AcquireJob(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestReleaseJob_Idempotent(t *testing.T) {
	m := NewManager(1, 0)
	release, err := m.AcquireJob(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	release()
	release()

	// The pool must still hold exactly one slot.
	r2, err := m.AcquireJob(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer r2()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.AcquireJob(ctx); err == nil {
		t.Fatal("double release grew the pool")
	}
}
