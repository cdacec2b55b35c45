package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestAgentLockManager_BasicLockUnlock verifies basic lock/unlock operations.
func TestAgentLockManager_BasicLockUnlock(t *testing.T) {
	mgr := NewAgentLockManager()
	ctx := context.Background()

	if err := mgr.Lock(ctx, "hotel"); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	mgr.Unlock("hotel")

	// Should be able to lock again after unlock
	if err := mgr.Lock(ctx, "hotel"); err != nil {
		t.Fatalf("second Lock() error = %v", err)
	}
	mgr.Unlock("hotel")

	// Unlocking a free agent must not block or panic
	mgr.Unlock("email")
}

// TestAgentLockManager_SameAgentBlocks verifies that one agent is never entered twice.
func TestAgentLockManager_SameAgentBlocks(t *testing.T) {
	mgr := NewAgentLockManager()
	ctx := context.Background()
	var active, maxActive atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mgr.Lock(ctx, "taxi_fabric"); err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			mgr.Unlock("taxi_fabric")
		}()
	}
	wg.Wait()

	if maxActive.Load() != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive.Load())
	}
}

// TestAgentLockManager_DifferentAgentsConcurrent verifies that different agents don't block each other.
func TestAgentLockManager_DifferentAgentsConcurrent(t *testing.T) {
	mgr := NewAgentLockManager()
	ctx := context.Background()

	if err := mgr.Lock(ctx, "taxi_fabric"); err != nil {
		t.Fatal(err)
	}
	defer mgr.Unlock("taxi_fabric")

	done := make(chan struct{})
	go func() {
		_ = mgr.Lock(ctx, "taxi_genie")
		mgr.Unlock("taxi_genie")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locking a different agent blocked")
	}
}

func TestAgentLockManager_ContextCancel(t *testing.T) {
	mgr := NewAgentLockManager()
	if err := mgr.Lock(context.Background(), "email"); err != nil {
		t.Fatal(err)
	}
	defer mgr.Unlock("email")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := mgr.Lock(ctx, "email")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Lock() error = %v, want DeadlineExceeded", err)
	}
}
