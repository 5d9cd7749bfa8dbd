package container

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestContainer_SingletonBuiltOnce(t *testing.T) {
	c := New()
	var calls int32
	c.RegisterSingleton("clock", func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return "instance", nil
	})

	for i := 0; i < 5; i++ {
		v, err := c.ResolveSingleton("clock")
		if err != nil {
			t.Fatalf("ResolveSingleton: %v", err)
		}
		if v != "instance" {
			t.Fatalf("got %v, want instance", v)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("factory called %d times, want 1", got)
	}
}

func TestContainer_ResolveUnregisteredFails(t *testing.T) {
	c := New()
	if _, err := c.ResolveSingleton("missing"); err == nil {
		t.Fatal("expected error resolving unregistered name")
	}
	var notRegistered *ErrNotRegistered
	if _, err := c.ResolveSession("s1", "missing"); !errors.As(err, &notRegistered) {
		t.Errorf("ResolveSession error = %v, want *ErrNotRegistered", err)
	}
}

func TestContainer_SessionScopeIsolatedPerSession(t *testing.T) {
	c := New()
	var calls int32
	c.RegisterSession("ctx", func(sessionID string) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "ctx-for-" + sessionID, nil
	})

	v1, _ := c.ResolveSession("s1", "ctx")
	v2, _ := c.ResolveSession("s2", "ctx")
	v1Again, _ := c.ResolveSession("s1", "ctx")

	if v1 != "ctx-for-s1" || v2 != "ctx-for-s2" {
		t.Fatalf("got v1=%v v2=%v", v1, v2)
	}
	if v1 != v1Again {
		t.Errorf("second resolve for s1 returned a different instance")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("factory called %d times, want 2", got)
	}
}

func TestContainer_CleanupSessionRemovesOnlyThatSessionsEntries(t *testing.T) {
	c := New()
	c.RegisterSession("ctx", func(sessionID string) (any, error) { return sessionID, nil })

	c.ResolveSession("s1", "ctx")
	c.ResolveSession("s2", "ctx")
	c.CleanupSession("s1")

	c.mu.RLock()
	_, s1Present := c.sessionInstances["s1:ctx"]
	_, s2Present := c.sessionInstances["s2:ctx"]
	c.mu.RUnlock()

	if s1Present {
		t.Error("s1's entry survived CleanupSession")
	}
	if !s2Present {
		t.Error("s2's entry was wrongly removed")
	}
}

func TestContainer_UpdateSessionServiceHotSwap(t *testing.T) {
	c := New()
	c.RegisterSession("stt", func(sessionID string) (any, error) { return "primary", nil })

	c.ResolveSession("s1", "stt")
	c.UpdateSessionService("s1", "stt", "fallback")

	v, err := c.ResolveSession("s1", "stt")
	if err != nil {
		t.Fatalf("ResolveSession: %v", err)
	}
	if v != "fallback" {
		t.Errorf("got %v, want fallback", v)
	}
}

func TestContainer_TransientBuildsFreshEveryCall(t *testing.T) {
	c := New()
	var calls int32
	c.RegisterTransient("id", func(args ...any) (any, error) {
		n := atomic.AddInt32(&calls, 1)
		return n, nil
	})

	v1, _ := c.ResolveTransient("id")
	v2, _ := c.ResolveTransient("id")
	if v1 == v2 {
		t.Errorf("transient resolves returned the same value: %v == %v", v1, v2)
	}
}

func TestResolve_TypeMismatchErrors(t *testing.T) {
	c := New()
	c.RegisterSingleton("name", func() (any, error) { return 42, nil })
	if _, err := Resolve[string](c, "name"); err == nil {
		t.Fatal("expected type-mismatch error")
	}
}

func TestLifecycleManager_StopCancelsTrackedTasks(t *testing.T) {
	lm := NewLifecycleManager(context.Background(), "s1")
	done := make(chan struct{})

	if err := lm.CreateTask(func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	lm.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not observe cancellation before Stop returned")
	}
	if !lm.IsStopped() {
		t.Error("IsStopped() = false after Stop")
	}
}

func TestLifecycleManager_CreateTaskFailsAfterStop(t *testing.T) {
	lm := NewLifecycleManager(context.Background(), "s1")
	lm.Stop()
	if err := lm.CreateTask(func(context.Context) {}); err == nil {
		t.Error("expected CreateTask to fail after Stop")
	}
}

func TestLifecycleManager_StopIsIdempotent(t *testing.T) {
	lm := NewLifecycleManager(context.Background(), "s1")
	lm.Stop()
	lm.Stop()
	if !lm.IsStopped() {
		t.Error("IsStopped() = false after double Stop")
	}
}

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2)
	var running, maxRunning int32

	err := pool.SubmitAll(context.Background(),
		taskFn(&running, &maxRunning), taskFn(&running, &maxRunning),
		taskFn(&running, &maxRunning), taskFn(&running, &maxRunning),
	)
	if err != nil {
		t.Fatalf("SubmitAll: %v", err)
	}
	if maxRunning > 2 {
		t.Errorf("max concurrent tasks = %d, want <= 2", maxRunning)
	}
}

func taskFn(running, maxRunning *int32) func(context.Context) error {
	return func(context.Context) error {
		n := atomic.AddInt32(running, 1)
		for {
			m := atomic.LoadInt32(maxRunning)
			if n <= m || atomic.CompareAndSwapInt32(maxRunning, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(running, -1)
		return nil
	}
}
