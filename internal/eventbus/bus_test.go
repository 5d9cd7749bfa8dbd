package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testEvent struct {
	SessionEvent
}

func (testEvent) Type() string { return "test_event" }

func TestBus_SyncHandlersRunInRegistrationOrder(t *testing.T) {
	b := New()
	var order []int
	var mu sync.Mutex

	for i := 0; i < 3; i++ {
		i := i
		b.Subscribe(testEvent{}.Type(), func(ctx context.Context, event Event) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}, false)
	}

	b.Publish(context.Background(), testEvent{SessionEvent{SessionID: "s1"}})

	if len(order) != 3 {
		t.Fatalf("got %d invocations, want 3", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Errorf("order[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestBus_PublishWaitsForAsyncHandlers(t *testing.T) {
	b := New()
	var done int32

	b.Subscribe(testEvent{}.Type(), func(ctx context.Context, event Event) error {
		time.Sleep(20 * time.Millisecond)
		atomic.StoreInt32(&done, 1)
		return nil
	}, true)

	b.Publish(context.Background(), testEvent{})

	if atomic.LoadInt32(&done) != 1 {
		t.Error("Publish returned before the async handler finished")
	}
}

func TestBus_HandlerPanicDoesNotAbortSiblingsOrPublisher(t *testing.T) {
	b := New()
	var secondRan int32

	b.Subscribe(testEvent{}.Type(), func(ctx context.Context, event Event) error {
		panic("boom")
	}, false)
	b.Subscribe(testEvent{}.Type(), func(ctx context.Context, event Event) error {
		atomic.StoreInt32(&secondRan, 1)
		return nil
	}, false)

	b.Publish(context.Background(), testEvent{})

	if atomic.LoadInt32(&secondRan) != 1 {
		t.Error("second handler did not run after the first panicked")
	}
}

func TestBus_HandlerErrorDoesNotAbortSiblings(t *testing.T) {
	b := New()
	var secondRan int32

	b.Subscribe(testEvent{}.Type(), func(ctx context.Context, event Event) error {
		return errors.New("handler failed")
	}, false)
	b.Subscribe(testEvent{}.Type(), func(ctx context.Context, event Event) error {
		atomic.StoreInt32(&secondRan, 1)
		return nil
	}, false)

	b.Publish(context.Background(), testEvent{})

	if atomic.LoadInt32(&secondRan) != 1 {
		t.Error("second handler did not run after the first returned an error")
	}
}

func TestBus_UnsubscribeRemovesHandler(t *testing.T) {
	b := New()
	var calls int32

	sub := b.Subscribe(testEvent{}.Type(), func(ctx context.Context, event Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, false)

	b.Publish(context.Background(), testEvent{})
	b.Unsubscribe(sub)
	b.Publish(context.Background(), testEvent{})

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBus_NoSubscribersIsANoOp(t *testing.T) {
	b := New()
	b.Publish(context.Background(), testEvent{})
}

func TestBus_PublishOnlyInvokesMatchingEventType(t *testing.T) {
	b := New()
	var calls int32

	b.Subscribe("other_event", func(ctx context.Context, event Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, false)

	b.Publish(context.Background(), testEvent{})

	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}
