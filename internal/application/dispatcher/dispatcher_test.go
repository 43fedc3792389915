package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bangunpro/rab-approval/internal/domain/event"
)

func TestDispatch_RunsHandlersInOrder(t *testing.T) {
	d := New()
	var order []string

	d.Subscribe(event.TypeDecisionRecorded, "first", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "first")
		return nil
	})
	d.Subscribe(event.TypeDecisionRecorded, "second", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "second")
		return nil
	})

	evt := event.New(event.TypeDecisionRecorded, "inst-1", "step-1", nil)
	if err := d.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("handlers ran in order %v", order)
	}
}

func TestDispatch_StopsOnFirstError(t *testing.T) {
	d := New()
	failErr := errors.New("boom")
	secondRan := false

	d.Subscribe(event.TypeInstanceRejected, "failing", func(ctx context.Context, evt *event.Event) error {
		return failErr
	})
	d.Subscribe(event.TypeInstanceRejected, "after", func(ctx context.Context, evt *event.Event) error {
		secondRan = true
		return nil
	})

	err := d.Dispatch(context.Background(), event.New(event.TypeInstanceRejected, "inst-1", "", nil))
	if !errors.Is(err, failErr) {
		t.Fatalf("Dispatch() error = %v, want wrapped %v", err, failErr)
	}
	if secondRan {
		t.Error("handler after a failure must not run")
	}
}

func TestDispatch_RecoversPanics(t *testing.T) {
	d := New()
	d.Subscribe(event.TypeStepPending, "panicky", func(ctx context.Context, evt *event.Event) error {
		panic("handler exploded")
	})

	err := d.Dispatch(context.Background(), event.New(event.TypeStepPending, "inst-1", "step-1", nil))
	if err == nil {
		t.Fatal("Dispatch() should surface a panic as an error")
	}
}

func TestDispatchAsync_DoesNotBlock(t *testing.T) {
	d := New()
	var mu sync.Mutex
	calls := 0
	release := make(chan struct{})

	d.Subscribe(event.TypeStepEscalated, "slow", func(ctx context.Context, evt *event.Event) error {
		<-release
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	done := make(chan struct{})
	go func() {
		d.DispatchAsync(context.Background(), event.New(event.TypeStepEscalated, "inst-1", "step-1", nil))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("DispatchAsync() blocked on handler")
	}

	close(release)
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
}

func TestClose_RejectsFurtherDispatch(t *testing.T) {
	d := New()
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := d.Dispatch(context.Background(), event.New(event.TypeStepPending, "inst-1", "", nil)); err == nil {
		t.Error("Dispatch() after Close() should fail")
	}
	if err := d.Close(); err == nil {
		t.Error("second Close() should fail")
	}
}
