package observer_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vshulcz/Gatecounter/pkg/observer"
)

type passEvent struct {
	ID string
}

func TestSubject_Publish_NotifiesAllInOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string) observer.Observer[passEvent] {
		return observer.ObserverFunc[passEvent](func(_ context.Context, evt passEvent) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name+":"+evt.ID)
			return nil
		})
	}

	subj := observer.NewSubject(record("audit"))
	subj.Attach(record("metrics"), nil)
	subj.Publish(context.Background(), passEvent{ID: "p1"})

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "audit:p1" || order[1] != "metrics:p1" {
		t.Fatalf("unexpected notification order: %v", order)
	}
	if subj.Len() != 3 {
		t.Fatalf("Len()=%d", subj.Len())
	}
}

func TestSubject_ErrorHandler(t *testing.T) {
	subj := observer.NewSubject[passEvent]()
	var errs []error
	subj.SetErrorHandler(func(err error) { errs = append(errs, err) })

	delivered := false
	subj.Attach(
		observer.ObserverFunc[passEvent](func(context.Context, passEvent) error { return errors.New("boom") }),
		observer.ObserverFunc[passEvent](func(context.Context, passEvent) error { panic("sink exploded") }),
		observer.ObserverFunc[passEvent](func(context.Context, passEvent) error { delivered = true; return nil }),
	)

	subj.Publish(context.Background(), passEvent{})

	if !delivered {
		t.Fatal("observer after failures must still be notified")
	}
	if len(errs) != 2 || errs[0].Error() != "boom" {
		t.Fatalf("expected boom and a panic error, got %+v", errs)
	}
	var pe *observer.PanicError
	if !errors.As(errs[1], &pe) || pe.Value != "sink exploded" {
		t.Fatalf("expected PanicError, got %v", errs[1])
	}
}

func TestSubject_NilSafe(t *testing.T) {
	var subj *observer.Subject[passEvent]
	subj.Publish(context.Background(), passEvent{})
	subj.Attach(observer.ObserverFunc[passEvent](nil))
	subj.SetErrorHandler(nil)
	if subj.Len() != 0 {
		t.Fatal("nil subject must report zero observers")
	}

	var fn observer.ObserverFunc[passEvent]
	if err := fn.Notify(context.Background(), passEvent{}); err != nil {
		t.Fatalf("nil ObserverFunc must be a no-op, got %v", err)
	}
}
