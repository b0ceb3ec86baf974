package audit

import (
	"context"

	"github.com/vshulcz/Gatecounter/internal/domain"
	"github.com/vshulcz/Gatecounter/pkg/observer"
)

// Observer receives audit events.
type Observer = observer.Observer[Event]

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc = observer.ObserverFunc[Event]

// Publisher broadcasts audit events.
type Publisher = observer.Publisher[Event]

// Subject fans out events to registered observers.
type Subject = observer.Subject[Event]

// NewSubject creates a subject optionally pre-populated with observers.
func NewSubject(observers ...Observer) *Subject {
	return observer.NewSubject[Event](observers...)
}

// ReportObserver converts pass reports into audit events and publishes them to p.
func ReportObserver(p Publisher) observer.Observer[domain.PassReport] {
	return observer.ObserverFunc[domain.PassReport](func(ctx context.Context, rep domain.PassReport) error {
		if p == nil {
			return nil
		}
		p.Publish(ctx, FromReport(ctx, rep))
		return nil
	})
}
