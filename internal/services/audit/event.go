package audit

import (
	"context"

	"github.com/vshulcz/Gatecounter/internal/domain"
)

// Trigger values for Event.Trigger.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Event describes one finished polling pass: which gates were recorded, which
// failed, and who asked for it when the pass was triggered by hand.
type Event struct {
	PassID    string   `json:"pass_id"`
	Trigger   string   `json:"trigger"`
	Error     string   `json:"error,omitempty"`
	IPAddress string   `json:"ip_address,omitempty"`
	Recorded  []string `json:"recorded"`
	Failed    []string `json:"failed"`
	Timestamp int64    `json:"ts"`
	TookMS    int64    `json:"took_ms"`
}

// FromReport builds the audit event for rep. Trigger and client IP come from ctx.
func FromReport(ctx context.Context, rep domain.PassReport) Event {
	evt := Event{
		PassID:    rep.ID,
		Trigger:   TriggerFromContext(ctx),
		IPAddress: ClientIPFromContext(ctx),
		Timestamp: rep.FinishedAt.Unix(),
		TookMS:    rep.FinishedAt.Sub(rep.StartedAt).Milliseconds(),
		Recorded:  []string{},
		Failed:    []string{},
	}
	if rep.Err != nil {
		evt.Error = rep.Err.Error()
	}
	for _, o := range rep.Outcomes {
		if o.OK() {
			evt.Recorded = append(evt.Recorded, o.Gate.Name)
		} else {
			evt.Failed = append(evt.Failed, o.Gate.Name)
		}
	}
	return evt
}
