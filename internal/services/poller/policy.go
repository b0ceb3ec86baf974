package poller

import (
	"fmt"
	"strings"
	"time"
)

// WaitPolicy computes how long the loop sleeps before the next pass.
type WaitPolicy interface {
	Next(now time.Time) time.Duration
}

// HourlyPolicy wakes at the top of every hour in Location (local time when nil).
type HourlyPolicy struct {
	Location *time.Location
}

// Next returns 3600 - (minute*60 + second) seconds. Exactly on the hour it waits a full hour.
func (p HourlyPolicy) Next(now time.Time) time.Duration {
	if p.Location != nil {
		now = now.In(p.Location)
	}
	elapsed := now.Minute()*60 + now.Second()
	return time.Duration(3600-elapsed) * time.Second
}

// IntervalPolicy waits a constant duration between passes.
type IntervalPolicy struct {
	Every time.Duration
}

func (p IntervalPolicy) Next(time.Time) time.Duration { return p.Every }

const (
	PolicyHourly   = "hourly"
	PolicyInterval = "interval"
)

// NewWaitPolicy builds the policy named by kind.
func NewWaitPolicy(kind string, every time.Duration, loc *time.Location) (WaitPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case PolicyHourly, "":
		return HourlyPolicy{Location: loc}, nil
	case PolicyInterval:
		if every <= 0 {
			return nil, fmt.Errorf("interval policy needs a positive interval, got %v", every)
		}
		return IntervalPolicy{Every: every}, nil
	default:
		return nil, fmt.Errorf("unknown wait policy %q", kind)
	}
}
