package domain

import "time"

// Stage names the step of per-gate processing where a failure happened.
type Stage string

const (
	StageFetch Stage = "fetch"
	StageRead  Stage = "read"
	StageWrite Stage = "write"
)

// GateOutcome is the result of processing one gate during a pass.
type GateOutcome struct {
	Err      error
	Sample   *GateSample
	Gate     Gate
	Stage    Stage
	Duration time.Duration
}

// OK reports whether a sample was stored for the gate.
func (o GateOutcome) OK() bool { return o.Err == nil && o.Sample != nil }

// PassReport summarizes one polling pass over all configured gates.
type PassReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
	ID         string
	Outcomes   []GateOutcome
}

// Recorded returns the number of gates that produced a stored sample.
func (r PassReport) Recorded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed returns the number of gates that were skipped because of an error.
func (r PassReport) Failed() int {
	return len(r.Outcomes) - r.Recorded()
}
