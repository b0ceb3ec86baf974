// Package domain holds the gate counter data model and the pure rules around it.
package domain

import "time"

// RawSample is one decoded sensor reading: three cumulative counters.
type RawSample struct {
	Alarm    int64
	Incoming int64
	Outgoing int64
}

// Deltas are the signed differences between two consecutive readings of a gate.
type Deltas struct {
	Alarm    int64
	Incoming int64
	Outgoing int64
}

// GateSample is one immutable time-series row.
type GateSample struct {
	Timestamp     time.Time `json:"timestamp"`
	GateName      string    `json:"gate_name"`
	AlarmCount    int64     `json:"alarm_count"`
	AlarmDiff     int64     `json:"alarm_diff"`
	IncomingCount int64     `json:"incoming_patrons_count"`
	IncomingDiff  int64     `json:"incoming_diff"`
	OutgoingCount int64     `json:"outgoing_patrons_count"`
	OutgoingDiff  int64     `json:"outgoing_diff"`
}

// Raw returns the cumulative counters of the row.
func (s GateSample) Raw() RawSample {
	return RawSample{Alarm: s.AlarmCount, Incoming: s.IncomingCount, Outgoing: s.OutgoingCount}
}

// ComputeDeltas subtracts the previous row's counters from the current reading.
// A nil previous row yields zero deltas. Decreases are kept as negative values.
func ComputeDeltas(cur RawSample, prev *GateSample) Deltas {
	if prev == nil {
		return Deltas{}
	}
	return Deltas{
		Alarm:    cur.Alarm - prev.AlarmCount,
		Incoming: cur.Incoming - prev.IncomingCount,
		Outgoing: cur.Outgoing - prev.OutgoingCount,
	}
}

// NewSample assembles a row from a reading and its deltas.
func NewSample(ts time.Time, gate string, raw RawSample, d Deltas) GateSample {
	return GateSample{
		Timestamp:     ts,
		GateName:      gate,
		AlarmCount:    raw.Alarm,
		AlarmDiff:     d.Alarm,
		IncomingCount: raw.Incoming,
		IncomingDiff:  d.Incoming,
		OutgoingCount: raw.Outgoing,
		OutgoingDiff:  d.Outgoing,
	}
}
