package internal

import "time"

// Timings records when each phase started and how long it took.
// Phases are "open", "writeHead", "write", "readHead", "readBody" and
// "close"; "total" spans open to close.
type Timings struct {
	Start map[string]time.Time
	Phase map[string]time.Duration
}

func (t *Timings) begin(phase string) time.Time {
	now := time.Now()
	if t.Start == nil {
		t.Start, t.Phase = map[string]time.Time{}, map[string]time.Duration{}
	}
	t.Start[phase] = now
	return now
}

func (t *Timings) end(phase string, start time.Time) time.Duration {
	d := time.Since(start)
	t.Phase[phase] = d
	return d
}

func (t *Timings) forget(phase string) {
	delete(t.Start, phase)
	delete(t.Phase, phase)
}

func (t Timings) clone() Timings {
	c := Timings{
		Start: make(map[string]time.Time, len(t.Start)),
		Phase: make(map[string]time.Duration, len(t.Phase)),
	}
	for k, v := range t.Start {
		c.Start[k] = v
	}
	for k, v := range t.Phase {
		c.Phase[k] = v
	}
	return c
}
