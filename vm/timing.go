package vm

import "time"

// noCPU marks a Timing record as not currently bound to any CPU.
const noCPU = -1

// Timing is the per-process accounting record admission creates and the
// dispatcher/termination path updates (spec.md §3/§4.7).
type Timing struct {
	PID int
	CID int // cpu index, or noCPU when unbound

	Burst          int // initial instruction count
	RemainingBurst int

	Arrival int // uniform 1..5, assigned at admission

	Start     time.Time
	EndTime   time.Time
	Execution time.Duration
}

// NewTiming creates the Timing record admission attaches to a freshly
// created PCB: burst equals the process's instruction count, and
// remaining burst starts equal to burst.
func NewTiming(pid, burst, arrival int) *Timing {
	return &Timing{
		PID:            pid,
		CID:            noCPU,
		Burst:          burst,
		RemainingBurst: burst,
		Arrival:        arrival,
	}
}

// Dispatch records that this process has been bound to cpu, setting
// Start on the first dispatch only (spec.md: "set Timing.start on first
// dispatch").
func (t *Timing) Dispatch(cpu int, now time.Time) {
	t.CID = cpu
	if t.Start.IsZero() {
		t.Start = now
	}
}

// Preempt clears the cpu binding without touching Start/RemainingBurst;
// Emulator.Tick decrements RemainingBurst itself as instructions execute.
func (t *Timing) Preempt() {
	t.CID = noCPU
}

// Finalize records termination time and total execution duration,
// per spec.md's "finalize Timing (end_time, execution)".
func (t *Timing) Finalize(end time.Time, execution time.Duration) {
	t.EndTime = end
	t.Execution = execution
}

// Turnaround is end_time - start.
func (t *Timing) Turnaround() time.Duration {
	if t.EndTime.IsZero() || t.Start.IsZero() {
		return 0
	}
	return t.EndTime.Sub(t.Start)
}

// Service is the process's total execution time, an alias spec.md's
// termination statistics name directly.
func (t *Timing) Service() time.Duration {
	return t.Execution
}

// ResponseRatio is turnaround / service, used for termination
// statistics. HRRN selection computes its own ratio from tick counts
// (Scheduler.hrrnRatio), not this one.
func (t *Timing) ResponseRatio() float64 {
	if t.Execution <= 0 {
		return 0
	}
	return float64(t.Turnaround()) / float64(t.Execution)
}

// TotalTurnaround sums the turnaround of every finalized Timing, spec.md's
// "Total wall-clock = sum of per-process turnarounds".
func TotalTurnaround(timings []*Timing) time.Duration {
	var total time.Duration
	for _, t := range timings {
		total += t.Turnaround()
	}
	return total
}
