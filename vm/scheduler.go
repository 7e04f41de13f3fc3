package vm

import (
	"math/rand"
	"time"
)

// Discipline selects the short-term scheduling policy (spec.md §4.7).
type Discipline uint8

const (
	FCFS Discipline = iota
	SJF
	SRT
	RR
	HRRN
)

var disciplineNames = map[Discipline]string{
	FCFS: "FCFS",
	SJF:  "SJF",
	SRT:  "SRT",
	RR:   "RR",
	HRRN: "HRRN",
}

var nameToDiscipline = map[string]Discipline{
	"FCFS": FCFS,
	"SJF":  SJF,
	"SRT":  SRT,
	"RR":   RR,
	"HRRN": HRRN,
}

func (d Discipline) String() string {
	if name, ok := disciplineNames[d]; ok {
		return name
	}
	return "?"
}

// ParseDiscipline looks up a Discipline by its config/flag name.
func ParseDiscipline(name string) (Discipline, bool) {
	d, ok := nameToDiscipline[name]
	return d, ok
}

// stackSegmentSize is the fixed size of every process's stack allocation
// (spec.md §4.7: "a 5-byte stack segment").
const stackSegmentSize = 5

// Scheduler holds the long- and short-term scheduling state: the chosen
// discipline, the RR quantum, the global tick counter, and every
// process's Timing record (spec.md §3/§4.7).
type Scheduler struct {
	Discipline Discipline
	Quantum    int

	TickCounter int

	Timings map[int]*Timing

	rng *rand.Rand
}

// NewScheduler constructs a Scheduler for the given discipline and RR quantum.
func NewScheduler(discipline Discipline, quantum int) *Scheduler {
	return &Scheduler{
		Discipline: discipline,
		Quantum:    quantum,
		Timings:    make(map[int]*Timing),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AdmissionResult names a newly created PCB and the file it came from.
type AdmissionResult struct {
	PCBID    int
	FileName string
}

// CreatePCBs is the long-term scheduler: it walks storage's used list and
// admits every file not yet loaded, gated by free_size() >= encoded_size
// + stackSegmentSize (spec.md §4.7). Parse failures evict the offending
// file from storage and are reported as errors; files that don't yet fit
// are left for a later admission pass.
func (s *Scheduler) CreatePCBs(mem *Memory, storage *Storage, loaded map[string]bool) ([]AdmissionResult, []error) {
	var admitted []AdmissionResult
	var errs []error

	for _, f := range storage.Files() {
		if loaded[f.Name] {
			continue
		}

		data, ok := storage.Read(f.Name)
		if !ok {
			continue
		}

		instrs, err := Parse(data)
		if err != nil {
			storage.Evict(f.Name)
			loaded[f.Name] = true
			errs = append(errs, err)
			continue
		}

		programBytes := EncodeProgram(instrs)
		needed := len(programBytes) + stackSegmentSize
		if mem.FreeSize() < needed {
			continue
		}

		caddr, csize, err := mem.Store(programBytes)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		saddr, ssize, err := mem.Store(make([]byte, stackSegmentSize))
		if err != nil {
			mem.Free(caddr)
			errs = append(errs, err)
			continue
		}

		id := mem.LastPCBID() + 1
		pcb := NewPCB(id).SetCodeSegment(caddr, csize).SetStackSegment(saddr, ssize)
		pcb.ProcessState = StateNew

		if err := mem.StorePCB(pcb); err != nil {
			mem.Free(caddr)
			mem.Free(saddr)
			errs = append(errs, err)
			continue
		}

		loaded[f.Name] = true
		s.Timings[id] = NewTiming(id, len(instrs), 1+s.rng.Intn(5))
		admitted = append(admitted, AdmissionResult{PCBID: id, FileName: f.Name})
	}

	return admitted, errs
}

// DispatchDecision is one scheduling outcome: bind pcbID (stored at
// address/size) onto cpuIndex. Preempt marks a decision that replaces an
// already-running process rather than filling an idle CPU.
type DispatchDecision struct {
	CPUIndex int
	PCBID    int
	Address  int
	Size     int
	Preempt  bool
}

// candidate is a Ready/New PCB visible to Select, with the Timing fields
// selection disciplines sort on.
type candidate struct {
	id      int
	address int
	size    int
	burst   int
	remain  int
	arrival int
}

func (s *Scheduler) readyCandidates(mem *Memory) []candidate {
	var out []candidate
	for _, id := range mem.PCBTableIDs() {
		addr, size, ok := mem.PCBLocation(id)
		if !ok {
			continue
		}
		pcb := mem.ViewPCB(addr, size)
		if pcb.ProcessState != StateNew && pcb.ProcessState != StateReady {
			continue
		}
		t := s.Timings[id]
		if t == nil {
			continue
		}
		out = append(out, candidate{id: id, address: addr, size: size, burst: t.Burst, remain: t.RemainingBurst, arrival: t.Arrival})
	}
	return out
}

func idleCPUs(cpus []*CPU) []int {
	var out []int
	for i, c := range cpus {
		if c.IsEmpty() {
			out = append(out, i)
		}
	}
	return out
}

// Select runs the short-term scheduler once: it fills every idle CPU it
// can and, for the preemptive disciplines (SRT, and RR when
// forcePreempt is set by the quantum tick), may replace a running
// process. Ties among equal keys resolve by pcb_table insertion order,
// which readyCandidates already preserves.
func (s *Scheduler) Select(mem *Memory, cpus []*CPU, forcePreempt bool) []DispatchDecision {
	switch s.Discipline {
	case FCFS:
		return s.selectFCFS(mem, cpus)
	case SJF:
		return s.selectSJF(mem, cpus)
	case SRT:
		return s.selectSRT(mem, cpus)
	case RR:
		return s.selectRR(mem, cpus, forcePreempt)
	case HRRN:
		return s.selectHRRN(mem, cpus)
	default:
		return nil
	}
}

func (s *Scheduler) selectFCFS(mem *Memory, cpus []*CPU) []DispatchDecision {
	var decisions []DispatchDecision
	candidates := s.readyCandidates(mem)
	idle := idleCPUs(cpus)

	for _, c := range candidates {
		if len(idle) == 0 {
			break
		}
		pick := s.rng.Intn(len(idle))
		cpuIdx := idle[pick]
		idle = append(idle[:pick], idle[pick+1:]...)
		decisions = append(decisions, DispatchDecision{CPUIndex: cpuIdx, PCBID: c.id, Address: c.address, Size: c.size})
	}

	return decisions
}

func (s *Scheduler) selectSJF(mem *Memory, cpus []*CPU) []DispatchDecision {
	candidates := s.readyCandidates(mem)
	sortCandidates(candidates, func(a, b candidate) bool { return a.burst < b.burst })
	return s.fillIdle(candidates, cpus)
}

func (s *Scheduler) fillIdle(candidates []candidate, cpus []*CPU) []DispatchDecision {
	var decisions []DispatchDecision
	idle := idleCPUs(cpus)

	for _, c := range candidates {
		if len(idle) == 0 {
			break
		}
		pick := s.rng.Intn(len(idle))
		cpuIdx := idle[pick]
		idle = append(idle[:pick], idle[pick+1:]...)
		decisions = append(decisions, DispatchDecision{CPUIndex: cpuIdx, PCBID: c.id, Address: c.address, Size: c.size})
	}

	return decisions
}

func (s *Scheduler) selectSRT(mem *Memory, cpus []*CPU) []DispatchDecision {
	candidates := s.readyCandidates(mem)
	sortCandidates(candidates, func(a, b candidate) bool { return a.remain < b.remain })

	if len(idleCPUs(cpus)) > 0 || len(candidates) == 0 {
		return s.fillIdle(candidates, cpus)
	}

	best := candidates[0]
	running := runningCPUIndices(cpus)
	if len(running) == 0 {
		return nil
	}
	victim := running[s.rng.Intn(len(running))]

	incumbentTiming := s.Timings[cpus[victim].BoundPCBID]
	if incumbentTiming == nil || best.remain >= incumbentTiming.RemainingBurst {
		return nil
	}

	return []DispatchDecision{{CPUIndex: victim, PCBID: best.id, Address: best.address, Size: best.size, Preempt: true}}
}

func (s *Scheduler) selectRR(mem *Memory, cpus []*CPU, forcePreempt bool) []DispatchDecision {
	candidates := s.readyCandidates(mem)
	decisions := s.fillIdle(candidates, cpus)

	if !forcePreempt {
		return decisions
	}

	remaining := s.readyCandidates(mem)
	for _, d := range decisions {
		remaining = removeCandidate(remaining, d.PCBID)
	}
	if len(remaining) == 0 {
		return decisions
	}

	// decisions from fillIdle above are not yet applied to cpus, so
	// runningCPUIndices still reflects only processes already running
	// before this tick's dispatch.
	running := runningCPUIndices(cpus)
	if len(running) == 0 {
		return decisions
	}

	victim := running[s.rng.Intn(len(running))]
	next := remaining[0]
	decisions = append(decisions, DispatchDecision{CPUIndex: victim, PCBID: next.id, Address: next.address, Size: next.size, Preempt: true})
	return decisions
}

// selectHRRN fills idle CPUs with Ready/New processes in descending
// response-ratio order. True elapsed wait time isn't tracked separately
// before a process's first dispatch, so wait is approximated as ticks
// elapsed since arrival; this is the documented HRRN decision (DESIGN.md).
func (s *Scheduler) selectHRRN(mem *Memory, cpus []*CPU) []DispatchDecision {
	candidates := s.readyCandidates(mem)
	sortCandidates(candidates, func(a, b candidate) bool { return s.hrrnRatio(a) > s.hrrnRatio(b) })
	return s.fillIdle(candidates, cpus)
}

func (s *Scheduler) hrrnRatio(c candidate) float64 {
	wait := s.TickCounter - c.arrival
	if wait < 0 {
		wait = 0
	}
	if c.burst == 0 {
		return 0
	}
	return float64(wait+c.burst) / float64(c.burst)
}

func sortCandidates(c []candidate, less func(a, b candidate) bool) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && less(c[j], c[j-1]); j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

func removeCandidate(c []candidate, id int) []candidate {
	out := c[:0]
	for _, cand := range c {
		if cand.id != id {
			out = append(out, cand)
		}
	}
	return out
}

func runningCPUIndices(cpus []*CPU) []int {
	var out []int
	for i, c := range cpus {
		if !c.IsEmpty() {
			out = append(out, i)
		}
	}
	return out
}
