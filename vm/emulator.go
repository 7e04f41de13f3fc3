package vm

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Mode toggles between single-stepping and the automatic tick loop
// (spec.md §5 "Auto mode can be toggled to manual at any event boundary").
type Mode uint8

const (
	ModeUnset Mode = iota
	ModeManual
	ModeAutomatic
)

// EventKind tags the five event shapes the core emits for a host to render.
type EventKind uint8

const (
	EventDialogResult EventKind = iota
	EventTerminated
	EventBlocked
	EventScheduler
	EventDispatcher
)

var eventKindNames = map[EventKind]string{
	EventDialogResult: "DialogResult",
	EventTerminated:   "Terminated",
	EventBlocked:      "Blocked",
	EventScheduler:    "Scheduler",
	EventDispatcher:   "Dispatcher",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "?"
}

// Event is one host-visible notification (spec.md §6 "Events the core emits").
type Event struct {
	Kind     EventKind
	CPUIndex int
	PCBID    int
	Message  string
}

// Emulator wires memory, storage, the CPU array and the scheduler
// together behind the event entry points spec.md §6 names, and is the
// library a host (CLI or TUI) drives.
type Emulator struct {
	Config    Config
	Memory    *Memory
	Storage   *Storage
	CPUs      []*CPU
	Scheduler *Scheduler
	Blocked   *BlockedQueue
	Loaded    map[string]bool

	Mode       Mode
	ShowStats  bool
	totalStart time.Time

	FinishedStats []TerminationStats

	display strings.Builder
	Events  []Event
}

// NewEmulator constructs an Emulator from cfg, ready to accept StoreFiles.
func NewEmulator(cfg Config) *Emulator {
	cpus := make([]*CPU, cfg.CPUQuantity)
	for i := range cpus {
		cpus[i] = &CPU{}
	}

	return &Emulator{
		Config:    cfg,
		Memory:    NewMemory(cfg.Memory, cfg.OSSegment),
		Storage:   NewStorage(cfg.Storage),
		CPUs:      cpus,
		Scheduler: NewScheduler(cfg.Discipline(), cfg.Quantum),
		Blocked:   &BlockedQueue{},
		Loaded:    make(map[string]bool),
	}
}

func (e *Emulator) emit(ev Event) {
	e.Events = append(e.Events, ev)
}

// DrainEvents returns every event recorded since the last drain and
// clears the buffer, for a host to render.
func (e *Emulator) DrainEvents() []Event {
	out := e.Events
	e.Events = nil
	return out
}

// Display returns everything written to the display buffer by INT H10 so far.
func (e *Emulator) Display() string {
	return e.display.String()
}

// StoreFiles admits every (name, data) pair into Storage, in name order,
// corresponding to the host's OpenFile/FilePicked/StoreFiles events.
func (e *Emulator) StoreFiles(files map[string][]byte) []error {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := e.Storage.StoreFile(name, files[name]); err != nil {
			e.emit(Event{Kind: EventDialogResult, Message: err.Error()})
			errs = append(errs, err)
		}
	}
	return errs
}

// Tick advances every bound CPU by exactly one instruction, in CPU-index
// order, then increments the global tick counter. A termination is
// always followed by a Scheduler pass (spec.md §5 ordering guarantee d);
// for RR, a quantum boundary forces one too.
func (e *Emulator) Tick() {
	terminatedAny := false
	now := time.Now()

	for i, cpu := range e.CPUs {
		if cpu.IsEmpty() {
			continue
		}

		pcbID := cpu.BoundPCBID
		outcome, instr, err := Step(e.Memory, cpu)
		if err != nil {
			Terminate(e.Memory, cpu, e.Scheduler.Timings, now)
			e.emit(Event{Kind: EventDialogResult, Message: err.Error()})
			e.emit(Event{Kind: EventTerminated, CPUIndex: i, PCBID: pcbID})
			terminatedAny = true
			continue
		}

		if t := e.Scheduler.Timings[pcbID]; t != nil && t.RemainingBurst > 0 {
			t.RemainingBurst--
		}

		switch outcome {
		case StepTerminated:
			if stats := Terminate(e.Memory, cpu, e.Scheduler.Timings, now); stats != nil {
				e.FinishedStats = append(e.FinishedStats, *stats)
			}
			e.emit(Event{Kind: EventTerminated, CPUIndex: i, PCBID: pcbID})
			terminatedAny = true
		case StepBlocked:
			Block(e.Memory, cpu, e.Blocked)
			e.emit(Event{Kind: EventBlocked, CPUIndex: i, PCBID: pcbID})
		case StepContinue:
			if instr.Op == OpINT && instr.Operands.Intr == IntWriteDX {
				e.display.WriteByte(cpu.DX)
			}
		}
	}

	e.Scheduler.TickCounter++

	if terminatedAny {
		e.TickScheduler()
	}

	if e.Scheduler.Discipline == RR && e.Scheduler.Quantum > 0 && e.Scheduler.TickCounter%e.Scheduler.Quantum == 0 {
		e.runScheduler(true)
	}
}

// TickScheduler runs admission followed by selection without advancing
// any CPU — the host's explicit TickScheduler event.
func (e *Emulator) TickScheduler() {
	e.runScheduler(false)
}

func (e *Emulator) runScheduler(forcePreempt bool) {
	_, errs := e.Scheduler.CreatePCBs(e.Memory, e.Storage, e.Loaded)
	for _, err := range errs {
		e.emit(Event{Kind: EventDialogResult, Message: err.Error()})
	}

	decisions := e.Scheduler.Select(e.Memory, e.CPUs, forcePreempt)
	now := time.Now()
	for _, d := range decisions {
		Dispatch(e.Memory, e.CPUs, e.Scheduler.Timings, now, d)
		e.emit(Event{Kind: EventDispatcher, CPUIndex: d.CPUIndex, PCBID: d.PCBID})
	}

	e.emit(Event{Kind: EventScheduler})
}

// ParseInputValue validates the host's Input(string) event: numeric-only,
// at most 3 characters, in range for an 8-bit value.
func ParseInputValue(s string) (uint8, error) {
	if len(s) == 0 || len(s) > 3 {
		return 0, errors.New("input must be 1-3 digits")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 255 {
		return 0, errors.New("input must be a number from 0 to 255")
	}
	return uint8(n), nil
}

// Unblock delivers value to the head of the blocked queue, corresponding
// to the host's Unblock event.
func (e *Emulator) Unblock(value uint8) bool {
	_, ok := Unblock(e.Memory, e.Blocked, value)
	return ok
}

// ChangeMode toggles Manual/Automatic, recording the wall-clock start on
// first entry into a running mode.
func (e *Emulator) ChangeMode(mode Mode) {
	if e.Mode == ModeUnset && mode != ModeUnset {
		e.totalStart = time.Now()
	}
	e.Mode = mode
}

// SetDiscipline changes the scheduling discipline; rejected while a mode
// is set (spec.md §6: "Discipline change is rejected while mode is set").
func (e *Emulator) SetDiscipline(d Discipline) error {
	if e.Mode != ModeUnset {
		return errors.New("cannot change scheduler while running")
	}
	e.Scheduler.Discipline = d
	return nil
}

// SetQuantum changes the RR quantum.
func (e *Emulator) SetQuantum(n int) {
	e.Scheduler.Quantum = n
}

// ToggleStats flips the statistics view, the host's StatsPressed event.
func (e *Emulator) ToggleStats() {
	e.ShowStats = !e.ShowStats
}

// TotalWallClock sums every finalized process's turnaround.
func (e *Emulator) TotalWallClock() time.Duration {
	timings := make([]*Timing, 0, len(e.Scheduler.Timings))
	for _, t := range e.Scheduler.Timings {
		timings = append(timings, t)
	}
	return TotalTurnaround(timings)
}

// Reset reinitializes storage, memory, CPUs, queues and counters, the
// host's ResetPressed event.
func (e *Emulator) Reset() {
	e.Memory.Reset()
	e.Storage.Reset()
	for _, cpu := range e.CPUs {
		cpu.Clear()
	}
	e.Blocked = &BlockedQueue{}
	e.Loaded = make(map[string]bool)
	e.Scheduler.Timings = make(map[int]*Timing)
	e.Scheduler.TickCounter = 0
	e.FinishedStats = nil
	e.display.Reset()
	e.Mode = ModeUnset
	e.Events = nil
}
