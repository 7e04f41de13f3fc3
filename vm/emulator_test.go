package vm

import "testing"

func newTestEmulator(discipline string, cpus int) *Emulator {
	cfg := DefaultConfig()
	cfg.Scheduler = discipline
	cfg.CPUQuantity = cpus
	return NewEmulator(cfg)
}

// runUntilSettled ticks the emulator until every CPU is idle and the
// blocked queue is empty, or maxTicks is exhausted.
func runUntilSettled(e *Emulator, maxTicks int) {
	for i := 0; i < maxTicks; i++ {
		allIdle := true
		for _, c := range e.CPUs {
			if !c.IsEmpty() {
				allIdle = false
				break
			}
		}
		if allIdle && e.Blocked.Len() == 0 && len(e.Memory.PCBTableIDs()) == len(e.FinishedStats) {
			return
		}
		e.Tick()
	}
}

func TestEmulatorFCFSSingleCPURunsToCompletion(t *testing.T) {
	e := newTestEmulator("FCFS", 1)
	errs := e.StoreFiles(map[string][]byte{
		"a.asm": []byte("MOV AX 1\nMOV BX 7\nINT 20H"),
		"b.asm": []byte("MOV AX 2\nINT 20H"),
	})
	assert(t, len(errs) == 0, "unexpected StoreFiles errors: %v", errs)

	e.TickScheduler()
	runUntilSettled(e, 50)

	assert(t, len(e.FinishedStats) == 2, "expected both processes to terminate, got %d stats", len(e.FinishedStats))
	assert(t, e.FinishedStats[0].PCBID == 1, "expected pcb 1 (A) to terminate first under FCFS, got %d", e.FinishedStats[0].PCBID)
	assert(t, e.FinishedStats[1].PCBID == 2, "expected pcb 2 (B) to terminate second, got %d", e.FinishedStats[1].PCBID)

	addr1, size1, ok := e.Memory.PCBLocation(1)
	assert(t, ok, "expected pcb 1 to still be resident")
	pcbA := e.Memory.ViewPCB(addr1, size1)
	assert(t, pcbA.ProcessState == StateTerminated, "expected pcb 1 Terminated, got %s", pcbA.ProcessState)
	assert(t, pcbA.BX == 7, "expected pcb 1's BX == 7 after MOV BX 7, got %d", pcbA.BX)

	addr2, size2, ok := e.Memory.PCBLocation(2)
	assert(t, ok, "expected pcb 2 to still be resident")
	pcbB := e.Memory.ViewPCB(addr2, size2)
	assert(t, pcbB.ProcessState == StateTerminated, "expected pcb 2 Terminated, got %s", pcbB.ProcessState)
}

func TestEmulatorBlockUnblockPath(t *testing.T) {
	e := newTestEmulator("FCFS", 1)
	errs := e.StoreFiles(map[string][]byte{
		"a.asm": []byte("INT 09H\nMOV AX 1\nINT 20H"),
	})
	assert(t, len(errs) == 0, "unexpected StoreFiles errors: %v", errs)

	e.TickScheduler()
	e.Tick() // executes INT 09H, should block

	assert(t, e.Blocked.Len() == 1, "expected 1 process blocked, got %d", e.Blocked.Len())
	assert(t, e.CPUs[0].IsEmpty(), "expected the cpu to be freed after blocking")

	ok := e.Unblock(5)
	assert(t, ok, "expected Unblock to succeed")
	assert(t, e.Blocked.Len() == 0, "expected the blocked queue to drain after unblock")

	e.TickScheduler()
	runUntilSettled(e, 20)

	assert(t, len(e.FinishedStats) == 1, "expected the process to eventually terminate, got %d stats", len(e.FinishedStats))
	addr, size, ok := e.Memory.PCBLocation(1)
	assert(t, ok, "expected pcb 1 to still be resident")
	pcb := e.Memory.ViewPCB(addr, size)
	assert(t, pcb.DX == 5, "expected DX == 5 delivered by unblock, got %d", pcb.DX)
}

func TestEmulatorDisplayWriteFromIntH10(t *testing.T) {
	e := newTestEmulator("FCFS", 1)
	errs := e.StoreFiles(map[string][]byte{
		"a.asm": []byte("MOV DX 65\nINT 10H\nINT 20H"),
	})
	assert(t, len(errs) == 0, "unexpected StoreFiles errors: %v", errs)

	e.TickScheduler()
	runUntilSettled(e, 20)

	assert(t, e.Display() == "A", "expected display buffer to contain 'A', got %q", e.Display())
}

func TestEmulatorTerminationAlwaysFollowedByScheduler(t *testing.T) {
	e := newTestEmulator("FCFS", 1)
	errs := e.StoreFiles(map[string][]byte{
		"a.asm": []byte("INT 20H"),
	})
	assert(t, len(errs) == 0, "unexpected StoreFiles errors: %v", errs)

	e.TickScheduler()
	e.DrainEvents()

	e.Tick()
	events := e.DrainEvents()

	sawTerminated, sawScheduler := false, false
	for _, ev := range events {
		if ev.Kind == EventTerminated {
			sawTerminated = true
		}
		if ev.Kind == EventScheduler {
			sawScheduler = true
		}
	}
	assert(t, sawTerminated, "expected a Terminated event")
	assert(t, sawScheduler, "expected termination to force a Scheduler event in the same tick")
}

func TestEmulatorSRTDoesNotPreemptANearlyFinishedProcess(t *testing.T) {
	e := newTestEmulator("SRT", 1)
	errs := e.StoreFiles(map[string][]byte{
		"a.asm": []byte("MOV AX 1\nMOV AX 1\nMOV AX 1\nMOV AX 1\nINT 20H"),
	})
	assert(t, len(errs) == 0, "unexpected StoreFiles errors: %v", errs)

	e.TickScheduler()
	assert(t, !e.CPUs[0].IsEmpty(), "expected a to be dispatched onto the single cpu")
	boundID := e.CPUs[0].BoundPCBID

	for i := 0; i < 4; i++ {
		e.Tick()
	}
	assert(t, e.Scheduler.Timings[boundID].RemainingBurst == 1,
		"expected 4 executed instructions to leave 1 instruction of a 5-burst process remaining, got %d",
		e.Scheduler.Timings[boundID].RemainingBurst)

	errs = e.StoreFiles(map[string][]byte{
		"b.asm": []byte("MOV BX 1\nMOV BX 1\nINT 20H"),
	})
	assert(t, len(errs) == 0, "unexpected StoreFiles errors: %v", errs)
	e.TickScheduler()

	assert(t, e.CPUs[0].BoundPCBID == boundID,
		"expected the nearly-finished process (1 left) to survive a shorter newcomer's burst (3)")
}

func TestEmulatorRoundRobinForcesQuantumPreemption(t *testing.T) {
	e := newTestEmulator("RR", 1)
	e.SetQuantum(1)
	errs := e.StoreFiles(map[string][]byte{
		"a.asm": []byte("MOV AX 1\nMOV AX 2\nMOV AX 3\nINT 20H"),
		"b.asm": []byte("MOV BX 1\nMOV BX 2\nMOV BX 3\nINT 20H"),
	})
	assert(t, len(errs) == 0, "unexpected StoreFiles errors: %v", errs)

	e.TickScheduler()
	assert(t, !e.CPUs[0].IsEmpty(), "expected the first process dispatched onto the single cpu")
	firstBound := e.CPUs[0].BoundPCBID

	e.Tick() // executes one instruction, then the quantum boundary forces a reselect

	assert(t, e.CPUs[0].BoundPCBID != firstBound,
		"expected a quantum-1 RR to reconsider dispatch every tick")
}

func TestEmulatorResetClearsState(t *testing.T) {
	e := newTestEmulator("FCFS", 1)
	errs := e.StoreFiles(map[string][]byte{"a.asm": []byte("INT 20H")})
	assert(t, len(errs) == 0, "unexpected StoreFiles errors: %v", errs)

	e.TickScheduler()
	runUntilSettled(e, 10)
	assert(t, len(e.FinishedStats) == 1, "expected the process to terminate before reset")

	e.Reset()
	assert(t, len(e.FinishedStats) == 0, "expected FinishedStats to be cleared after Reset")
	assert(t, len(e.Memory.PCBTableIDs()) == 0, "expected the pcb table to be empty after Reset")
	assert(t, e.Display() == "", "expected the display buffer to be cleared after Reset")
}

func TestParseInputValueRejectsOutOfRange(t *testing.T) {
	_, err := ParseInputValue("999")
	assert(t, err != nil, "expected 999 to be rejected as out of range")

	v, err := ParseInputValue("42")
	assert(t, err == nil && v == 42, "expected 42 to parse cleanly, got %d, %v", v, err)

	_, err = ParseInputValue("")
	assert(t, err != nil, "expected empty input to be rejected")
}

func TestSetDisciplineRejectedWhileModeIsSet(t *testing.T) {
	e := newTestEmulator("FCFS", 1)
	e.ChangeMode(ModeAutomatic)

	err := e.SetDiscipline(RR)
	assert(t, err != nil, "expected discipline change to be rejected while a mode is set")

	e.ChangeMode(ModeUnset)
	err = e.SetDiscipline(RR)
	assert(t, err == nil, "expected discipline change to succeed once mode is unset")
	assert(t, e.Scheduler.Discipline == RR, "expected discipline to become RR")
}
