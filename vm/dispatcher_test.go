package vm

import (
	"testing"
	"time"
)

// admitOne stores a single program and creates its PCB/Timing via the
// scheduler, returning the resulting pcb id.
func admitOne(t *testing.T, mem *Memory, storage *Storage, s *Scheduler, name, source string) int {
	t.Helper()
	loaded := make(map[string]bool)
	for _, f := range storage.Files() {
		loaded[f.Name] = true
	}
	assert(t, storage.StoreFile(name, []byte(source)) == nil, "failed to store %s", name)
	admitted, errs := s.CreatePCBs(mem, storage, loaded)
	assert(t, len(errs) == 0, "unexpected admission errors: %v", errs)
	assert(t, len(admitted) == 1, "expected exactly one admission, got %d", len(admitted))
	return admitted[0].PCBID
}

func TestDispatchLoadsProcessOntoIdleCPU(t *testing.T) {
	mem := NewMemory(256, 120)
	storage := NewStorage(128)
	s := NewScheduler(FCFS, 4)
	id := admitOne(t, mem, storage, s, "a.asm", "MOV AX 1\nINT 20H")

	cpus := []*CPU{{}}
	addr, size, ok := mem.PCBLocation(id)
	assert(t, ok, "expected pcb location")

	now := time.Now()
	Dispatch(mem, cpus, s.Timings, now, DispatchDecision{CPUIndex: 0, PCBID: id, Address: addr, Size: size})

	assert(t, !cpus[0].IsEmpty(), "expected cpu 0 to be bound after dispatch")
	assert(t, cpus[0].BoundPCBID == id, "expected cpu bound to pcb %d, got %d", id, cpus[0].BoundPCBID)

	pcb := mem.ViewPCB(addr, size)
	assert(t, pcb.ProcessState == StateRunning, "expected dispatched pcb to be Running, got %s", pcb.ProcessState)
	assert(t, s.Timings[id].CID == 0, "expected Timing.CID == 0 after dispatch")
}

func TestDispatchPreemptsAndRequeuesIncumbent(t *testing.T) {
	mem := NewMemory(256, 120)
	storage := NewStorage(128)
	s := NewScheduler(SRT, 4)

	first := admitOne(t, mem, storage, s, "a.asm", "MOV AX 1\nINT 20H")
	second := admitOne(t, mem, storage, s, "b.asm", "MOV BX 1\nMOV CX 1\nINT 20H")

	cpus := []*CPU{{}}
	now := time.Now()

	addr1, size1, _ := mem.PCBLocation(first)
	Dispatch(mem, cpus, s.Timings, now, DispatchDecision{CPUIndex: 0, PCBID: first, Address: addr1, Size: size1})
	assert(t, cpus[0].BoundPCBID == first, "expected cpu bound to the first process")

	addr2, size2, _ := mem.PCBLocation(second)
	Dispatch(mem, cpus, s.Timings, now.Add(time.Millisecond), DispatchDecision{CPUIndex: 0, PCBID: second, Address: addr2, Size: size2, Preempt: true})

	assert(t, cpus[0].BoundPCBID == second, "expected cpu to now hold the second process")

	oldPCB := mem.ViewPCB(addr1, size1)
	assert(t, oldPCB.ProcessState == StateReady, "expected the preempted process to return to Ready, got %s", oldPCB.ProcessState)
	assert(t, s.Timings[first].CID == noCPU, "expected the preempted process's Timing to be unbound")
}

func TestTerminateFreesSegmentsAndReportsStats(t *testing.T) {
	mem := NewMemory(256, 120)
	storage := NewStorage(128)
	s := NewScheduler(FCFS, 4)
	id := admitOne(t, mem, storage, s, "a.asm", "MOV AX 1\nINT 20H")

	cpus := []*CPU{{}}
	addr, size, _ := mem.PCBLocation(id)
	start := time.Now()
	Dispatch(mem, cpus, s.Timings, start, DispatchDecision{CPUIndex: 0, PCBID: id, Address: addr, Size: size})

	pcb := mem.ViewPCB(addr, size)
	codeAddr, stackAddr := pcb.CodeSegment.Address, pcb.StackSegment.Address
	freeBefore := mem.FreeSize()

	end := start.Add(3 * time.Millisecond)
	stats := Terminate(mem, cpus[0], s.Timings, end)

	assert(t, stats != nil, "expected non-nil termination stats")
	assert(t, stats.PCBID == id, "expected stats for pcb %d, got %d", id, stats.PCBID)
	assert(t, stats.Service == 3*time.Millisecond, "expected 3ms service time, got %s", stats.Service)
	assert(t, cpus[0].IsEmpty(), "expected cpu to be cleared after termination")

	freeAfter := mem.FreeSize()
	assert(t, freeAfter > freeBefore, "expected freeing code+stack segments to increase free size")

	after := mem.ViewPCB(addr, size)
	assert(t, after.ProcessState == StateTerminated, "expected pcb to be Terminated, got %s", after.ProcessState)

	_ = codeAddr
	_ = stackAddr
}

func TestBlockAndUnblockRoundTrip(t *testing.T) {
	mem := NewMemory(256, 120)
	storage := NewStorage(128)
	s := NewScheduler(FCFS, 4)
	id := admitOne(t, mem, storage, s, "a.asm", "INT 09H\nINT 20H")

	cpus := []*CPU{{}}
	addr, size, _ := mem.PCBLocation(id)
	now := time.Now()
	Dispatch(mem, cpus, s.Timings, now, DispatchDecision{CPUIndex: 0, PCBID: id, Address: addr, Size: size})

	queue := &BlockedQueue{}
	Block(mem, cpus[0], queue)

	assert(t, cpus[0].IsEmpty(), "expected cpu to be cleared after blocking")
	assert(t, queue.Len() == 1, "expected 1 process in the blocked queue, got %d", queue.Len())

	blockedPCB := mem.ViewPCB(addr, size)
	assert(t, blockedPCB.ProcessState == StateBlocked, "expected pcb to be Blocked, got %s", blockedPCB.ProcessState)
	beforePC := blockedPCB.PC

	unblockedID, ok := Unblock(mem, queue, 9)
	assert(t, ok, "expected Unblock to succeed")
	assert(t, unblockedID == id, "expected to unblock pcb %d, got %d", id, unblockedID)
	assert(t, queue.Len() == 0, "expected the blocked queue to be empty after unblocking")

	after := mem.ViewPCB(addr, size)
	assert(t, after.DX == 9, "expected DX == 9 after unblock, got %d", after.DX)
	assert(t, after.PC == beforePC+stride, "expected PC to advance by stride after unblock")
	assert(t, after.ProcessState == StateReady, "expected pcb to be Ready after unblock, got %s", after.ProcessState)
}

func TestBlockedQueueIsFIFO(t *testing.T) {
	q := &BlockedQueue{}
	q.Push(1)
	q.Push(2)
	q.Push(3)

	assert(t, q.IDs()[0] == 1 && q.IDs()[2] == 3, "expected IDs() to preserve insertion order")

	first, ok := q.Pop()
	assert(t, ok && first == 1, "expected FIFO order, got %d", first)

	second, ok := q.Pop()
	assert(t, ok && second == 2, "expected FIFO order, got %d", second)

	assert(t, q.Len() == 1, "expected 1 remaining in queue, got %d", q.Len())
}

func TestUnblockOnEmptyQueueFails(t *testing.T) {
	mem := NewMemory(64, 32)
	q := &BlockedQueue{}
	_, ok := Unblock(mem, q, 1)
	assert(t, !ok, "expected Unblock on an empty queue to fail")
}
