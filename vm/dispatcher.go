package vm

import "time"

// BlockedQueue is the FIFO of PCB ids waiting on an external Unblock
// event after INT H09 (spec.md §3 "Blocked queue").
type BlockedQueue struct {
	ids []int
}

// Push appends id to the back of the queue.
func (q *BlockedQueue) Push(id int) {
	q.ids = append(q.ids, id)
}

// Pop removes and returns the id at the head of the queue.
func (q *BlockedQueue) Pop() (int, bool) {
	if len(q.ids) == 0 {
		return 0, false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, true
}

// Len reports how many processes are waiting.
func (q *BlockedQueue) Len() int { return len(q.ids) }

// IDs returns the queue contents, head first, without mutating it.
func (q *BlockedQueue) IDs() []int {
	out := make([]int, len(q.ids))
	copy(out, q.ids)
	return out
}

// Dispatch performs a context switch onto dec.CPUIndex: if that CPU
// already holds a process, it is saved back to Ready first; then the
// incoming PCB is loaded and marked Running (spec.md §4.7 "Dispatcher /
// context switch").
func Dispatch(mem *Memory, cpus []*CPU, timings map[int]*Timing, now time.Time, dec DispatchDecision) {
	cpu := cpus[dec.CPUIndex]

	if !cpu.IsEmpty() {
		oldAddr, oldSize, ok := mem.PCBLocation(cpu.BoundPCBID)
		if !ok {
			cpu.Clear()
			return
		}
		oldPCB := mem.ViewPCB(oldAddr, oldSize)
		cpu.SaveInto(oldPCB)
		oldPCB.ProcessState = StateReady
		mem.PutPCB(oldAddr, oldSize, oldPCB)
		if t := timings[oldPCB.ID]; t != nil {
			t.Preempt()
		}
	}

	pcbAddr, pcbSize, ok := mem.PCBLocation(dec.PCBID)
	if !ok {
		return
	}
	pcb := mem.ViewPCB(pcbAddr, pcbSize)
	cpu.LoadFrom(pcb)
	pcb.ProcessState = StateRunning
	mem.PutPCB(pcbAddr, pcbSize, pcb)

	if t := timings[dec.PCBID]; t != nil {
		t.Dispatch(dec.CPUIndex, now)
	}
	cpu.StartProcess(now)
}

// TerminationStats is what Terminate reports once a process's PCB and
// Timing have been finalized (spec.md §4.7 "compute statistics").
type TerminationStats struct {
	PCBID         int
	Turnaround    time.Duration
	Service       time.Duration
	ResponseRatio float64
}

// Terminate saves cpu's register file into its bound PCB, marks it
// Terminated, frees its code and stack segments, finalizes its Timing,
// and clears the CPU.
func Terminate(mem *Memory, cpu *CPU, timings map[int]*Timing, now time.Time) *TerminationStats {
	if cpu.IsEmpty() {
		return nil
	}

	pcbAddr, pcbSize, ok := mem.PCBLocation(cpu.BoundPCBID)
	if !ok {
		cpu.Clear()
		return nil
	}

	pcb := mem.ViewPCB(pcbAddr, pcbSize)
	cpu.SaveInto(pcb)
	pcb.ProcessState = StateTerminated
	mem.PutPCB(pcbAddr, pcbSize, pcb)

	mem.Free(pcb.CodeSegment.Address)
	mem.Free(pcb.StackSegment.Address)

	execution := cpu.FinalizeProcess(now)

	var stats *TerminationStats
	if t := timings[pcb.ID]; t != nil {
		t.Finalize(now, execution)
		stats = &TerminationStats{
			PCBID:         pcb.ID,
			Turnaround:    t.Turnaround(),
			Service:       t.Service(),
			ResponseRatio: t.ResponseRatio(),
		}
	}

	cpu.Clear()
	return stats
}

// Block saves cpu's register file into its bound PCB, marks it Blocked,
// pushes it onto queue, and clears the CPU slot (spec.md §4.7 "Blocking").
func Block(mem *Memory, cpu *CPU, queue *BlockedQueue) {
	if cpu.IsEmpty() {
		return
	}

	pcbAddr, pcbSize, ok := mem.PCBLocation(cpu.BoundPCBID)
	if !ok {
		cpu.Clear()
		return
	}

	pcb := mem.ViewPCB(pcbAddr, pcbSize)
	cpu.SaveInto(pcb)
	pcb.ProcessState = StateBlocked
	mem.PutPCB(pcbAddr, pcbSize, pcb)

	queue.Push(pcb.ID)
	cpu.Clear()
}

// Unblock delivers value to the blocked process at the head of queue:
// DX <- value, PC advances past the INT, and the process becomes Ready
// again (spec.md §4.7 "Unblock").
func Unblock(mem *Memory, queue *BlockedQueue, value uint8) (int, bool) {
	id, ok := queue.Pop()
	if !ok {
		return 0, false
	}

	pcbAddr, pcbSize, ok := mem.PCBLocation(id)
	if !ok {
		return 0, false
	}

	pcb := mem.ViewPCB(pcbAddr, pcbSize)
	pcb.DX = value
	pcb.PC += stride
	pcb.ProcessState = StateReady
	mem.PutPCB(pcbAddr, pcbSize, pcb)

	return id, true
}
