package vm

// addrSize is a bare (address, size) pair, used for the user segment's
// used/freed lists (spec.md §3).
type addrSize struct {
	Address int
	Size    int
}

// pcbEntry records where a serialized PCB lives in the OS segment.
type pcbEntry struct {
	ID      int
	Address int
	Size    int
}

// Memory models the single shared byte array split into an OS segment
// (serialized PCBs, [0, osSegmentSize)) and a user segment (code and
// stack allocations, [osSegmentSize, len(data))) — spec.md §3/§4.4,
// grounded on original_source/src/emulator/memory.rs.
type Memory struct {
	data          []byte
	osSegmentSize int

	used  []addrSize
	freed []addrSize

	pcbTable []pcbEntry
}

// NewMemory allocates a zeroed memory of the given total size, with the
// first osSegmentSize bytes reserved for the OS segment.
func NewMemory(size, osSegmentSize int) *Memory {
	return &Memory{data: make([]byte, size), osSegmentSize: osSegmentSize}
}

// Size is the total number of bytes backing this Memory.
func (m *Memory) Size() int { return len(m.data) }

// Store allocates size bytes in the user segment for data, same-size
// free-first, else appended after the last used region (or at the start
// of the user segment if nothing is used yet). Returns the (address,
// size) of the allocation.
//
// The available-space bound used here is the "overall" one spec.md's
// Design Notes call out: len(data) - nextAddress, not
// (len(data) - osSegmentSize) - nextAddress. Callers never see an
// allocation cross into the OS segment because nextAddress always starts
// at osSegmentSize and only grows.
func (m *Memory) Store(data []byte) (int, int, error) {
	size := len(data)

	for i, entry := range m.freed {
		if entry.Size == size {
			copy(m.data[entry.Address:entry.Address+size], data)
			m.freed = append(m.freed[:i], m.freed[i+1:]...)
			m.used = append(m.used, addrSize{Address: entry.Address, Size: size})
			return entry.Address, size, nil
		}
	}

	if len(m.used) == 0 {
		if len(m.data)-m.osSegmentSize <= size {
			return 0, 0, &NotEnoughUserMemoryError{}
		}
		addr := m.osSegmentSize
		copy(m.data[addr:addr+size], data)
		m.used = append(m.used, addrSize{Address: addr, Size: size})
		return addr, size, nil
	}

	last := m.used[len(m.used)-1]
	nextAddr := last.Address + last.Size
	available := len(m.data) - nextAddr
	if available <= size {
		return 0, 0, &NotEnoughUserMemoryError{}
	}

	copy(m.data[nextAddr:nextAddr+size], data)
	m.used = append(m.used, addrSize{Address: nextAddr, Size: size})
	return nextAddr, size, nil
}

// Free locates the used entry at address, zeroes its bytes, and moves it
// to the freed list. If used becomes empty, freed is also cleared
// (amortized compaction, spec.md §4.4).
func (m *Memory) Free(address int) {
	for i, entry := range m.used {
		if entry.Address == address {
			for b := entry.Address; b < entry.Address+entry.Size; b++ {
				m.data[b] = 0
			}
			m.used = append(m.used[:i], m.used[i+1:]...)
			m.freed = append(m.freed, entry)
			if len(m.used) == 0 {
				m.freed = nil
			}
			return
		}
	}
}

// Read returns a view of size bytes starting at address.
func (m *Memory) Read(address, size int) []byte {
	return m.data[address : address+size]
}

// Write copies data into memory starting at address.
func (m *Memory) Write(address int, data []byte) {
	copy(m.data[address:address+len(data)], data)
}

// StorePCB serializes pcb and appends it into the OS segment if room
// remains, recording its position in pcbTable.
func (m *Memory) StorePCB(pcb *PCB) error {
	bytes := SerializePCB(pcb)

	if len(m.pcbTable) == 0 {
		if m.osSegmentSize <= len(bytes) {
			return &NotEnoughOsMemoryError{}
		}
		copy(m.data[0:len(bytes)], bytes)
		m.pcbTable = append(m.pcbTable, pcbEntry{ID: pcb.ID, Address: 0, Size: len(bytes)})
		return nil
	}

	last := m.pcbTable[len(m.pcbTable)-1]
	nextAddr := last.Address + last.Size
	available := m.osSegmentSize - nextAddr
	if available <= len(bytes) {
		return &NotEnoughOsMemoryError{}
	}

	copy(m.data[nextAddr:nextAddr+len(bytes)], bytes)
	m.pcbTable = append(m.pcbTable, pcbEntry{ID: pcb.ID, Address: nextAddr, Size: len(bytes)})
	return nil
}

// ViewPCB deserializes the PCB stored at (address, size).
func (m *Memory) ViewPCB(address, size int) *PCB {
	return DeserializePCB(m.data[address : address+size])
}

// PutPCB re-serializes pcb in place at (address, size). The caller
// guarantees the new encoding is no larger than size (true for every
// field mutation the dispatcher performs — ids, segments and the 10
// fixed trailer bytes never grow once admitted).
func (m *Memory) PutPCB(address, size int, pcb *PCB) {
	bytes := SerializePCB(pcb)
	for i := range m.data[address : address+size] {
		m.data[address+i] = 0
	}
	copy(m.data[address:address+size], bytes)
}

// PCBTableIDs returns the pcb ids in pcbTable, in insertion order.
func (m *Memory) PCBTableIDs() []int {
	out := make([]int, len(m.pcbTable))
	for i, e := range m.pcbTable {
		out[i] = e.ID
	}
	return out
}

// PCBLocation returns the (address, size) of the stored record for id.
func (m *Memory) PCBLocation(id int) (int, int, bool) {
	for _, e := range m.pcbTable {
		if e.ID == id {
			return e.Address, e.Size, true
		}
	}
	return 0, 0, false
}

// LastPCBID returns the id of the last admitted PCB, or 0 if none (spec.md §4.4).
func (m *Memory) LastPCBID() int {
	if len(m.pcbTable) == 0 {
		return 0
	}
	return m.pcbTable[len(m.pcbTable)-1].ID
}

// RunningProcess scans the PCB table and returns the first PCB whose
// state is Running, if any.
func (m *Memory) RunningProcess() *PCB {
	for _, e := range m.pcbTable {
		pcb := m.ViewPCB(e.Address, e.Size)
		if pcb.ProcessState == StateRunning {
			return pcb
		}
	}
	return nil
}

// FreeSize is a coarse lower bound on contiguous free user-segment space:
// the count of zero bytes in the user segment (spec.md §4.4).
func (m *Memory) FreeSize() int {
	count := 0
	for _, b := range m.data[m.osSegmentSize:] {
		if b == 0 {
			count++
		}
	}
	return count
}

// Reset zeroes memory and clears every list, returning Memory to its
// post-construction state.
func (m *Memory) Reset() {
	for i := range m.data {
		m.data[i] = 0
	}
	m.used = nil
	m.freed = nil
	m.pcbTable = nil
}
