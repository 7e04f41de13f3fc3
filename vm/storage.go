package vm

// storageEntry is a (name, address, size) record, used for both the used
// and freed lists of Storage (spec.md §3).
type storageEntry struct {
	Name    string
	Address int
	Size    int
}

// Storage models the simulated disk: a flat byte array plus same-size
// first-fit free-list reuse (spec.md §4.3). Grounded on
// original_source/src/emulator/storage.rs's store_files.
type Storage struct {
	data  []byte
	used  []storageEntry
	freed []storageEntry
}

// NewStorage allocates a zeroed disk of the given size.
func NewStorage(size int) *Storage {
	return &Storage{data: make([]byte, size)}
}

// StoreFile writes bytes under name, reusing a same-size freed region
// first, else appending after the last used region (or at address 0 if
// storage is empty). Returns NotEnoughStorageError if no span fits.
func (s *Storage) StoreFile(name string, data []byte) error {
	size := len(data)

	for i, entry := range s.freed {
		if entry.Size == size {
			copy(s.data[entry.Address:entry.Address+size], data)
			s.freed = append(s.freed[:i], s.freed[i+1:]...)
			s.used = append(s.used, storageEntry{Name: name, Address: entry.Address, Size: size})
			return nil
		}
	}

	if len(s.used) == 0 {
		if len(s.data) <= size {
			return &NotEnoughStorageError{Name: name}
		}
		copy(s.data[0:size], data)
		s.used = append(s.used, storageEntry{Name: name, Address: 0, Size: size})
		return nil
	}

	last := s.used[len(s.used)-1]
	nextAddr := last.Address + last.Size
	available := len(s.data) - nextAddr
	if available <= size {
		return &NotEnoughStorageError{Name: name}
	}

	copy(s.data[nextAddr:nextAddr+size], data)
	s.used = append(s.used, storageEntry{Name: name, Address: nextAddr, Size: size})
	return nil
}

// Files returns the (name, address, size) of every stored file, in
// insertion order, for admission to walk.
func (s *Storage) Files() []storageEntry {
	out := make([]storageEntry, len(s.used))
	copy(out, s.used)
	return out
}

// Read returns a copy of the bytes stored under name, or false if not found.
func (s *Storage) Read(name string) ([]byte, bool) {
	for _, entry := range s.used {
		if entry.Name == name {
			out := make([]byte, entry.Size)
			copy(out, s.data[entry.Address:entry.Address+entry.Size])
			return out, true
		}
	}
	return nil, false
}

// Evict removes name from the used list and zeroes its bytes, returning
// them to the free list for same-size reuse.
func (s *Storage) Evict(name string) {
	for i, entry := range s.used {
		if entry.Name == name {
			for b := entry.Address; b < entry.Address+entry.Size; b++ {
				s.data[b] = 0
			}
			s.used = append(s.used[:i], s.used[i+1:]...)
			s.freed = append(s.freed, entry)
			return
		}
	}
}

// Reset zeroes the disk and clears both lists, returning Storage to its
// post-construction state.
func (s *Storage) Reset() {
	for i := range s.data {
		s.data[i] = 0
	}
	s.used = nil
	s.freed = nil
}
