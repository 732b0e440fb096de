package power

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"
)

// MaxAvailability is the retained capacity for the last availability string.
const MaxAvailability = 32

// ImageSize is the encoded size of PersistentState in retained memory.
const ImageSize = 44

const retainedMagic uint32 = 0x53505254 // "SPRT"

const flagDeepSleepActive = 1 << 0

// ErrCorruptRetained is returned when the retained image fails its magic or CRC check.
var ErrCorruptRetained = errors.New("power: retained memory corrupt")

// PersistentState is the state that must survive a deep-sleep cycle.
// It lives in memory that stays powered through deep sleep but not through
// a power loss.
type PersistentState struct {
	// DeepSleepActive is set only immediately before entering deep sleep.
	DeepSleepActive bool
	// StableCount counts consecutive polls that saw no presence change.
	StableCount uint8
	// LastAvailability is the last observed availability, at most 32 bytes.
	LastAvailability string
}

// SetAvailability stores a, truncated to MaxAvailability bytes.
func (s *PersistentState) SetAvailability(a string) {
	if len(a) > MaxAvailability {
		a = a[:MaxAvailability]
	}
	s.LastAvailability = a
}

// MarshalBinary encodes the state as a fixed ImageSize layout:
// magic(4) flags(1) stable(1) len(1) pad(1) availability(32) crc32(4).
func (s PersistentState) MarshalBinary() ([]byte, error) {
	if len(s.LastAvailability) > MaxAvailability {
		return nil, fmt.Errorf("power: availability %q exceeds %d bytes", s.LastAvailability, MaxAvailability)
	}
	buf := make([]byte, ImageSize)
	binary.LittleEndian.PutUint32(buf[0:4], retainedMagic)
	if s.DeepSleepActive {
		buf[4] |= flagDeepSleepActive
	}
	buf[5] = s.StableCount
	buf[6] = byte(len(s.LastAvailability))
	copy(buf[8:8+MaxAvailability], s.LastAvailability)
	binary.LittleEndian.PutUint32(buf[40:44], crc32.ChecksumIEEE(buf[:40]))
	return buf, nil
}

// UnmarshalBinary decodes an image produced by MarshalBinary.
func (s *PersistentState) UnmarshalBinary(data []byte) error {
	if len(data) != ImageSize {
		return fmt.Errorf("%w: size %d", ErrCorruptRetained, len(data))
	}
	if binary.LittleEndian.Uint32(data[0:4]) != retainedMagic {
		return fmt.Errorf("%w: bad magic", ErrCorruptRetained)
	}
	if binary.LittleEndian.Uint32(data[40:44]) != crc32.ChecksumIEEE(data[:40]) {
		return fmt.Errorf("%w: crc mismatch", ErrCorruptRetained)
	}
	n := int(data[6])
	if n > MaxAvailability {
		return fmt.Errorf("%w: availability length %d", ErrCorruptRetained, n)
	}
	s.DeepSleepActive = data[4]&flagDeepSleepActive != 0
	s.StableCount = data[5]
	s.LastAvailability = string(data[8 : 8+n])
	return nil
}

// Retained is the memory region that survives deep sleep.
type Retained interface {
	// Load returns the last stored state.
	Load() (PersistentState, error)
	// Store replaces the stored state.
	Store(PersistentState) error
}

// MemRetained keeps the encoded image in process memory. It survives a
// simulated reset (a new Device built over the same MemRetained) and is
// wiped by PowerLoss.
type MemRetained struct {
	mu     sync.Mutex
	image  []byte
	Writes int

	// StoreError, if set, is returned by Store.
	StoreError error
}

// NewMemRetained returns an empty region, as after a power loss.
func NewMemRetained() *MemRetained {
	return &MemRetained{}
}

// Load decodes the stored image. An empty region reads as ErrCorruptRetained.
func (m *MemRetained) Load() (PersistentState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s PersistentState
	if err := s.UnmarshalBinary(m.image); err != nil {
		return PersistentState{}, err
	}
	return s, nil
}

// Store encodes and keeps s.
func (m *MemRetained) Store(s PersistentState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.StoreError != nil {
		return m.StoreError
	}
	img, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	m.image = img
	m.Writes++
	return nil
}

// PowerLoss clears the region.
func (m *MemRetained) PowerLoss() {
	m.mu.Lock()
	m.image = nil
	m.mu.Unlock()
}
