package models

import "fmt"

// Slot is a single persistent variable in a contract's storage
type Slot struct {
	Slot     uint64 `json:"slot"`
	Offset   uint64 `json:"offset"` // byte offset within the slot
	Bytes    uint64 `json:"bytes"`  // width in bytes
	Type     string `json:"type"`   // compiler type tag, e.g. "t_uint256"
	Label    string `json:"label"`
	Reserved bool   `json:"reserved,omitempty"` // gap or deprecated placeholder
}

// Position identifies where a variable starts in storage
type Position struct {
	Slot   uint64
	Offset uint64
}

// Position returns where the variable starts
func (s Slot) Position() Position {
	return Position{Slot: s.Slot, Offset: s.Offset}
}

// Start returns the absolute byte index of the first byte of the variable
func (s Slot) Start() uint64 {
	return s.Slot*32 + s.Offset
}

// End returns the absolute byte index past the last byte of the variable.
// Extracted layouts keep it below 2^53.
func (s Slot) End() uint64 {
	return s.Start() + s.Bytes
}

// Overlaps reports whether two variables share any storage byte
func (s Slot) Overlaps(o Slot) bool {
	return s.Start() < o.End() && o.Start() < s.End()
}

func (s Slot) String() string {
	return fmt.Sprintf("%s %s @ %d+%d (%d bytes)", s.Type, s.Label, s.Slot, s.Offset, s.Bytes)
}

// StorageLayout is the ordered list of a contract's storage variables,
// sorted by slot, then offset, then label.
type StorageLayout struct {
	Entries []Slot `json:"entries"`
}

// MaxSlot returns the highest slot index touched by the layout, and false
// for an empty layout
func (l StorageLayout) MaxSlot() (uint64, bool) {
	if len(l.Entries) == 0 {
		return 0, false
	}
	var max uint64
	for _, e := range l.Entries {
		last := e.Slot
		if e.Bytes > 0 {
			last = (e.End() - 1) / 32
		}
		if last > max {
			max = last
		}
	}
	return max, true
}

// Lookup returns the entry with the given label
func (l StorageLayout) Lookup(label string) (Slot, bool) {
	for _, e := range l.Entries {
		if e.Label == label {
			return e, true
		}
	}
	return Slot{}, false
}
