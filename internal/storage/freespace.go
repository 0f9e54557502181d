package storage

import (
	"github.com/bits-and-blooms/bitset"
)

// FreeSpace tracks which record slots hold a live record. Bit i covers the
// slot at dataOffset + i*RecordSize; a set bit means occupied.
type FreeSpace struct {
	bits       *bitset.BitSet
	totalSlots int64
	dataOffset int64
}

func NewFreeSpace() *FreeSpace {
	return &FreeSpace{
		bits:       bitset.New(0),
		dataOffset: HeaderSize,
	}
}

// Reset forgets every slot and sizes the map to the whole slots that fit
// between dataOffset and fileLength. All slots start out free.
func (f *FreeSpace) Reset(fileLength, dataOffset int64) {
	f.dataOffset = dataOffset
	f.totalSlots = 0
	if fileLength > dataOffset {
		f.totalSlots = (fileLength - dataOffset) / RecordSize
	}
	f.bits = bitset.New(uint(f.totalSlots))
}

// Allocate claims the lowest free slot and returns its offset. ok is false
// when every known slot is occupied; the caller then appends at End.
func (f *FreeSpace) Allocate() (offset int64, ok bool) {
	slot, found := f.bits.NextClear(0)
	if !found || int64(slot) >= f.totalSlots {
		return 0, false
	}
	f.bits.Set(slot)
	return f.offsetOf(int64(slot)), true
}

// Release frees the slot at offset. Offsets outside the known area are ignored.
func (f *FreeSpace) Release(offset int64) {
	slot, ok := f.slotOf(offset)
	if !ok {
		return
	}
	f.bits.Clear(uint(slot))
}

// Occupy marks the slot at offset as used. A slot at or past the end of the
// known area grows the map up to and including it.
func (f *FreeSpace) Occupy(offset int64) {
	if offset < f.dataOffset {
		return
	}
	slot := (offset - f.dataOffset) / RecordSize
	if slot >= f.totalSlots {
		f.totalSlots = slot + 1
	}
	f.bits.Set(uint(slot))
}

// Occupied reports whether the slot at offset is marked used.
func (f *FreeSpace) Occupied(offset int64) bool {
	slot, ok := f.slotOf(offset)
	return ok && f.bits.Test(uint(slot))
}

// End is the offset just past the last known slot, where a new slot is appended.
func (f *FreeSpace) End() int64 {
	return f.offsetOf(f.totalSlots)
}

func (f *FreeSpace) TotalSlots() int64 {
	return f.totalSlots
}

func (f *FreeSpace) offsetOf(slot int64) int64 {
	return f.dataOffset + slot*RecordSize
}

func (f *FreeSpace) slotOf(offset int64) (int64, bool) {
	if offset < f.dataOffset {
		return 0, false
	}
	slot := (offset - f.dataOffset) / RecordSize
	if slot >= f.totalSlots {
		return 0, false
	}
	return slot, true
}
