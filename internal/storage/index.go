package storage

import (
	"fmt"

	"github.com/google/btree"
)

/*
  In-memory secondary indexes
  ------------------------------------------------------------------
  idIndex:     id           -> offset        (one to one)
  brand/price: value        -> {offsets...}  (multi valued)
  name/desc/volumeWeight:
               exact string -> {offsets...}  (empty strings skipped)

  Offsets inside a bucket are kept in a B-tree so a lookup yields them in
  file order. A bucket that loses its last offset is dropped from its map.

  Nothing here is persisted: Rebuild derives every index and the free-space
  map from the record area on open.
*/

const bucketDegree = 8

type bucketIndex[K comparable] struct {
	buckets map[K]*btree.BTreeG[int64]
}

func newBucketIndex[K comparable]() bucketIndex[K] {
	return bucketIndex[K]{buckets: make(map[K]*btree.BTreeG[int64])}
}

func (b *bucketIndex[K]) add(key K, offset int64) {
	set, ok := b.buckets[key]
	if !ok {
		set = btree.NewOrderedG[int64](bucketDegree)
		b.buckets[key] = set
	}
	set.ReplaceOrInsert(offset)
}

func (b *bucketIndex[K]) remove(key K, offset int64) {
	set, ok := b.buckets[key]
	if !ok {
		return
	}
	set.Delete(offset)
	if set.Len() == 0 {
		delete(b.buckets, key)
	}
}

func (b *bucketIndex[K]) get(key K) []int64 {
	set, ok := b.buckets[key]
	if !ok {
		return nil
	}
	offsets := make([]int64, 0, set.Len())
	set.Ascend(func(off int64) bool {
		offsets = append(offsets, off)
		return true
	})
	return offsets
}

func (b *bucketIndex[K]) clear() {
	clear(b.buckets)
}

// IndexManager keeps the exact-match lookups of one open database.
type IndexManager struct {
	byID           map[int32]int64
	byBrand        bucketIndex[int32]
	byPrice        bucketIndex[float64]
	byName         bucketIndex[string]
	byDescription  bucketIndex[string]
	byVolumeWeight bucketIndex[string]
}

func NewIndexManager() *IndexManager {
	return &IndexManager{
		byID:           make(map[int32]int64),
		byBrand:        newBucketIndex[int32](),
		byPrice:        newBucketIndex[float64](),
		byName:         newBucketIndex[string](),
		byDescription:  newBucketIndex[string](),
		byVolumeWeight: newBucketIndex[string](),
	}
}

// Add indexes record p stored at offset. It does not check for an existing
// id; the caller must.
func (ix *IndexManager) Add(p *Product, offset int64) {
	ix.byID[p.ID] = offset
	ix.byBrand.add(p.BrandID, offset)
	ix.byPrice.add(p.Price, offset)
	if p.Name != "" {
		ix.byName.add(p.Name, offset)
	}
	if p.Description != "" {
		ix.byDescription.add(p.Description, offset)
	}
	if p.VolumeWeight != "" {
		ix.byVolumeWeight.add(p.VolumeWeight, offset)
	}
}

// Remove drops every entry Add created for p at offset.
func (ix *IndexManager) Remove(p *Product, offset int64) {
	ix.removeID(p.ID, offset)
	ix.byBrand.remove(p.BrandID, offset)
	ix.byPrice.remove(p.Price, offset)
	if p.Name != "" {
		ix.byName.remove(p.Name, offset)
	}
	if p.Description != "" {
		ix.byDescription.remove(p.Description, offset)
	}
	if p.VolumeWeight != "" {
		ix.byVolumeWeight.remove(p.VolumeWeight, offset)
	}
}

// removeID drops id when it still points at offset, whatever the slot now holds.
func (ix *IndexManager) removeID(id int32, offset int64) {
	if cur, ok := ix.byID[id]; ok && cur == offset {
		delete(ix.byID, id)
	}
}

// OffsetOf returns the offset of the record with the given id.
func (ix *IndexManager) OffsetOf(id int32) (int64, bool) {
	off, ok := ix.byID[id]
	return off, ok
}

// Len is the number of indexed ids.
func (ix *IndexManager) Len() int {
	return len(ix.byID)
}

// IDs returns every indexed id in no particular order.
func (ix *IndexManager) IDs() []int32 {
	ids := make([]int32, 0, len(ix.byID))
	for id := range ix.byID {
		ids = append(ids, id)
	}
	return ids
}

// Lookup returns the offsets whose field exactly equals value, in ascending
// order. ok is false when field has no index or value has the wrong type for
// it; the caller then falls back to a scan.
func (ix *IndexManager) Lookup(field Field, value any) (offsets []int64, ok bool) {
	switch field {
	case FieldID:
		id, isInt := asInt32(value)
		if !isInt {
			return nil, false
		}
		if off, found := ix.byID[id]; found {
			return []int64{off}, true
		}
		return nil, true
	case FieldBrandID:
		brand, isInt := asInt32(value)
		if !isInt {
			return nil, false
		}
		return ix.byBrand.get(brand), true
	case FieldPrice:
		price, isFloat := asFloat64(value)
		if !isFloat {
			return nil, false
		}
		return ix.byPrice.get(price), true
	case FieldName, FieldDescription, FieldVolumeWeight:
		s, isString := value.(string)
		if !isString {
			return nil, false
		}
		return ix.textIndex(field).get(s), true
	default:
		return nil, false
	}
}

func (ix *IndexManager) textIndex(field Field) *bucketIndex[string] {
	switch field {
	case FieldName:
		return &ix.byName
	case FieldDescription:
		return &ix.byDescription
	default:
		return &ix.byVolumeWeight
	}
}

// Clear empties every index.
func (ix *IndexManager) Clear() {
	clear(ix.byID)
	ix.byBrand.clear()
	ix.byPrice.clear()
	ix.byName.clear()
	ix.byDescription.clear()
	ix.byVolumeWeight.clear()
}

// Rebuild clears the indexes and free, then visits every whole slot between
// dataOffset and fileLength. Slots that decode to a valid record are indexed
// and marked occupied; the rest stay free. It returns the number of live records.
func (ix *IndexManager) Rebuild(free *FreeSpace, fileLength, dataOffset int64, readSlot func(offset int64) (Product, error)) (int, error) {
	ix.Clear()
	free.Reset(fileLength, dataOffset)

	live := 0
	for off := dataOffset; off <= fileLength-RecordSize; off += RecordSize {
		p, err := readSlot(off)
		if err != nil {
			return live, fmt.Errorf("failed to read slot at %d: %w", off, err)
		}
		if !p.IsValid() {
			continue
		}
		ix.Add(&p, off)
		free.Occupy(off)
		live++
	}
	return live, nil
}
