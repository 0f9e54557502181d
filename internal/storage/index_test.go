package storage

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexManager_AddRemove(t *testing.T) {
	t.Run("add populates every index", func(t *testing.T) {
		ix := NewIndexManager()
		p := cup()
		ix.Add(&p, slotOffset(0))

		off, ok := ix.OffsetOf(1)
		require.True(t, ok)
		assert.Equal(t, slotOffset(0), off)

		for _, tc := range []struct {
			field Field
			value any
		}{
			{FieldID, int32(1)},
			{FieldBrandID, int32(5)},
			{FieldPrice, 9.99},
			{FieldName, "Cup"},
			{FieldVolumeWeight, "250ml"},
			{FieldDescription, "Ceramic cup"},
		} {
			offsets, indexed := ix.Lookup(tc.field, tc.value)
			require.True(t, indexed, tc.field.String())
			assert.Equal(t, []int64{slotOffset(0)}, offsets, tc.field.String())
		}
	})

	t.Run("empty strings are not indexed", func(t *testing.T) {
		ix := NewIndexManager()
		p := Product{ID: 2, Name: "Plate", Price: 3}
		ix.Add(&p, slotOffset(0))

		assert.Empty(t, ix.byVolumeWeight.buckets)
		assert.Empty(t, ix.byDescription.buckets)
		offsets, _ := ix.Lookup(FieldDescription, "")
		assert.Empty(t, offsets)
	})

	t.Run("buckets are dropped when empty", func(t *testing.T) {
		ix := NewIndexManager()
		a := Product{ID: 1, Name: "Cup", Price: 2, BrandID: 5}
		b := Product{ID: 2, Name: "Cup", Price: 3, BrandID: 5}
		ix.Add(&a, slotOffset(0))
		ix.Add(&b, slotOffset(1))

		offsets, _ := ix.Lookup(FieldName, "Cup")
		assert.Equal(t, []int64{slotOffset(0), slotOffset(1)}, offsets)

		ix.Remove(&a, slotOffset(0))
		offsets, _ = ix.Lookup(FieldBrandID, int32(5))
		assert.Equal(t, []int64{slotOffset(1)}, offsets)

		ix.Remove(&b, slotOffset(1))
		assert.Empty(t, ix.byName.buckets)
		assert.Empty(t, ix.byBrand.buckets)
		assert.Empty(t, ix.byPrice.buckets)
		assert.Equal(t, 0, ix.Len())
	})

	t.Run("offsets come back in file order", func(t *testing.T) {
		ix := NewIndexManager()
		for _, slot := range []int64{7, 2, 9, 0} {
			p := Product{ID: int32(slot + 1), Name: "same", Price: 1}
			ix.Add(&p, slotOffset(slot))
		}

		offsets, _ := ix.Lookup(FieldName, "same")
		assert.Equal(t, []int64{slotOffset(0), slotOffset(2), slotOffset(7), slotOffset(9)}, offsets)
	})
}

func TestIndexManager_Lookup(t *testing.T) {
	ix := NewIndexManager()
	p := cup()
	ix.Add(&p, slotOffset(0))

	testCases := []struct {
		name        string
		field       Field
		value       any
		wantIndexed bool
		wantHits    int
	}{
		{"int brand", FieldBrandID, 5, true, 1},
		{"int64 brand", FieldBrandID, int64(5), true, 1},
		{"missing brand", FieldBrandID, int32(6), true, 0},
		{"string brand falls back", FieldBrandID, "5", false, 0},
		{"float price", FieldPrice, 9.99, true, 1},
		{"int price falls back", FieldPrice, 9, false, 0},
		{"name is case sensitive", FieldName, "cup", true, 0},
		{"name must be exact", FieldName, "Cup ", true, 0},
		{"category has no index", FieldCategoryID, int32(2), false, 0},
		{"unknown field", Field(99), "Cup", false, 0},
		{"missing id", FieldID, int32(2), true, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			offsets, indexed := ix.Lookup(tc.field, tc.value)
			assert.Equal(t, tc.wantIndexed, indexed)
			assert.Len(t, offsets, tc.wantHits)
		})
	}
}

func TestIndexManager_Rebuild(t *testing.T) {
	t.Run("indexes valid slots and frees the rest", func(t *testing.T) {
		slots := map[int64]Product{
			slotOffset(0): {ID: 1, Name: "a", Price: 1},
			slotOffset(1): {},
			slotOffset(2): {ID: 3, Name: "c", Price: 1},
			slotOffset(3): {ID: 4, Name: " ", Price: 1},
		}
		ix := NewIndexManager()
		stale := Product{ID: 99, Name: "stale", Price: 1}
		ix.Add(&stale, slotOffset(10))
		free := NewFreeSpace()

		live, err := ix.Rebuild(free, slotOffset(4)+17, HeaderSize, func(off int64) (Product, error) {
			return slots[off], nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, live)
		assert.ElementsMatch(t, []int32{1, 3}, ix.IDs())

		assert.Equal(t, int64(4), free.TotalSlots())
		assert.True(t, free.Occupied(slotOffset(0)))
		assert.False(t, free.Occupied(slotOffset(1)))
		assert.True(t, free.Occupied(slotOffset(2)))
		assert.False(t, free.Occupied(slotOffset(3)))

		off, ok := free.Allocate()
		require.True(t, ok)
		assert.Equal(t, slotOffset(1), off)
	})

	t.Run("read failure stops the rebuild", func(t *testing.T) {
		boom := errors.New("boom")
		ix := NewIndexManager()

		_, err := ix.Rebuild(NewFreeSpace(), slotOffset(2), HeaderSize, func(off int64) (Product, error) {
			return Product{}, boom
		})
		require.ErrorIs(t, err, boom)
	})

	t.Run("data offset near the int64 limit reads nothing", func(t *testing.T) {
		ix := NewIndexManager()
		free := NewFreeSpace()

		live, err := ix.Rebuild(free, slotOffset(1), math.MaxInt64-100, func(off int64) (Product, error) {
			t.Fatalf("unexpected read at %d", off)
			return Product{}, nil
		})
		require.NoError(t, err)
		assert.Zero(t, live)
		assert.Zero(t, free.TotalSlots())
	})
}
