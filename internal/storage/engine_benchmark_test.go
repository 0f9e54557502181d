package storage

import (
	"path/filepath"
	"testing"
)

func newBenchEngine(b *testing.B, opts ...Option) *Engine {
	b.Helper()
	e := NewEngine(opts...)
	if err := e.Create(filepath.Join(b.TempDir(), "bench.db")); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(e.Close)
	return e
}

func fillEngine(b *testing.B, e *Engine, n int) {
	b.Helper()
	for i := range n {
		p := Product{ID: int32(i + 1), Name: "product", Price: float64(i%50 + 1), BrandID: int32(i % 10)}
		if err := e.AddRecord(p); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineAdd(b *testing.B) {
	e := newBenchEngine(b)

	id := int32(0)
	for b.Loop() {
		id++
		if err := e.AddRecord(Product{ID: id, Name: "product", Price: 1}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineAdd_Sync(b *testing.B) {
	e := newBenchEngine(b, WithSync(true))

	id := int32(0)
	for b.Loop() {
		id++
		if err := e.AddRecord(Product{ID: id, Name: "product", Price: 1}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineAddDelete_SlotReuse(b *testing.B) {
	e := newBenchEngine(b)
	fillEngine(b, e, 1000)

	for b.Loop() {
		if err := e.DeleteRecordByID(500); err != nil {
			b.Fatal(err)
		}
		if err := e.AddRecord(Product{ID: 500, Name: "product", Price: 1}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineFindByID(b *testing.B) {
	e := newBenchEngine(b)
	fillEngine(b, e, 10000)

	id := int32(0)
	for b.Loop() {
		id = id%10000 + 1
		if _, err := e.FindRecordByID(id); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineFindByBrand(b *testing.B) {
	e := newBenchEngine(b)
	fillEngine(b, e, 10000)

	for b.Loop() {
		if _, err := e.FindRecordsByField(FieldBrandID, int32(3)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineSearchText(b *testing.B) {
	e := newBenchEngine(b)
	fillEngine(b, e, 10000)

	for b.Loop() {
		if _, err := e.SearchText(FieldName, "PRODUCT"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineOpen(b *testing.B) {
	e := newBenchEngine(b)
	fillEngine(b, e, 10000)
	path := e.Path()

	for b.Loop() {
		if err := e.Open(path); err != nil {
			b.Fatal(err)
		}
	}
}
