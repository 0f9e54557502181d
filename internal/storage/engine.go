// Package storage implements a single-file store of fixed-size product records.
//
// File layout:
//
//	[0, 128)            header (see Header)
//	[128, 128+340*n)    n record slots, each a valid record or 340 zero bytes
//
// Secondary indexes and the free-slot bitmap live only in memory and are
// rebuilt from the record area every time a file is opened.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/LuCh-Ans/ProductDB/internal/storage/mmap"
)

// Engine owns one open database file and the indexes derived from it.
//
// An Engine is not safe for concurrent use. Every mutating call writes the
// record area first, then updates the in-memory state, then persists the
// header; nothing is rolled back if a later step fails. The next Open
// reconciles the header with the data.
type Engine struct {
	opts   options
	logger *zap.Logger

	path   string
	file   *os.File
	reader *mmap.MmapStore // read-only view for full scans
	header Header
	index  *IndexManager
	free   *FreeSpace
}

func NewEngine(opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Engine{
		opts:   o,
		logger: o.logger,
		header: NewHeader(),
		index:  NewIndexManager(),
		free:   NewFreeSpace(),
	}
}

// Create truncates or creates path and opens it as an empty database.
func (e *Engine) Create(path string) error {
	e.Close()
	e.path = path

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, e.opts.fileMode)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrIO, path, err)
	}

	e.header = NewHeader()
	if _, err := f.WriteAt(e.header.Bytes(), 0); err != nil {
		f.Close()
		return fmt.Errorf("%w: write header: %w", ErrIO, err)
	}

	reader, err := mmap.NewMmapStore(path)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: map %s: %w", ErrIO, path, err)
	}

	e.file = f
	e.reader = reader
	e.index.Clear()
	e.free.Reset(HeaderSize, e.header.DataOffset)

	if err := e.flush(); err != nil {
		e.Close()
		return err
	}

	e.logger.Info("database created", zap.String("path", path))
	return nil
}

// Open opens an existing database and rebuilds its indexes from the data area.
func (e *Engine) Open(path string) error {
	e.Close()
	e.path = path

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}

	var buf [HeaderSize]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		f.Close()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: short header in %s", ErrInvalidFormat, path)
		}
		return fmt.Errorf("%w: read header: %w", ErrIO, err)
	}

	var h Header
	if err := h.Decode(buf[:]); err != nil {
		f.Close()
		return err
	}
	if !h.IsValid() {
		f.Close()
		return fmt.Errorf("%w: bad header in %s (signature %q, version %d)", ErrInvalidFormat, path, h.Signature, h.Version)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}
	// Appends start at DataOffset, so it must lie inside the file.
	if h.DataOffset > info.Size() {
		f.Close()
		return fmt.Errorf("%w: data offset %d past end of %s (%d bytes)", ErrInvalidFormat, h.DataOffset, path, info.Size())
	}

	reader, err := mmap.NewMmapStore(path)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: map %s: %w", ErrIO, path, err)
	}

	e.file = f
	e.reader = reader
	e.header = h

	live, err := e.rebuild()
	if err != nil {
		e.Close()
		return fmt.Errorf("%w: rebuild indexes: %w", ErrIO, err)
	}

	if int32(live) != e.header.RecordCount {
		e.logger.Warn("header record count out of sync, using data area",
			zap.String("path", path),
			zap.Int32("stored", e.header.RecordCount),
			zap.Int("live", live))
		e.header.RecordCount = int32(live)
		if err := e.writeHeader(); err != nil {
			e.Close()
			return err
		}
	}

	e.logger.Info("database opened",
		zap.String("path", path),
		zap.Int("records", live),
		zap.Int64("slots", e.free.TotalSlots()))
	return nil
}

// Close releases the file and forgets every index. It is safe to call on a
// closed engine. Errors from closing the handles are logged and dropped.
// The path is kept so RestoreFromBackup can reopen it.
func (e *Engine) Close() {
	if e.file != nil {
		if err := e.reader.Close(); err != nil {
			e.logger.Warn("failed to close reader", zap.String("path", e.path), zap.Error(err))
		}
		if err := e.file.Close(); err != nil {
			e.logger.Warn("failed to close database file", zap.String("path", e.path), zap.Error(err))
		}
		e.logger.Info("database closed", zap.String("path", e.path))
	}

	e.file = nil
	e.reader = nil
	e.header = NewHeader()
	e.index.Clear()
	e.free.Reset(0, HeaderSize)
}

func (e *Engine) IsOpen() bool {
	return e.file != nil
}

// Path is the database file the engine last created or opened.
func (e *Engine) Path() string {
	return e.path
}

// RecordCount is the live record count stored in the header.
func (e *Engine) RecordCount() int {
	return int(e.header.RecordCount)
}

// AddRecord stores p in the lowest free slot, or appends a slot when none is free.
func (e *Engine) AddRecord(p Product) error {
	if !e.IsOpen() {
		return ErrNotOpen
	}

	buf := p.Bytes()
	stored := decodeProduct(buf)
	if !stored.IsValid() {
		return fmt.Errorf("%w: id=%d name=%q price=%v", ErrValidation, p.ID, p.Name, p.Price)
	}
	if _, exists := e.index.OffsetOf(stored.ID); exists {
		return fmt.Errorf("%w: %d", ErrDuplicateID, stored.ID)
	}

	offset, reused := e.free.Allocate()
	if !reused {
		offset = e.free.End()
	}

	if err := e.writeAt(buf, offset); err != nil {
		if reused {
			e.free.Release(offset)
		}
		return err
	}

	e.free.Occupy(offset)
	e.index.Add(&stored, offset)
	e.header.RecordCount++

	e.logger.Debug("record added",
		zap.Int32("id", stored.ID),
		zap.Int64("offset", offset),
		zap.Bool("reused", reused))
	return e.writeHeader()
}

// FindRecordByID returns the live record with the given id.
func (e *Engine) FindRecordByID(id int32) (Product, error) {
	if !e.IsOpen() {
		return Product{}, ErrNotOpen
	}

	offset, ok := e.index.OffsetOf(id)
	if !ok {
		return Product{}, fmt.Errorf("%w: id %d", ErrRecordNotFound, id)
	}

	p, err := e.readAt(offset)
	if err != nil {
		return Product{}, err
	}
	// The slot may have been changed behind our back; trust only what is on disk.
	if !p.IsValid() || p.ID != id {
		return Product{}, fmt.Errorf("%w: id %d", ErrRecordNotFound, id)
	}
	return p, nil
}

// DeleteRecordByID zero fills the slot of the record with the given id and
// makes the slot available for reuse.
func (e *Engine) DeleteRecordByID(id int32) error {
	if !e.IsOpen() {
		return ErrNotOpen
	}

	offset, ok := e.index.OffsetOf(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrRecordNotFound, id)
	}

	if err := e.deleteAt(id, offset); err != nil {
		return err
	}

	e.header.RecordCount--
	return e.writeHeader()
}

// FindRecordsByField returns the live records whose field equals value.
//
// Indexed fields are matched exactly and case-sensitively. value must be an
// integer for FieldID and FieldBrandID, a float for FieldPrice and a string
// for the text fields; any other combination falls back to SearchText with
// the value's textual form. Results are in file order.
func (e *Engine) FindRecordsByField(field Field, value any) ([]Product, error) {
	if !e.IsOpen() {
		return nil, ErrNotOpen
	}

	if field == FieldID {
		if id, ok := asInt32(value); ok {
			p, err := e.FindRecordByID(id)
			if errors.Is(err, ErrRecordNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return []Product{p}, nil
		}
	}

	offsets, indexed := e.index.Lookup(field, value)
	if !indexed {
		text := ""
		if value != nil {
			text = fmt.Sprint(value)
		}
		return e.SearchText(field, text)
	}

	results := make([]Product, 0, len(offsets))
	for _, offset := range offsets {
		p, err := e.readAt(offset)
		if err != nil {
			return nil, err
		}
		if p.IsValid() {
			results = append(results, p)
		}
	}
	return results, nil
}

// SearchText scans every slot and returns the live records whose text field
// equals text after trimming and lower-casing both sides. Only FieldName,
// FieldVolumeWeight and FieldDescription can match; other fields give an
// empty result.
func (e *Engine) SearchText(field Field, text string) ([]Product, error) {
	if !e.IsOpen() {
		return nil, ErrNotOpen
	}
	if _, isText := field.text(&Product{}); !isText {
		return nil, nil
	}

	target := strings.ToLower(strings.TrimSpace(text))
	var results []Product
	err := e.scan(func(p Product, _ int64) {
		v, _ := field.text(&p)
		if strings.ToLower(strings.TrimSpace(v)) == target {
			results = append(results, p)
		}
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteRecordsByField deletes every record FindRecordsByField returns for
// field and value and reports how many were deleted. It fails with
// ErrRecordNotFound only when the search itself finds nothing.
func (e *Engine) DeleteRecordsByField(field Field, value any) (int, error) {
	if !e.IsOpen() {
		return 0, ErrNotOpen
	}

	candidates, err := e.FindRecordsByField(field, value)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, fmt.Errorf("%w: %s = %v", ErrRecordNotFound, field, value)
	}

	deleted := 0
	for _, p := range candidates {
		offset, ok := e.index.OffsetOf(p.ID)
		if !ok {
			continue
		}
		if err := e.deleteAt(p.ID, offset); err != nil {
			e.header.RecordCount -= int32(deleted)
			return deleted, errors.Join(err, e.writeHeader())
		}
		deleted++
	}

	e.header.RecordCount -= int32(deleted)
	e.logger.Debug("records deleted by field",
		zap.Stringer("field", field),
		zap.Any("value", value),
		zap.Int("deleted", deleted))
	return deleted, e.writeHeader()
}

// UpdateRecord overwrites the record with p.ID in place.
func (e *Engine) UpdateRecord(p Product) error {
	if !e.IsOpen() {
		return ErrNotOpen
	}

	offset, ok := e.index.OffsetOf(p.ID)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrRecordNotFound, p.ID)
	}

	buf := p.Bytes()
	updated := decodeProduct(buf)
	if !updated.IsValid() {
		return fmt.Errorf("%w: id=%d name=%q price=%v", ErrValidation, p.ID, p.Name, p.Price)
	}

	old, err := e.readAt(offset)
	if err != nil {
		return err
	}
	e.index.Remove(&old, offset)

	if err := e.writeAt(buf, offset); err != nil {
		// Nothing reached the slot, so the old entries still describe it.
		if old.IsValid() {
			e.index.Add(&old, offset)
		}
		return err
	}
	e.index.Add(&updated, offset)

	e.logger.Debug("record updated", zap.Int32("id", p.ID), zap.Int64("offset", offset))
	return e.flush()
}

// AllRecords returns every live record in file order. A closed engine has none.
func (e *Engine) AllRecords() ([]Product, error) {
	if !e.IsOpen() {
		return nil, nil
	}

	var records []Product
	err := e.scan(func(p Product, _ int64) {
		records = append(records, p)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Clear drops every record and truncates the file to a bare header.
func (e *Engine) Clear() error {
	if !e.IsOpen() {
		return ErrNotOpen
	}

	e.index.Clear()
	e.free.Reset(HeaderSize, HeaderSize)
	if err := e.file.Truncate(HeaderSize); err != nil {
		return fmt.Errorf("%w: truncate: %w", ErrIO, err)
	}

	e.header = NewHeader()
	e.logger.Info("database cleared", zap.String("path", e.path))
	return e.writeHeader()
}

// Backup copies the database file byte for byte to dest, replacing dest.
func (e *Engine) Backup(dest string) error {
	if !e.IsOpen() {
		return ErrNotOpen
	}
	if sameFile(e.path, dest) {
		return fmt.Errorf("%w: backup destination %s is the database file", ErrIO, dest)
	}

	if err := copyFile(e.path, dest, e.opts.fileMode); err != nil {
		return fmt.Errorf("%w: backup to %s: %w", ErrIO, dest, err)
	}

	e.logger.Info("backup written", zap.String("path", e.path), zap.String("dest", dest))
	return nil
}

// RestoreFromBackup closes the engine, copies src over the database file and
// opens it again.
func (e *Engine) RestoreFromBackup(src string) error {
	path := e.path
	if path == "" {
		return ErrNotOpen
	}
	e.Close()

	if !sameFile(src, path) {
		if err := copyFile(src, path, e.opts.fileMode); err != nil {
			return fmt.Errorf("%w: restore from %s: %w", ErrFileNotFound, src, err)
		}
	}

	e.logger.Info("database restored", zap.String("path", path), zap.String("src", src))
	return e.Open(path)
}

// DeleteDatabaseFile closes the engine and removes its file.
func (e *Engine) DeleteDatabaseFile() error {
	path := e.path
	e.Close()
	e.path = ""
	if path == "" {
		return nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", ErrIO, path, err)
	}
	e.logger.Info("database file deleted", zap.String("path", path))
	return nil
}

func (e *Engine) rebuild() (int, error) {
	if err := e.reader.Sync(); err != nil {
		return 0, err
	}
	return e.index.Rebuild(e.free, e.reader.Size(), e.header.DataOffset, e.readMapped)
}

// scan calls fn for every live record in file order.
func (e *Engine) scan(fn func(p Product, offset int64)) error {
	if err := e.reader.Sync(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	size := e.reader.Size()
	for offset := e.header.DataOffset; offset <= size-RecordSize; offset += RecordSize {
		p, err := e.readMapped(offset)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
		if p.IsValid() {
			fn(p, offset)
		}
	}
	return nil
}

func (e *Engine) readMapped(offset int64) (Product, error) {
	chunk, err := e.reader.ReadAt(offset, RecordSize)
	if err != nil {
		return Product{}, err
	}
	return decodeProduct(chunk), nil
}

// readAt reads the slot at offset through the file handle. A slot cut short
// by end of file reads as a zero, invalid record.
func (e *Engine) readAt(offset int64) (Product, error) {
	var buf [RecordSize]byte
	if _, err := e.file.ReadAt(buf[:], offset); err != nil {
		if errors.Is(err, io.EOF) {
			return Product{}, nil
		}
		return Product{}, fmt.Errorf("%w: read record at %d: %w", ErrIO, offset, err)
	}
	return decodeProduct(buf[:]), nil
}

func (e *Engine) writeAt(buf []byte, offset int64) error {
	if _, err := e.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("%w: write at %d: %w", ErrIO, offset, err)
	}
	return nil
}

// deleteAt unindexes, frees and zero fills the slot holding id.
func (e *Engine) deleteAt(id int32, offset int64) error {
	p, err := e.readAt(offset)
	if err != nil {
		return err
	}

	e.index.Remove(&p, offset)
	e.index.removeID(id, offset)
	e.free.Release(offset)

	var zero [RecordSize]byte
	if err := e.writeAt(zero[:], offset); err != nil {
		return err
	}

	e.logger.Debug("record deleted", zap.Int32("id", id), zap.Int64("offset", offset))
	return nil
}

func (e *Engine) writeHeader() error {
	if err := e.writeAt(e.header.Bytes(), 0); err != nil {
		return err
	}
	return e.flush()
}

func (e *Engine) flush() error {
	if !e.opts.sync {
		return nil
	}
	if err := e.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrIO, err)
	}
	return nil
}

func decodeProduct(src []byte) Product {
	var p Product
	p.Decode(src)
	return p
}
