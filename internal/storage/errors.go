package storage

import "errors"

// ErrNotOpen is returned when an operation needs an open database and none is open.
var ErrNotOpen = errors.New("database is not open")

// ErrFileNotFound is returned when the database or backup file does not exist.
var ErrFileNotFound = errors.New("file not found")

// ErrInvalidFormat is returned for a bad header or a short read.
var ErrInvalidFormat = errors.New("invalid file format")

// ErrValidation is returned when a record fails the id/name/price check.
var ErrValidation = errors.New("invalid record")

// ErrDuplicateID is returned when adding a record whose id is already stored.
var ErrDuplicateID = errors.New("duplicate id")

// ErrRecordNotFound is returned when no live record matches.
var ErrRecordNotFound = errors.New("record not found")

// ErrIO wraps any read, write, copy or truncate fault of the underlying file.
var ErrIO = errors.New("i/o failure")

// ResultCode is the numeric outcome reported to callers of the engine.
type ResultCode int

const (
	Success ResultCode = iota
	CodeFileNotFound
	CodeInvalidFormat
	CodeDuplicateID
	CodeRecordNotFound
)

// Code maps an error returned by the engine to its result code.
// Generic I/O faults share the invalid format code.
func Code(err error) ResultCode {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrNotOpen), errors.Is(err, ErrFileNotFound):
		return CodeFileNotFound
	case errors.Is(err, ErrDuplicateID):
		return CodeDuplicateID
	case errors.Is(err, ErrRecordNotFound):
		return CodeRecordNotFound
	default:
		return CodeInvalidFormat
	}
}

func (c ResultCode) String() string {
	switch c {
	case Success:
		return "success"
	case CodeFileNotFound:
		return "database file not found or not open"
	case CodeInvalidFormat:
		return "invalid data format"
	case CodeDuplicateID:
		return "a record with this id already exists"
	case CodeRecordNotFound:
		return "record not found"
	default:
		return "unknown error"
	}
}
