package storage

import (
	"os"

	"go.uber.org/zap"
)

type options struct {
	logger   *zap.Logger
	sync     bool        // fsync after every mutation
	fileMode os.FileMode // mode of created database, backup and export files
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSync makes every mutating call fsync the file after its header write.
func WithSync(enabled bool) Option {
	return func(o *options) {
		o.sync = enabled
	}
}

// WithFileMode sets the permission bits for files the engine creates.
func WithFileMode(mode os.FileMode) Option {
	return func(o *options) {
		o.fileMode = mode
	}
}

func defaultOptions() options {
	return options{
		logger:   zap.NewNop(),
		sync:     false,
		fileMode: 0o644,
	}
}
