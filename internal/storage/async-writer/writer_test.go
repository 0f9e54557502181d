package asyncwriter

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedBuffer lets the test read what the writer goroutine wrote.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type failingWriter struct {
	err   error
	calls int
}

func (f *failingWriter) Write(p []byte) (int, error) {
	f.calls++
	return 0, f.err
}

func TestAsyncWriter_OrderAndFlush(t *testing.T) {
	var out lockedBuffer
	aw := NewAsyncWriterSize(&out, 64)

	var want bytes.Buffer
	for i := range 500 {
		line := fmt.Sprintf("row %d\n", i)
		want.WriteString(line)
		if i%2 == 0 {
			_, err := aw.Write([]byte(line))
			require.NoError(t, err)
		} else {
			_, err := aw.WriteString(line)
			require.NoError(t, err)
		}
	}

	require.NoError(t, aw.Flush())
	assert.Equal(t, want.String(), out.String())
	require.NoError(t, aw.Close())
}

func TestAsyncWriter_Close(t *testing.T) {
	var out lockedBuffer
	aw := NewAsyncWriterSize(&out, 1<<16)

	_, err := aw.WriteString("tail")
	require.NoError(t, err)
	require.NoError(t, aw.Close())
	assert.Equal(t, "tail", out.String())

	require.NoError(t, aw.Close())
	_, err = aw.Write([]byte("late"))
	require.ErrorIs(t, err, ErrWriteAfterClose)
	require.ErrorIs(t, aw.Flush(), ErrWriteAfterClose)
}

func TestAsyncWriter_ReportsFirstError(t *testing.T) {
	diskFull := errors.New("disk full")
	fw := &failingWriter{err: diskFull}
	// A one byte buffer forces every chunk through to the failing writer.
	aw := NewAsyncWriterSize(fw, 1)

	for range 10 {
		_, err := aw.WriteString("chunk")
		require.NoError(t, err)
	}

	require.ErrorIs(t, aw.Flush(), diskFull)
	require.ErrorIs(t, aw.Close(), diskFull)
	assert.Equal(t, 1, fw.calls, "writes after the first failure are dropped")
}
