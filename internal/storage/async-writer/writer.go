// Package asyncwriter moves writes to a background goroutine so the caller
// can keep producing while the previous chunk reaches the file.
package asyncwriter

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

var ErrWriteAfterClose = errors.New("write called after writer closed")

const (
	queueSize     = 16
	flushInterval = 100 * time.Millisecond
)

// AsyncWriter buffers writes on a background goroutine. Write never blocks
// on the underlying writer; the first error it returns is kept and reported
// by the next Flush and by Close. Chunks written after that error are dropped.
type AsyncWriter struct {
	queue    chan *bytes.Buffer
	done     chan struct{}
	writer   *bufio.Writer
	wg       sync.WaitGroup
	flushReq chan chan error
	once     sync.Once
	pool     sync.Pool

	// err is owned by the writer goroutine until wg.Wait returns.
	err error
}

func NewAsyncWriterSize(w io.Writer, writerBufferSize int) *AsyncWriter {
	aw := &AsyncWriter{
		queue:    make(chan *bytes.Buffer, queueSize),
		done:     make(chan struct{}),
		writer:   bufio.NewWriterSize(w, writerBufferSize),
		flushReq: make(chan chan error),
		pool: sync.Pool{
			New: func() any {
				return bytes.NewBuffer(make([]byte, 0, 4096))
			},
		},
	}
	aw.wg.Add(1)
	go aw.writerLoop()
	return aw
}

func (aw *AsyncWriter) writerLoop() {
	defer aw.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-aw.queue:
			aw.write(data)
		case <-ticker.C:
			aw.flush()
		case resp := <-aw.flushReq:
			// Chunks queued before Flush was called must land first.
			aw.writeQueued()
			resp <- aw.flush()
		case <-aw.done:
			aw.drain()
			return
		}
	}
}

func (aw *AsyncWriter) writeQueued() {
	for {
		select {
		case data := <-aw.queue:
			aw.write(data)
		default:
			return
		}
	}
}

// drain empties the queue after Close and answers any pending flush.
func (aw *AsyncWriter) drain() {
	for {
		select {
		case data := <-aw.queue:
			aw.write(data)
		case resp := <-aw.flushReq:
			aw.writeQueued()
			resp <- aw.flush()
		default:
			aw.flush()
			return
		}
	}
}

func (aw *AsyncWriter) write(data *bytes.Buffer) {
	if aw.err == nil {
		_, aw.err = aw.writer.Write(data.Bytes())
	}
	aw.pool.Put(data)
}

func (aw *AsyncWriter) flush() error {
	if aw.err == nil {
		aw.err = aw.writer.Flush()
	}
	return aw.err
}

// Write queues a copy of b. It fails only once the writer is closed.
func (aw *AsyncWriter) Write(b []byte) (int, error) {
	poolBuf := aw.pool.Get().(*bytes.Buffer)
	poolBuf.Reset()
	poolBuf.Write(b)

	select {
	case aw.queue <- poolBuf:
		return len(b), nil
	case <-aw.done:
		aw.pool.Put(poolBuf)
		return 0, ErrWriteAfterClose
	}
}

// WriteString is Write for strings, so fmt and io.WriteString avoid a copy.
func (aw *AsyncWriter) WriteString(s string) (int, error) {
	poolBuf := aw.pool.Get().(*bytes.Buffer)
	poolBuf.Reset()
	poolBuf.WriteString(s)

	select {
	case aw.queue <- poolBuf:
		return len(s), nil
	case <-aw.done:
		aw.pool.Put(poolBuf)
		return 0, ErrWriteAfterClose
	}
}

// Flush waits until every queued chunk has been handed to the underlying
// writer and returns the first write error seen so far.
func (aw *AsyncWriter) Flush() error {
	resp := make(chan error, 1)
	select {
	case aw.flushReq <- resp:
		return <-resp
	case <-aw.done:
		return ErrWriteAfterClose
	}
}

// Close drains the queue, flushes and stops the goroutine. It returns the
// first write error. Closing twice is allowed.
func (aw *AsyncWriter) Close() error {
	aw.once.Do(func() {
		close(aw.done)
	})
	aw.wg.Wait()
	return aw.err
}

var (
	_ io.WriteCloser  = (*AsyncWriter)(nil)
	_ io.StringWriter = (*AsyncWriter)(nil)
)
