package asyncio

import "errors"

// Sink is the non-blocking byte-sink contract a Writer wraps: Write
// returns the number of bytes actually accepted and, optionally,
// ErrWouldBlock if the sink can take no more right now (n may still be >
// 0, representing real progress).
type Sink interface {
	Write(p []byte) (n int, err error)
}

// Flusher is optionally implemented by a Sink that buffers internally
// (e.g. a TLS record layer) and needs an explicit flush.
type Flusher interface {
	Flush() error
}

// Writer is a buffered adapter over a non-blocking Sink.
type Writer struct {
	sink Sink
	buf  *Buf
}

// NewWriter wraps sink in a Writer with a small initial scratch buffer.
func NewWriter(sink Sink) *Writer {
	return &Writer{sink: sink, buf: NewBuf(minGrow)}
}

// flushOnce writes as much of the buffered content as the sink accepts
// in a single call. drained reports whether the buffer is now empty.
func (w *Writer) flushOnce() (drained bool, err error) {
	if w.buf.DataSize() == 0 {
		return true, nil
	}
	n, e := w.sink.Write(w.buf.Readable())
	if n > 0 {
		w.buf.Consume(n)
	}
	if e != nil && !errors.Is(e, ErrWouldBlock) {
		return w.buf.DataSize() == 0, e
	}
	return w.buf.DataSize() == 0, nil
}

// WriteExact buffers bytes for eventual transmission. If bytes fit in
// the buffer's remaining capacity they are simply copied in. If bytes
// exceed what the buffer can hold without growing, the buffer is first
// drained with one inner sink write, then bytes are offered to the sink
// directly; anything the sink didn't accept is absorbed back into the
// (growing, if necessary) buffer. WriteExact therefore only fails on a
// genuine sink error — it never loses data to a transient would-block.
func (w *Writer) WriteExact(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if w.buf.TryWriteAll(p) {
		return nil
	}
	drained, err := w.flushOnce()
	if err != nil {
		return err
	}
	if !drained {
		w.buf.WriteAll(p)
		return nil
	}
	n, err := w.sink.Write(p)
	if err != nil && !errors.Is(err, ErrWouldBlock) {
		return err
	}
	if n < len(p) {
		w.buf.WriteAll(p[n:])
	}
	return nil
}

// FlushBuf writes as much of the buffered content as the sink accepts in
// one call. It reports Ready (true, nil) only once the buffer is fully
// drained.
func (w *Writer) FlushBuf() (bool, error) {
	return w.flushOnce()
}

// Flush drains the buffer, then flushes the sink if it implements
// Flusher. Ready only once both have completed.
func (w *Writer) Flush() (bool, error) {
	drained, err := w.flushOnce()
	if err != nil {
		return false, err
	}
	if !drained {
		return false, nil
	}
	if f, ok := w.sink.(Flusher); ok {
		if err := f.Flush(); err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return false, nil
			}
			return false, err
		}
	}
	return true, nil
}

// Close makes a best-effort attempt to flush any buffered bytes to the
// sink. Errors are intentionally swallowed: by the time a caller is
// closing a Writer it has usually already decided the connection is
// going away, and any still-unflushed bytes are lost, same as the
// teacher's hkexnet.Conn.Close() best-effort behavior.
func (w *Writer) Close() {
	_, _ = w.flushOnce()
}
