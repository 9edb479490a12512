// Package buffer implements the growable byte buffer every compilation
// stage shares: the per-backend code buffer and the driver's final output
// buffer are both a *Buffer.
//
// The buffer grows by plain append, so callers never get to keep a slice
// handle across an unknown number of future writes — a later growth spurt
// is free to move the backing array. Reserve returns an offset instead of
// a slice for exactly this reason; WriteAt re-derives the live slice from
// that offset at the moment of the write, which is what makes the
// pad_loop_open/jump_open back-patch safe no matter how much code has been
// appended in between.
package buffer

import "fmt"

// MaxLen bounds the buffer so a runaway input can't silently exhaust
// memory; past this the buffer reports BufferTooLarge instead of growing
// forever.
const MaxLen = 1 << 34

// Buffer is a growable, contiguous byte buffer.
type Buffer struct {
	data []byte
}

// New returns an empty buffer with a small initial backing array.
func New() *Buffer {
	return &Buffer{data: make([]byte, 0, 4096)}
}

// Len returns the number of bytes currently held.
func (b *Buffer) Len() int { return len(b.data) }

// Bytes returns the buffer's contents. The returned slice aliases the
// buffer's backing array and is only valid until the next Append or
// Reserve call.
func (b *Buffer) Bytes() []byte { return b.data }

// Append grows the buffer by copying p onto the end. It returns an
// *OverflowError instead of growing past MaxLen.
func (b *Buffer) Append(p []byte) error {
	if err := checkCapacity(len(b.data), len(p)); err != nil {
		return err
	}
	b.data = append(b.data, p...)
	return nil
}

// AppendByte appends a single byte.
func (b *Buffer) AppendByte(v byte) error {
	if err := checkCapacity(len(b.data), 1); err != nil {
		return err
	}
	b.data = append(b.data, v)
	return nil
}

// Reserve extends the buffer by n zero bytes and returns the offset at
// which that region begins. It behaves as spec'd: as if append(n
// uninitialized bytes) followed by a borrow of exactly those bytes, except
// the borrow is returned as an offset rather than a slice so it survives
// later reallocation. Use WriteAt to fill it in later.
func (b *Buffer) Reserve(n int) (int, error) {
	if err := checkCapacity(len(b.data), n); err != nil {
		return 0, err
	}
	offset := len(b.data)
	b.data = append(b.data, make([]byte, n)...)
	return offset, nil
}

// WriteAt overwrites the n = len(p) bytes starting at offset with p. It
// never grows the buffer: offset+len(p) must already be within bounds,
// which holds for every caller in this repository because WriteAt is only
// ever used to fill in space already appended earlier (the placeholder a
// backend's PadLoopOpen emitted, or a region Reserve carved out).
func (b *Buffer) WriteAt(offset int, p []byte) {
	if offset < 0 || offset+len(p) > len(b.data) {
		panic(fmt.Sprintf("buffer: WriteAt out of range: offset=%d len=%d bufLen=%d", offset, len(p), len(b.data)))
	}
	copy(b.data[offset:], p)
}

// checkCapacity is the pure predicate behind the BufferTooLarge error, kept
// separate from any actual allocation so it can be unit tested without
// needing to grow a multi-gigabyte buffer.
func checkCapacity(curLen, n int) error {
	if n < 0 {
		panic("buffer: negative reserve/append length")
	}
	if curLen > MaxLen-n {
		return &OverflowError{CurrentLen: curLen, Requested: n, Max: MaxLen}
	}
	return nil
}

// OverflowError reports that a buffer growth would exceed MaxLen. Its
// presence corresponds to the core's BufferTooLarge error kind; formatting
// it into a full diagnostic record is the formatter's job, not this
// package's.
type OverflowError struct {
	CurrentLen int
	Requested  int
	Max        int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("buffer would grow to %d bytes, exceeding the %d byte limit", e.CurrentLen+e.Requested, e.Max)
}
