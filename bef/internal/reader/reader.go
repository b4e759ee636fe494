// Package reader implements the low-level byte cursor BEF decoding is built
// on: bounded reads, the container's variable-byte integers, alignment
// skipping, and borrowed (non-copying) slicing.
//
// A Reader never allocates and never copies; every Take returns a slice of
// the buffer it was constructed over. Sub-readers (New over a slice taken
// from a parent Reader) isolate one section or one function body from the
// rest of the file, the same way internal/watcher/ebpf/process.go in the
// teacher repo reads one fixed-layout record at a time out of a larger ring
// buffer without copying the ring buffer itself.
package reader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tripwire/beflow/bef/internal/varint"
)

// ErrTruncated is returned whenever a read would run past the end of the
// buffer.
var ErrTruncated = errors.New("reader: truncated")

// Reader is a forward-only cursor over a borrowed byte slice.
type Reader struct {
	buf []byte
	pos int
}

// New returns a Reader positioned at the start of buf.
func New(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Empty reports whether the reader has no unread bytes left.
func (r *Reader) Empty() bool { return r.Remaining() <= 0 }

// Pos returns the current cursor position relative to the start of this
// reader's own buffer (not the original file, if this is a sub-reader).
func (r *Reader) Pos() int { return r.pos }

// Len returns the total length of the underlying buffer.
func (r *Reader) Len() int { return len(r.buf) }

// Buf returns the full underlying buffer, for callers (such as the
// attribute-pool decoder) that need random-access byte offsets rather than
// sequential reads.
func (r *Reader) Buf() []byte { return r.buf }

// ReadU8 reads and returns a single byte.
func (r *Reader) ReadU8() (byte, error) {
	if r.Remaining() < 1 {
		return 0, ErrTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadVarint reads a little-endian base-128 variable-byte integer.
func (r *Reader) ReadVarint() (uint64, error) {
	v, n, err := varint.Read(r.buf[r.pos:])
	if err != nil {
		return 0, ErrTruncated
	}
	r.pos += n
	return v, nil
}

// ReadCount reads a varint record count and rejects any value that could not
// possibly be backed by the bytes remaining in the reader, so a forged count
// never reaches a bare make([]T, count) allocation downstream. minRecordSize
// is the smallest possible encoded size of one record (pass 1 for a stream
// of at-least-one-byte varints, or the fixed width of a fixed-size record);
// pass 0 when the count bounds nothing in this reader (the caller must apply
// its own bound instead).
func (r *Reader) ReadCount(minRecordSize int) (uint64, error) {
	count, err := r.ReadVarint()
	if err != nil {
		return 0, err
	}
	if minRecordSize <= 0 {
		return count, nil
	}
	if count > uint64(r.Remaining()/minRecordSize) {
		return 0, fmt.Errorf("%w: count %d exceeds remaining capacity for %d-byte records (%d bytes left)", ErrTruncated, count, minRecordSize, r.Remaining())
	}
	return count, nil
}

// ReadU32 reads a fixed 4-byte little-endian unsigned integer.
func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.Take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a fixed 8-byte little-endian unsigned integer.
func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.Take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Take borrows the next n bytes without copying and advances the cursor.
func (r *Reader) Take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip advances the cursor by n bytes without returning them.
func (r *Reader) Skip(n int) error {
	_, err := r.Take(n)
	return err
}

// ReadAligned advances the cursor to the next multiple of n, relative to the
// start of this reader's own buffer. Padding byte contents are never
// inspected. n must be a positive power of two; no-op if already aligned.
func (r *Reader) ReadAligned(n int) error {
	if n <= 0 {
		return fmt.Errorf("reader: invalid alignment %d", n)
	}
	rem := r.pos % n
	if rem == 0 {
		return nil
	}
	return r.Skip(n - rem)
}

// Section is one outer-container record: an identifier byte, its declared
// length, and its borrowed payload.
type Section struct {
	ID      byte
	Payload []byte
}

// ReadSection reads one section header (id byte, varint length) and borrows
// its payload.
func (r *Reader) ReadSection() (Section, error) {
	id, err := r.ReadU8()
	if err != nil {
		return Section{}, err
	}
	length, err := r.ReadVarint()
	if err != nil {
		return Section{}, err
	}
	payload, err := r.Take(int(length))
	if err != nil {
		return Section{}, err
	}
	return Section{ID: id, Payload: payload}, nil
}
