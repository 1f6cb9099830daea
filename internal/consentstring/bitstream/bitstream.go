// Package bitstream packs and unpacks unsigned fields of arbitrary bit width
// over a byte buffer. Fields are written most significant bit first.
//
// Writer and Reader both carry a sticky error: after the first failure every
// subsequent call is a no-op and Err reports the original cause. Callers write
// or read a whole layout and check Err once at the end.
package bitstream

import (
	"errors"
	"fmt"
)

// MaxWidth is the widest field a single call can carry.
const MaxWidth = 64

var (
	// ErrTruncated is returned when a read would go past the end of the buffer.
	ErrTruncated = errors.New("bitstream: truncated input")
	// ErrOverflow is returned when a value does not fit in its field width.
	ErrOverflow = errors.New("bitstream: value overflows field width")
	// ErrWidth is returned for widths outside 0..MaxWidth.
	ErrWidth = errors.New("bitstream: invalid field width")
)

// Writer accumulates bits into a byte slice. The zero value is ready to use.
type Writer struct {
	buf []byte
	n   int // bits written
	err error
}

// WriteUint writes the low width bits of v. The cursor always advances by
// width bits, so layouts stay aligned even when a value is zero.
func (w *Writer) WriteUint(v uint64, width int) {
	if w.err != nil {
		return
	}
	if width < 0 || width > MaxWidth {
		w.err = fmt.Errorf("%w: %d", ErrWidth, width)
		return
	}
	if width < MaxWidth && v>>uint(width) != 0 {
		w.err = fmt.Errorf("%w: %d does not fit in %d bits", ErrOverflow, v, width)
		return
	}
	for i := width - 1; i >= 0; i-- {
		w.writeBit(v>>uint(i)&1 == 1)
	}
}

// WriteBool writes a single bit.
func (w *Writer) WriteBool(b bool) {
	if w.err != nil {
		return
	}
	w.writeBit(b)
}

// WriteBitset writes width bits where bit i (1-indexed, left to right) is set
// when has(i) reports true.
func (w *Writer) WriteBitset(has func(pos int) bool, width int) {
	if w.err != nil {
		return
	}
	if width < 0 {
		w.err = fmt.Errorf("%w: %d", ErrWidth, width)
		return
	}
	for pos := 1; pos <= width; pos++ {
		w.writeBit(has(pos))
	}
}

func (w *Writer) writeBit(b bool) {
	idx := w.n / 8
	if idx == len(w.buf) {
		w.buf = append(w.buf, 0)
	}
	if b {
		w.buf[idx] |= 0x80 >> uint(w.n%8)
	}
	w.n++
}

// Len returns the number of bits written so far.
func (w *Writer) Len() int { return w.n }

// Err returns the first error encountered, if any.
func (w *Writer) Err() error { return w.err }

// Bytes returns the packed buffer. The final byte is zero-padded.
func (w *Writer) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out, nil
}

// Reader consumes bits from a byte slice.
type Reader struct {
	buf []byte
	pos int // bits consumed
	err error
}

// NewReader returns a Reader positioned at the first bit of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// ReadUint reads width bits as an unsigned integer. On failure it returns 0
// and records the error.
func (r *Reader) ReadUint(width int) uint64 {
	if r.err != nil {
		return 0
	}
	if width < 0 || width > MaxWidth {
		r.err = fmt.Errorf("%w: %d", ErrWidth, width)
		return 0
	}
	if width > r.Remaining() {
		r.err = fmt.Errorf("%w: need %d bits at offset %d, have %d", ErrTruncated, width, r.pos, r.Remaining())
		return 0
	}
	var v uint64
	for i := 0; i < width; i++ {
		v <<= 1
		if r.readBit() {
			v |= 1
		}
	}
	return v
}

// ReadInt is ReadUint for fields that always fit in an int.
func (r *Reader) ReadInt(width int) int {
	return int(r.ReadUint(width))
}

// ReadBool reads a single bit.
func (r *Reader) ReadBool() bool {
	return r.ReadUint(1) == 1
}

// ReadBitset reads width bits and calls set for every 1-indexed position
// whose bit is 1.
func (r *Reader) ReadBitset(width int, set func(pos int)) {
	if r.err != nil {
		return
	}
	if width < 0 {
		r.err = fmt.Errorf("%w: %d", ErrWidth, width)
		return
	}
	if width > r.Remaining() {
		r.err = fmt.Errorf("%w: bitset of %d bits at offset %d, have %d", ErrTruncated, width, r.pos, r.Remaining())
		return
	}
	for pos := 1; pos <= width; pos++ {
		if r.readBit() {
			set(pos)
		}
	}
}

// Require records ErrTruncated unless at least n bits remain. It lets callers
// check a declared section length before reading the section.
func (r *Reader) Require(n int) bool {
	if r.err != nil {
		return false
	}
	if n > r.Remaining() {
		r.err = fmt.Errorf("%w: section declares %d bits at offset %d, have %d", ErrTruncated, n, r.pos, r.Remaining())
		return false
	}
	return true
}

func (r *Reader) readBit() bool {
	b := r.buf[r.pos/8]&(0x80>>uint(r.pos%8)) != 0
	r.pos++
	return b
}

// Remaining returns the number of unread bits, padding included.
func (r *Reader) Remaining() int { return len(r.buf)*8 - r.pos }

// Offset returns the number of bits consumed.
func (r *Reader) Offset() int { return r.pos }

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }
