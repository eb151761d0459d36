package encoding

import (
	"errors"
)

var errBitstreamShort = errors.New("encoding: bitstream exhausted")

// BitWriter accumulates a bit stream, most significant bit first. Partial
// trailing bytes are zero filled, so Bytes may be called at any point and
// writing may continue afterwards.
type BitWriter struct {
	buf  []byte
	free uint
}

// NewBitWriter creates a new bit writer.
func NewBitWriter() *BitWriter {
	return &BitWriter{}
}

// WriteBit appends a single bit.
func (w *BitWriter) WriteBit(bit uint8) {
	w.WriteBits(uint64(bit), 1)
}

// WriteBits appends the low n bits of value, most significant first.
func (w *BitWriter) WriteBits(value uint64, n int) {
	if n < 64 {
		value &= 1<<uint(n) - 1
	}
	for n > 0 {
		if w.free == 0 {
			w.buf = append(w.buf, 0)
			w.free = 8
		}
		take := uint(n)
		if take > w.free {
			take = w.free
		}
		chunk := byte(value >> uint(n-int(take)))
		w.buf[len(w.buf)-1] |= chunk << (w.free - take)
		w.free -= take
		n -= int(take)
	}
}

// Bytes returns the stream contents.
func (w *BitWriter) Bytes() []byte {
	return w.buf
}

// Reset clears the writer for reuse, keeping the allocated buffer.
func (w *BitWriter) Reset() {
	w.buf = w.buf[:0]
	w.free = 0
}

// BitReader consumes a bit stream produced by BitWriter.
type BitReader struct {
	buf []byte
	pos uint
}

// NewBitReader creates a bit reader over data.
func NewBitReader(data []byte) *BitReader {
	return &BitReader{buf: data}
}

// ReadBit returns the next bit.
func (r *BitReader) ReadBit() (uint8, error) {
	v, err := r.ReadBits(1)
	return uint8(v), err
}

// ReadBits returns the next n bits as an unsigned value.
func (r *BitReader) ReadBits(n int) (uint64, error) {
	if r.pos+uint(n) > uint(len(r.buf))*8 {
		return 0, errBitstreamShort
	}
	var out uint64
	for n > 0 {
		b := r.buf[r.pos>>3]
		avail := 8 - r.pos&7
		take := uint(n)
		if take > avail {
			take = avail
		}
		shift := avail - take
		mask := byte(1<<take - 1)
		out = out<<take | uint64(b>>shift&mask)
		r.pos += take
		n -= int(take)
	}
	return out, nil
}
