package encoding

import (
	"encoding/binary"
	"errors"
	"math"
	"math/bits"
)

// Gorilla blocks hold float64 columns as XOR bit streams. Each value is
// XORed against its predecessor; a nonzero XOR is stored either inside the
// current significant-bit window or under a freshly declared window of
// (leading zeros, significant bits). NaN and the infinities round-trip
// bit-exact, which matters for value columns fed from Prometheus-style
// string samples.
//
// The leading-zero field is 5 bits, so windows cap leading zeros at 31. A
// significant-bit count of 64 is stored as 0.
type GorillaEncoder struct {
	bw       *BitWriter
	prev     uint64
	leading  uint8
	trailing uint8
	window   bool
	count    int
}

// NewGorillaEncoder creates a new Gorilla encoder.
func NewGorillaEncoder() *GorillaEncoder {
	return &GorillaEncoder{bw: NewBitWriter()}
}

// Encode adds a value to the compressed stream.
func (e *GorillaEncoder) Encode(value float64) {
	v := math.Float64bits(value)
	if e.count == 0 {
		e.bw.WriteBits(v, 64)
	} else {
		e.encodeXOR(v ^ e.prev)
	}
	e.prev = v
	e.count++
}

func (e *GorillaEncoder) encodeXOR(xor uint64) {
	if xor == 0 {
		e.bw.WriteBit(0)
		return
	}
	e.bw.WriteBit(1)

	lz := uint8(bits.LeadingZeros64(xor))
	if lz > 31 {
		lz = 31
	}
	tz := uint8(bits.TrailingZeros64(xor))

	if e.window && lz >= e.leading && tz >= e.trailing {
		e.bw.WriteBit(0)
		e.bw.WriteBits(xor>>e.trailing, 64-int(e.leading)-int(e.trailing))
		return
	}

	e.leading, e.trailing, e.window = lz, tz, true
	sig := 64 - int(lz) - int(tz)
	e.bw.WriteBit(1)
	e.bw.WriteBits(uint64(lz), 5)
	e.bw.WriteBits(uint64(sig&63), 6)
	e.bw.WriteBits(xor>>tz, sig)
}

// Bytes returns the compressed block: a little-endian uint32 value count
// followed by the bit stream.
func (e *GorillaEncoder) Bytes() []byte {
	stream := e.bw.Bytes()
	out := make([]byte, 4+len(stream))
	binary.LittleEndian.PutUint32(out, uint32(e.count))
	copy(out[4:], stream)
	return out
}

// Reset clears the encoder for the next column.
func (e *GorillaEncoder) Reset() {
	e.bw.Reset()
	e.prev = 0
	e.leading = 0
	e.trailing = 0
	e.window = false
	e.count = 0
}

// EncodeGorilla compresses a slice of float64 values.
func EncodeGorilla(values []float64) []byte {
	enc := NewGorillaEncoder()
	for _, v := range values {
		enc.Encode(v)
	}
	return enc.Bytes()
}

// GorillaDecoder decompresses Gorilla-encoded float64 values.
type GorillaDecoder struct {
	br       *BitReader
	prev     uint64
	leading  uint8
	trailing uint8
	index    int
}

// DecodeGorilla decompresses a Gorilla-encoded block.
func DecodeGorilla(data []byte) ([]float64, error) {
	if len(data) < 4 {
		return nil, errors.New("gorilla: block too short")
	}
	count := int(binary.LittleEndian.Uint32(data))
	dec := &GorillaDecoder{br: NewBitReader(data[4:])}

	out := make([]float64, 0, count)
	for i := 0; i < count; i++ {
		val, err := dec.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

// Next returns the next decompressed value.
func (d *GorillaDecoder) Next() (float64, error) {
	if d.index == 0 {
		first, err := d.br.ReadBits(64)
		if err != nil {
			return 0, err
		}
		d.prev = first
		d.index++
		return math.Float64frombits(first), nil
	}

	ctrl, err := d.br.ReadBit()
	if err != nil {
		return 0, err
	}
	if ctrl == 0 {
		d.index++
		return math.Float64frombits(d.prev), nil
	}

	fresh, err := d.br.ReadBit()
	if err != nil {
		return 0, err
	}
	if fresh == 1 {
		lzBits, err := d.br.ReadBits(5)
		if err != nil {
			return 0, err
		}
		sigBits, err := d.br.ReadBits(6)
		if err != nil {
			return 0, err
		}
		sig := int(sigBits)
		if sig == 0 {
			sig = 64
		}
		if int(lzBits)+sig > 64 {
			return 0, errors.New("gorilla: invalid bit window")
		}
		d.leading = uint8(lzBits)
		d.trailing = uint8(64 - sig - int(lzBits))
	}

	sig := 64 - int(d.leading) - int(d.trailing)
	xorBits, err := d.br.ReadBits(sig)
	if err != nil {
		return 0, err
	}

	d.prev ^= xorBits << d.trailing
	d.index++
	return math.Float64frombits(d.prev), nil
}
