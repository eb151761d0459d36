package encoding

import (
	"encoding/binary"
	"errors"
)

// Delta blocks hold int64 columns as delta-of-delta bit streams. The first
// value and the first delta are zigzag varints; every later value stores its
// delta-of-delta under a unary selector, sized by the smallest bucket that
// fits. Timestamp columns with a regular step collapse to one bit per row.
var dodBuckets = []struct {
	prefix     uint64
	prefixBits int
	valueBits  int
}{
	{0b10, 2, 7},
	{0b110, 3, 12},
	{0b1110, 4, 20},
}

func zigzag(v int64) uint64 {
	return uint64(v<<1 ^ v>>63)
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

func writeUvarintBits(bw *BitWriter, u uint64) {
	for u >= 0x80 {
		bw.WriteBits(u&0x7f|0x80, 8)
		u >>= 7
	}
	bw.WriteBits(u, 8)
}

func readUvarintBits(br *BitReader) (uint64, error) {
	var out uint64
	var shift uint
	for {
		b, err := br.ReadBits(8)
		if err != nil {
			return 0, err
		}
		out |= (b & 0x7f) << shift
		if b&0x80 == 0 {
			return out, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.New("encoding: varint overflow")
		}
	}
}

// DeltaEncoder compresses int64 values using delta-of-delta encoding.
type DeltaEncoder struct {
	bw        *BitWriter
	prevValue int64
	prevDelta int64
	count     int
}

// NewDeltaEncoder creates a new delta encoder.
func NewDeltaEncoder() *DeltaEncoder {
	return &DeltaEncoder{bw: NewBitWriter()}
}

// Encode adds a value to the compressed stream.
func (e *DeltaEncoder) Encode(value int64) {
	switch e.count {
	case 0:
		writeUvarintBits(e.bw, zigzag(value))
	case 1:
		delta := value - e.prevValue
		writeUvarintBits(e.bw, zigzag(delta))
		e.prevDelta = delta
	default:
		delta := value - e.prevValue
		e.encodeDOD(delta - e.prevDelta)
		e.prevDelta = delta
	}
	e.prevValue = value
	e.count++
}

func (e *DeltaEncoder) encodeDOD(dod int64) {
	if dod == 0 {
		e.bw.WriteBit(0)
		return
	}
	z := zigzag(dod)
	for _, b := range dodBuckets {
		if z < 1<<uint(b.valueBits) {
			e.bw.WriteBits(b.prefix, b.prefixBits)
			e.bw.WriteBits(z, b.valueBits)
			return
		}
	}
	e.bw.WriteBits(0b1111, 4)
	e.bw.WriteBits(z, 64)
}

// Bytes returns the compressed block: a little-endian uint32 value count
// followed by the bit stream.
func (e *DeltaEncoder) Bytes() []byte {
	stream := e.bw.Bytes()
	out := make([]byte, 4+len(stream))
	binary.LittleEndian.PutUint32(out, uint32(e.count))
	copy(out[4:], stream)
	return out
}

// Reset clears the encoder for the next column.
func (e *DeltaEncoder) Reset() {
	e.bw.Reset()
	e.prevValue = 0
	e.prevDelta = 0
	e.count = 0
}

// EncodeDelta compresses a slice of int64 values.
func EncodeDelta(values []int64) []byte {
	enc := NewDeltaEncoder()
	for _, v := range values {
		enc.Encode(v)
	}
	return enc.Bytes()
}

// DeltaDecoder decompresses delta-encoded int64 values.
type DeltaDecoder struct {
	br        *BitReader
	prevValue int64
	prevDelta int64
	index     int
}

// DecodeDelta decompresses a delta-encoded block.
func DecodeDelta(data []byte) ([]int64, error) {
	if len(data) < 4 {
		return nil, errors.New("delta: block too short")
	}
	count := int(binary.LittleEndian.Uint32(data))
	dec := &DeltaDecoder{br: NewBitReader(data[4:])}

	out := make([]int64, 0, count)
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
func (d *DeltaDecoder) Next() (int64, error) {
	switch d.index {
	case 0:
		z, err := readUvarintBits(d.br)
		if err != nil {
			return 0, err
		}
		d.prevValue = unzigzag(z)
	case 1:
		z, err := readUvarintBits(d.br)
		if err != nil {
			return 0, err
		}
		d.prevDelta = unzigzag(z)
		d.prevValue += d.prevDelta
	default:
		dod, err := d.readDOD()
		if err != nil {
			return 0, err
		}
		d.prevDelta += dod
		d.prevValue += d.prevDelta
	}
	d.index++
	return d.prevValue, nil
}

func (d *DeltaDecoder) readDOD() (int64, error) {
	bit, err := d.br.ReadBit()
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		return 0, nil
	}
	for _, b := range dodBuckets {
		next, err := d.br.ReadBit()
		if err != nil {
			return 0, err
		}
		if next == 0 {
			z, err := d.br.ReadBits(b.valueBits)
			if err != nil {
				return 0, err
			}
			return unzigzag(z), nil
		}
	}
	z, err := d.br.ReadBits(64)
	if err != nil {
		return 0, err
	}
	return unzigzag(z), nil
}
