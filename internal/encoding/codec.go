package encoding

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// WriteString writes a length-prefixed string to the buffer.
func WriteString(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	if _, err := buf.WriteString(s); err != nil {
		return err
	}
	return nil
}

// ReadString reads a length-prefixed string from the reader.
func ReadString(reader *bytes.Reader) (string, error) {
	var length uint32
	if err := binary.Read(reader, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}
	if length > uint32(reader.Len()) {
		return "", fmt.Errorf("encoding: string length %d exceeds remaining %d bytes", length, reader.Len())
	}
	b := make([]byte, length)
	if _, err := reader.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteBlob writes a length-prefixed byte block to the buffer.
func WriteBlob(buf *bytes.Buffer, b []byte) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := buf.Write(b)
	return err
}

// ReadBlob reads a length-prefixed byte block from the reader.
func ReadBlob(reader *bytes.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(reader, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}
	if length > uint32(reader.Len()) {
		return nil, fmt.Errorf("encoding: blob length %d exceeds remaining %d bytes", length, reader.Len())
	}
	b := make([]byte, length)
	if _, err := reader.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteLabels writes a label map to the buffer in sorted key order, so
// the same label set always produces the same bytes.
func WriteLabels(buf *bytes.Buffer, labels map[string]string) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(labels))); err != nil {
		return err
	}
	if len(labels) == 0 {
		return nil
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := WriteString(buf, k); err != nil {
			return err
		}
		if err := WriteString(buf, labels[k]); err != nil {
			return err
		}
	}
	return nil
}

// ReadLabels reads a label map from the reader.
func ReadLabels(reader *bytes.Reader) (map[string]string, error) {
	var count uint32
	if err := binary.Read(reader, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	labels := make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		key, err := ReadString(reader)
		if err != nil {
			return nil, err
		}
		val, err := ReadString(reader)
		if err != nil {
			return nil, err
		}
		labels[key] = val
	}
	return labels, nil
}
