// Package encoding implements the binary column codecs behind serialized
// range vectors.
//
// Each column of a range-vector payload is encoded independently:
//   - Delta: delta-of-delta compression for timestamp and count columns
//   - Gorilla: XOR-based float compression (Facebook Gorilla paper)
//   - Blob: length-prefixed byte blocks for histogram columns
//
// All fixed-width values are little-endian. Encoders support Reset so a
// row builder can serialize many series through the same instances.
package encoding
