package federation

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/chronicle-db/federation/internal/encoding"
)

// SerializedRangeVector is one series in the engine's binary columnar form:
// the series key, the shared output range, the row count, and the encoded
// column payload with its size and identity token.
type SerializedRangeVector struct {
	Key         SeriesKey
	Range       OutputRange
	Rows        int
	Data        []byte
	SizeBytes   int
	Fingerprint string
}

// RowBuilder serializes rows into the binary columnar payload of a range
// vector. One builder is shared by every series of a response to amortize
// buffer allocation; it is not safe for concurrent use and must not outlive
// the response-assembly call that owns it.
//
// Serialization cost is recorded into the placeholder accumulator passed at
// construction, never into the result's own stats: the remote already
// accounted for producing this data.
type RowBuilder struct {
	schema  ResultSchema
	scratch *QueryStats

	ts      *encoding.DeltaEncoder
	doubles []*encoding.GorillaEncoder
	longs   []*encoding.DeltaEncoder
	histBuf bytes.Buffer
	rows    int
}

// NewRowBuilder creates a builder for one response's schema. The scratch
// accumulator receives the serialization cost and is discarded by callers.
func NewRowBuilder(schema ResultSchema, scratch *QueryStats) *RowBuilder {
	if scratch == nil {
		scratch = &QueryStats{}
	}
	b := &RowBuilder{schema: schema, scratch: scratch}
	for _, col := range schema.Columns {
		switch col.Type {
		case ColumnTimestamp:
			b.ts = encoding.NewDeltaEncoder()
		case ColumnDouble:
			b.doubles = append(b.doubles, encoding.NewGorillaEncoder())
		case ColumnLong:
			b.longs = append(b.longs, encoding.NewDeltaEncoder())
		case ColumnHistogram:
			// histBuf is ready at its zero value
		}
	}
	return b
}

// AppendRow writes one row's columns, in the schema's column order. The row
// may be reused by the caller after this returns.
func (b *RowBuilder) AppendRow(row *Row) error {
	switch b.schema.Shape {
	case ShapeDefault:
		b.ts.Encode(row.TimestampMs)
		b.doubles[0].Encode(row.Value)
	case ShapeHistogram:
		b.ts.Encode(row.TimestampMs)
		blob, err := row.Histogram.Encode()
		if err != nil {
			return err
		}
		if err := encoding.WriteBlob(&b.histBuf, blob); err != nil {
			return err
		}
	case ShapeAvgAggregate:
		b.ts.Encode(row.TimestampMs)
		b.doubles[0].Encode(row.Value)
		b.longs[0].Encode(row.Count)
	case ShapeStdDevAggregate:
		b.ts.Encode(row.TimestampMs)
		b.doubles[0].Encode(row.Value)
		b.doubles[1].Encode(row.Mean)
		b.longs[0].Encode(row.Count)
	default:
		return fmt.Errorf("federation: no row layout for shape %s", b.schema.Shape)
	}
	b.rows++
	return nil
}

// FinishVector seals the rows appended so far into a serialized range
// vector and resets the builder for the next series. Column blocks are
// emitted in the schema's column order.
func (b *RowBuilder) FinishVector(key SeriesKey, rng OutputRange) (*SerializedRangeVector, error) {
	var payload bytes.Buffer
	di, li := 0, 0
	for _, col := range b.schema.Columns {
		var block []byte
		switch col.Type {
		case ColumnTimestamp:
			block = b.ts.Bytes()
		case ColumnDouble:
			block = b.doubles[di].Bytes()
			di++
		case ColumnLong:
			block = b.longs[li].Bytes()
			li++
		case ColumnHistogram:
			block = b.histBuf.Bytes()
		}
		if err := encoding.WriteBlob(&payload, block); err != nil {
			return nil, err
		}
	}

	data := append([]byte(nil), payload.Bytes()...)
	sv := &SerializedRangeVector{
		Key:         key,
		Range:       rng,
		Rows:        b.rows,
		Data:        data,
		SizeBytes:   len(data),
		Fingerprint: vectorFingerprint(key, data),
	}
	b.scratch.RecordSerialized(sv.Rows, sv.SizeBytes)
	b.reset()
	return sv, nil
}

// SerializeVector drains one range vector's single-pass row sequence through
// the builder. Each row is fully serialized before the iterator advances.
func (b *RowBuilder) SerializeVector(rv RangeVector) (*SerializedRangeVector, error) {
	for rv.Rows.Next() {
		if err := b.AppendRow(rv.Rows.At()); err != nil {
			return nil, err
		}
	}
	if err := rv.Rows.Err(); err != nil {
		return nil, err
	}
	return b.FinishVector(rv.Key, rv.Range)
}

func (b *RowBuilder) reset() {
	if b.ts != nil {
		b.ts.Reset()
	}
	for _, enc := range b.doubles {
		enc.Reset()
	}
	for _, enc := range b.longs {
		enc.Reset()
	}
	b.histBuf.Reset()
	b.rows = 0
}

func vectorFingerprint(key SeriesKey, data []byte) string {
	h := sha256.New()
	h.Write([]byte(key.String()))
	h.Write([]byte{0})
	h.Write(data)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// assembleSuccess reconstructs and serializes every series of a decoded
// success payload into a final result, forwarding the remote's stats,
// warnings, partial flag and message.
func assembleSuccess(resp *RemoteResponse, window TimeWindow) *FederatedResult {
	stats := remoteStats(resp.QueryStats)
	warnings := remoteWarnings(resp.QueryWarnings)

	shape, err := resolveShape(resp.Data.Result)
	if err != nil {
		re := newRemoteError(ErrorKindMalformed, "resolving result shape", err)
		return errorResult(re, stats)
	}
	if shape == ShapeNone {
		// Empty result lists are a valid success outcome.
		return okResult(ResultSchema{}, nil, resp, stats, warnings)
	}

	schema := SchemaFor(shape)
	rng := window.OutputRange()
	scratch := &QueryStats{}
	builder := NewRowBuilder(schema, scratch)

	vectors := make([]*SerializedRangeVector, 0, len(resp.Data.Result))
	for i := range resp.Data.Result {
		series := &resp.Data.Result[i]
		rows, hint := rowsFor(shape, series)
		rv := RangeVector{
			Key:     NewSeriesKey(series.Metric),
			Rows:    rows,
			Range:   rng,
			RowHint: hint,
		}
		sv, err := builder.SerializeVector(rv)
		if err != nil {
			re := newRemoteError(ErrorKindMalformed, "reconstructing remote series", err)
			return errorResult(re, stats)
		}
		vectors = append(vectors, sv)
	}
	return okResult(schema, vectors, resp, stats, warnings)
}

func remoteStats(s *QueryStats) QueryStats {
	if s == nil {
		return QueryStats{}
	}
	return *s
}

func remoteWarnings(w *QueryWarnings) QueryWarnings {
	if w == nil {
		return QueryWarnings{}
	}
	out := QueryWarnings{}
	out.Merge(*w)
	return out
}

// DecodedRows is the materialized column data of one serialized range
// vector, used by consumers that re-expand payloads (tests, the archive).
type DecodedRows struct {
	Timestamps []int64
	Doubles    [][]float64
	Longs      [][]int64
	Histograms []*CumulativeHistogram
}

// DecodeRows expands a serialized payload against its schema.
func DecodeRows(schema ResultSchema, data []byte) (*DecodedRows, error) {
	reader := bytes.NewReader(data)
	out := &DecodedRows{}
	for _, col := range schema.Columns {
		block, err := encoding.ReadBlob(reader)
		if err != nil {
			return nil, fmt.Errorf("federation: reading %s column: %w", col.Name, err)
		}
		switch col.Type {
		case ColumnTimestamp:
			out.Timestamps, err = encoding.DecodeDelta(block)
		case ColumnDouble:
			var vals []float64
			vals, err = encoding.DecodeGorilla(block)
			out.Doubles = append(out.Doubles, vals)
		case ColumnLong:
			var vals []int64
			vals, err = encoding.DecodeDelta(block)
			out.Longs = append(out.Longs, vals)
		case ColumnHistogram:
			blockReader := bytes.NewReader(block)
			for blockReader.Len() > 0 {
				blob, berr := encoding.ReadBlob(blockReader)
				if berr != nil {
					return nil, fmt.Errorf("federation: reading histogram block: %w", berr)
				}
				h, herr := DecodeCumulativeHistogram(blob)
				if herr != nil {
					return nil, herr
				}
				out.Histograms = append(out.Histograms, h)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("federation: decoding %s column: %w", col.Name, err)
		}
	}
	return out, nil
}
