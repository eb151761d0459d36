package federation

import (
	"fmt"
)

// Row is one typed row of a range vector. Which fields are meaningful is
// dictated by the response's column layout; Value doubles as the stddev
// column in the stddev layout.
type Row struct {
	TimestampMs int64
	Value       float64
	Mean        float64
	Count       int64
	Histogram   *CumulativeHistogram
}

// RowIterator is a single-pass, non-restartable cursor over the rows of one
// range vector. At returns a row mutated and re-yielded in place: a consumer
// must serialize or copy every field it needs before calling Next again, and
// must never retain the returned pointer past one step.
type RowIterator interface {
	// Next advances to the next row. It returns false when the sequence is
	// exhausted or a fatal decode error occurred; check Err to tell apart.
	Next() bool
	// At returns the current row. Only valid after a true Next.
	At() *Row
	// Err returns the first fatal error encountered, if any.
	Err() error
}

// rowsFor selects the sample source and row iterator for one series under
// the resolved shape, plus a row-count hint. Series that do not carry the
// resolved shape's sample source yield an empty iterator.
func rowsFor(shape ResultShape, series *RemoteSeries) (RowIterator, int) {
	switch shape {
	case ShapeDefault:
		samples := series.Samples()
		return &defaultRows{samples: samples}, len(samples)
	case ShapeHistogram:
		samples := series.Samples()
		return &histogramRows{samples: samples}, len(samples)
	case ShapeAvgAggregate:
		if series.AggregateResponse == nil {
			return emptyRows{}, 0
		}
		samples := series.AggregateResponse.AggregateSamples
		return &avgRows{samples: samples}, len(samples)
	case ShapeStdDevAggregate:
		if series.AggregateResponse == nil {
			return emptyRows{}, 0
		}
		samples := series.AggregateResponse.AggregateSamples
		return &stddevRows{samples: samples}, len(samples)
	}
	return emptyRows{}, 0
}

// emptyRows is the iterator of a series with no usable samples.
type emptyRows struct{}

func (emptyRows) Next() bool { return false }
func (emptyRows) At() *Row   { return nil }
func (emptyRows) Err() error { return nil }

// defaultRows yields (timestamp, value) rows from plain numeric samples.
// Samples of any other shape are skipped, not reported as errors.
type defaultRows struct {
	samples []WireSample
	idx     int
	row     Row
}

func (it *defaultRows) Next() bool {
	for it.idx < len(it.samples) {
		s := &it.samples[it.idx]
		it.idx++
		if len(s.Fields) != 1 || s.IsHistogram() {
			continue
		}
		v, err := s.FieldFloat(0)
		if err != nil {
			continue
		}
		it.row = Row{TimestampMs: s.TimestampSec * 1000, Value: v}
		return true
	}
	return false
}

func (it *defaultRows) At() *Row   { return &it.row }
func (it *defaultRows) Err() error { return nil }

// histogramRows yields (timestamp, histogram) rows from bucket-map samples.
// Samples without a bucket map are skipped; a bucket map that fails to parse
// stops the iterator with an error, since dropping buckets would corrupt the
// cumulative counts.
type histogramRows struct {
	samples []WireSample
	idx     int
	row     Row
	err     error
}

func (it *histogramRows) Next() bool {
	if it.err != nil {
		return false
	}
	for it.idx < len(it.samples) {
		s := &it.samples[it.idx]
		it.idx++
		if !s.IsHistogram() {
			continue
		}
		m, err := s.BucketMap()
		if err != nil {
			it.err = err
			return false
		}
		h, err := ParseBucketMap(m)
		if err != nil {
			it.err = err
			return false
		}
		it.row = Row{TimestampMs: s.TimestampSec * 1000, Histogram: h}
		return true
	}
	return false
}

func (it *histogramRows) At() *Row   { return &it.row }
func (it *histogramRows) Err() error { return it.err }

// avgRows yields (timestamp, value, count) rows from averaged aggregate
// samples. Aggregate samples never skip: any sample that is not
// average-shaped stops the iterator with an error.
type avgRows struct {
	samples []WireSample
	idx     int
	row     Row
	err     error
}

func (it *avgRows) Next() bool {
	if it.err != nil || it.idx >= len(it.samples) {
		return false
	}
	s := &it.samples[it.idx]
	it.idx++
	if s.Arity() != 3 {
		it.err = fmt.Errorf("%w: average sample has arity %d", ErrUnsupportedAggregate, s.Arity())
		return false
	}
	v, err := s.FieldFloat(0)
	if err != nil {
		it.err = err
		return false
	}
	count, err := s.FieldLong(1)
	if err != nil {
		it.err = err
		return false
	}
	it.row = Row{TimestampMs: s.TimestampSec * 1000, Value: v, Count: count}
	return true
}

func (it *avgRows) At() *Row   { return &it.row }
func (it *avgRows) Err() error { return it.err }

// stddevRows yields (timestamp, stddev, mean, count) rows from
// standard-deviation aggregate samples, with the same loud-failure policy
// as avgRows.
type stddevRows struct {
	samples []WireSample
	idx     int
	row     Row
	err     error
}

func (it *stddevRows) Next() bool {
	if it.err != nil || it.idx >= len(it.samples) {
		return false
	}
	s := &it.samples[it.idx]
	it.idx++
	if s.Arity() != 4 {
		it.err = fmt.Errorf("%w: stddev sample has arity %d", ErrUnsupportedAggregate, s.Arity())
		return false
	}
	stddev, err := s.FieldFloat(0)
	if err != nil {
		it.err = err
		return false
	}
	mean, err := s.FieldFloat(1)
	if err != nil {
		it.err = err
		return false
	}
	count, err := s.FieldLong(2)
	if err != nil {
		it.err = err
		return false
	}
	it.row = Row{TimestampMs: s.TimestampSec * 1000, Value: stddev, Mean: mean, Count: count}
	return true
}

func (it *stddevRows) At() *Row   { return &it.row }
func (it *stddevRows) Err() error { return it.err }
