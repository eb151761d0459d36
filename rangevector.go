package federation

import (
	"sort"
	"strings"
)

// SeriesKey identifies one time series by its label set, sourced from the
// remote series' metric labels. It provides a consistent string form for
// map keys and fingerprints.
type SeriesKey struct {
	Labels map[string]string
}

// NewSeriesKey creates a SeriesKey from a label map.
func NewSeriesKey(labels map[string]string) SeriesKey {
	return SeriesKey{Labels: labels}
}

// MetricName returns the value of the __name__ label, if present.
func (sk SeriesKey) MetricName() string {
	return sk.Labels["__name__"]
}

// String returns a canonical string representation of the series key.
// The format is "k1=v1,k2=v2" with labels sorted alphabetically. This form
// is stable across processes and is used for map keys and fingerprints.
func (sk SeriesKey) String() string {
	if len(sk.Labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(sk.Labels))
	for k, v := range sk.Labels {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// PrometheusString returns a Prometheus-style representation, with the
// metric name outside the braces and the remaining labels sorted.
func (sk SeriesKey) PrometheusString() string {
	name := sk.MetricName()
	keys := make([]string, 0, len(sk.Labels))
	for k := range sk.Labels {
		if k == "__name__" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return name
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(sk.Labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Equals checks if two SeriesKeys are equal.
func (sk SeriesKey) Equals(other SeriesKey) bool {
	if len(sk.Labels) != len(other.Labels) {
		return false
	}
	for k, v := range sk.Labels {
		if other.Labels[k] != v {
			return false
		}
	}
	return true
}

// OutputRange is the (start, step, end) window in milliseconds shared by
// every range vector of one response.
type OutputRange struct {
	StartMs int64
	StepMs  int64
	EndMs   int64
}

// OutputRange converts the requested window to milliseconds. The conversion
// is exact; wire windows are integral seconds.
func (w TimeWindow) OutputRange() OutputRange {
	return OutputRange{
		StartMs: w.StartSec * 1000,
		StepMs:  w.StepSec * 1000,
		EndMs:   w.EndSec * 1000,
	}
}

// RangeVector is one reconstructed series: its key, a single-pass row
// sequence, the response's shared output range, and a row-count hint. The
// row sequence may be consumed exactly once; re-iteration is undefined.
type RangeVector struct {
	Key     SeriesKey
	Rows    RowIterator
	Range   OutputRange
	RowHint int
}
