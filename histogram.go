package federation

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Bucket is one cumulative histogram bucket: the count of observations at or
// below UpperBound.
type Bucket struct {
	UpperBound float64
	Count      float64
}

// CumulativeHistogram is an immutable histogram value: bucket boundaries in
// ascending order, each paired with its cumulative observation count. The
// last boundary is +Inf when the wire payload carried an unbounded bucket.
type CumulativeHistogram struct {
	buckets []Bucket
}

// NewCumulativeHistogram builds a histogram from bucket pairs, sorting them
// by ascending boundary. The input slice is not retained.
func NewCumulativeHistogram(buckets []Bucket) *CumulativeHistogram {
	sorted := make([]Bucket, len(buckets))
	copy(sorted, buckets)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].UpperBound < sorted[j].UpperBound
	})
	return &CumulativeHistogram{buckets: sorted}
}

// ParseBucketMap builds a histogram from a wire bucket map. The boundary
// token "+inf" (any case) maps to positive infinity; every other token must
// parse as a decimal number or the whole sample is rejected.
func ParseBucketMap(m map[string]float64) (*CumulativeHistogram, error) {
	buckets := make([]Bucket, 0, len(m))
	for token, count := range m {
		bound, err := parseBucketBound(token)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, Bucket{UpperBound: bound, Count: count})
	}
	return NewCumulativeHistogram(buckets), nil
}

func parseBucketBound(token string) (float64, error) {
	if strings.EqualFold(token, "+inf") {
		return math.Inf(1), nil
	}
	bound, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedBucket, token)
	}
	return bound, nil
}

// Len returns the bucket count.
func (h *CumulativeHistogram) Len() int {
	return len(h.buckets)
}

// Buckets returns a copy of the bucket pairs in ascending boundary order.
func (h *CumulativeHistogram) Buckets() []Bucket {
	out := make([]Bucket, len(h.buckets))
	copy(out, h.buckets)
	return out
}

// TotalCount returns the cumulative count of the last bucket, which covers
// all observations when that bucket is unbounded.
func (h *CumulativeHistogram) TotalCount() float64 {
	if len(h.buckets) == 0 {
		return 0
	}
	return h.buckets[len(h.buckets)-1].Count
}

// HasInfBucket reports whether the last boundary is positive infinity.
func (h *CumulativeHistogram) HasInfBucket() bool {
	if len(h.buckets) == 0 {
		return false
	}
	return math.IsInf(h.buckets[len(h.buckets)-1].UpperBound, 1)
}

// Quantile computes the q-th quantile (0 <= q <= 1) by linear interpolation
// within the containing bucket.
func (h *CumulativeHistogram) Quantile(q float64) float64 {
	if q < 0 || q > 1 || len(h.buckets) == 0 {
		return math.NaN()
	}
	total := h.TotalCount()
	if total == 0 {
		return math.NaN()
	}

	rank := q * total
	idx := sort.Search(len(h.buckets), func(i int) bool {
		return h.buckets[i].Count >= rank
	})
	if idx >= len(h.buckets) {
		idx = len(h.buckets) - 1
	}

	upper := h.buckets[idx].UpperBound
	if math.IsInf(upper, 1) {
		if idx == 0 {
			return math.NaN()
		}
		return h.buckets[idx-1].UpperBound
	}
	if idx == 0 {
		return upper
	}

	lower := h.buckets[idx-1].UpperBound
	below := h.buckets[idx-1].Count
	inBucket := h.buckets[idx].Count - below
	if inBucket <= 0 {
		return upper
	}
	return lower + (upper-lower)*((rank-below)/inBucket)
}

// Clone creates a deep copy of the histogram.
func (h *CumulativeHistogram) Clone() *CumulativeHistogram {
	if h == nil {
		return nil
	}
	return &CumulativeHistogram{buckets: h.Buckets()}
}

// Encode serializes the histogram to bytes.
func (h *CumulativeHistogram) Encode() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(h.buckets))); err != nil {
		return nil, err
	}
	for _, b := range h.buckets {
		if err := binary.Write(buf, binary.LittleEndian, b.UpperBound); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.LittleEndian, b.Count); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeCumulativeHistogram deserializes a histogram from bytes.
func DecodeCumulativeHistogram(data []byte) (*CumulativeHistogram, error) {
	reader := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(reader, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	buckets := make([]Bucket, count)
	for i := uint32(0); i < count; i++ {
		if err := binary.Read(reader, binary.LittleEndian, &buckets[i].UpperBound); err != nil {
			return nil, err
		}
		if err := binary.Read(reader, binary.LittleEndian, &buckets[i].Count); err != nil {
			return nil, err
		}
	}
	return &CumulativeHistogram{buckets: buckets}, nil
}
