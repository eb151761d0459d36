package federation

import (
	"fmt"
)

// resolveShape picks the row layout for a whole response by inspecting the
// first sample-bearing result entry. An aggregate wrapper with samples
// decides by its first sample's arity; otherwise a bucket-map first sample
// selects the histogram layout and anything else the default layout. The
// decision applies uniformly to every series of the response; mixed-shape
// responses are not supported.
//
// Entries without samples are skipped. A response whose entries all lack
// samples resolves to ShapeNone and assembles like the empty result.
func resolveShape(result []RemoteSeries) (ResultShape, error) {
	for i := range result {
		entry := &result[i]

		if agg := entry.AggregateResponse; agg != nil && len(agg.AggregateSamples) > 0 {
			first := &agg.AggregateSamples[0]
			switch first.Arity() {
			case 3:
				return ShapeAvgAggregate, nil
			case 4:
				return ShapeStdDevAggregate, nil
			}
			return ShapeNone, fmt.Errorf("%w: first aggregate sample has arity %d", ErrUnsupportedAggregate, first.Arity())
		}

		samples := entry.Samples()
		if len(samples) == 0 {
			continue
		}
		if samples[0].IsHistogram() {
			return ShapeHistogram, nil
		}
		return ShapeDefault, nil
	}
	return ShapeNone, nil
}
