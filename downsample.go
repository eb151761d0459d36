package federation

import (
	"fmt"
	"math"
	"time"
)

// Aggregation functions accepted by a DownsampleRule.
const (
	DownsampleAvg   = "avg"
	DownsampleSum   = "sum"
	DownsampleMin   = "min"
	DownsampleMax   = "max"
	DownsampleCount = "count"
)

// DownsampleRule is one rung of the resolution ladder: data for Metric
// older than MinAge is re-aggregated from Source resolution into Target
// resolution using Function.
type DownsampleRule struct {
	Metric   string        `json:"metric" yaml:"metric"`
	Function string        `json:"function" yaml:"function"`
	Source   time.Duration `json:"source" yaml:"source"`
	Target   time.Duration `json:"target" yaml:"target"`
	MinAge   time.Duration `json:"min_age,omitempty" yaml:"min_age,omitempty"`
}

// Validate checks that the rule is internally consistent.
func (r DownsampleRule) Validate() error {
	if r.Metric == "" {
		return fmt.Errorf("downsample rule: metric is required")
	}
	switch r.Function {
	case DownsampleAvg, DownsampleSum, DownsampleMin, DownsampleMax, DownsampleCount:
	default:
		return fmt.Errorf("downsample rule: unknown function %q", r.Function)
	}
	if r.Source <= 0 || r.Target <= 0 {
		return fmt.Errorf("downsample rule: resolutions must be positive")
	}
	if r.Target < time.Second {
		return fmt.Errorf("downsample rule: target %s is below one second", r.Target)
	}
	if r.Target <= r.Source {
		return fmt.Errorf("downsample rule: target %s must be coarser than source %s", r.Target, r.Source)
	}
	if r.Target%r.Source != 0 {
		return fmt.Errorf("downsample rule: target %s is not a multiple of source %s", r.Target, r.Source)
	}
	return nil
}

// DownsampleJob is one plannable unit of downsampling work: a rule applied
// to an aligned window small enough to run as a single sub-query.
type DownsampleJob struct {
	Rule   DownsampleRule
	Window TimeWindow
}

// QueryContext builds the sub-query for this job. The step equals the
// target resolution so every returned sample is one coarse bucket.
func (j DownsampleJob) QueryContext() *QueryContext {
	query := fmt.Sprintf("%s_over_time(%s[%s])", j.Rule.Function, j.Rule.Metric, j.Rule.Target)
	window := j.Window
	window.StepSec = int64(j.Rule.Target / time.Second)
	return NewQueryContext(query, window)
}

// PlanDownsampleJobs splits the window into target-aligned chunks of at
// most chunk duration. Chunk boundaries land on whole target steps, so no
// coarse bucket ever spans two jobs. A chunk below one target step is
// widened to a single step.
func PlanDownsampleJobs(rule DownsampleRule, window TimeWindow, chunk time.Duration) ([]DownsampleJob, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if chunk < rule.Target {
		chunk = rule.Target
	}
	chunk -= chunk % rule.Target

	stepSec := int64(rule.Target / time.Second)
	start := alignDownSec(window.StartSec, stepSec)
	end := alignUpSec(window.EndSec, stepSec)
	if end <= start {
		return nil, nil
	}

	chunkSec := int64(chunk / time.Second)
	jobs := make([]DownsampleJob, 0, (end-start+chunkSec-1)/chunkSec)
	for cur := start; cur < end; cur += chunkSec {
		stop := cur + chunkSec
		if stop > end {
			stop = end
		}
		jobs = append(jobs, DownsampleJob{
			Rule:   rule,
			Window: TimeWindow{StartSec: cur, StepSec: stepSec, EndSec: stop},
		})
	}
	return jobs, nil
}

func alignDownSec(sec, step int64) int64 {
	return sec - sec%step
}

func alignUpSec(sec, step int64) int64 {
	if rem := sec % step; rem != 0 {
		return sec + step - rem
	}
	return sec
}

// DownsampleRows re-aggregates plain-value rows into target-resolution
// buckets. Rows must arrive in ascending timestamp order. NaN values mark
// stale samples and are skipped. Average buckets also carry mean and count
// so they can be serialized as average aggregates.
func DownsampleRows(rows []Row, rule DownsampleRule) ([]Row, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	stepMs := rule.Target.Milliseconds()
	var out []Row
	var (
		open    bool
		bucket  int64
		sum     float64
		count   int64
		low, hi float64
	)
	flush := func() {
		if !open || count == 0 {
			open = false
			return
		}
		row := Row{TimestampMs: bucket}
		switch rule.Function {
		case DownsampleAvg:
			row.Value = sum / float64(count)
			row.Mean = row.Value
			row.Count = count
		case DownsampleSum:
			row.Value = sum
		case DownsampleMin:
			row.Value = low
		case DownsampleMax:
			row.Value = hi
		case DownsampleCount:
			row.Value = float64(count)
		}
		out = append(out, row)
		open = false
	}

	for _, r := range rows {
		if math.IsNaN(r.Value) {
			continue
		}
		b := r.TimestampMs - r.TimestampMs%stepMs
		if !open || b != bucket {
			flush()
			open = true
			bucket = b
			sum, count = 0, 0
			low, hi = r.Value, r.Value
		}
		sum += r.Value
		count++
		if r.Value < low {
			low = r.Value
		}
		if r.Value > hi {
			hi = r.Value
		}
	}
	flush()
	return out, nil
}
