package federation

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestDownsampleRuleValidate(t *testing.T) {
	valid := DownsampleRule{
		Metric:   "cpu_usage",
		Function: DownsampleAvg,
		Source:   15 * time.Second,
		Target:   time.Minute,
	}

	tests := []struct {
		name    string
		mutate  func(*DownsampleRule)
		wantErr string
	}{
		{"valid", func(*DownsampleRule) {}, ""},
		{"missing metric", func(r *DownsampleRule) { r.Metric = "" }, "metric is required"},
		{"unknown function", func(r *DownsampleRule) { r.Function = "median" }, "unknown function"},
		{"zero source", func(r *DownsampleRule) { r.Source = 0 }, "must be positive"},
		{"sub-second target", func(r *DownsampleRule) {
			r.Source = 100 * time.Millisecond
			r.Target = 500 * time.Millisecond
		}, "below one second"},
		{"target not coarser", func(r *DownsampleRule) { r.Target = r.Source }, "coarser"},
		{"target not a multiple", func(r *DownsampleRule) {
			r.Source = 25 * time.Second
			r.Target = time.Minute
		}, "not a multiple"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := valid
			tt.mutate(&rule)
			err := rule.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestPlanDownsampleJobs(t *testing.T) {
	rule := DownsampleRule{
		Metric:   "cpu_usage",
		Function: DownsampleAvg,
		Source:   15 * time.Second,
		Target:   time.Minute,
	}

	t.Run("aligns and chunks", func(t *testing.T) {
		jobs, err := PlanDownsampleJobs(rule, TimeWindow{StartSec: 90, EndSec: 330}, 2*time.Minute)
		if err != nil {
			t.Fatalf("plan: %v", err)
		}
		want := []TimeWindow{
			{StartSec: 60, StepSec: 60, EndSec: 180},
			{StartSec: 180, StepSec: 60, EndSec: 300},
			{StartSec: 300, StepSec: 60, EndSec: 360},
		}
		if len(jobs) != len(want) {
			t.Fatalf("planned %d jobs, want %d", len(jobs), len(want))
		}
		for i, job := range jobs {
			if job.Window != want[i] {
				t.Errorf("job %d window = %+v, want %+v", i, job.Window, want[i])
			}
		}
	})

	t.Run("chunk below target widens to one step", func(t *testing.T) {
		jobs, err := PlanDownsampleJobs(rule, TimeWindow{StartSec: 0, EndSec: 120}, 30*time.Second)
		if err != nil {
			t.Fatalf("plan: %v", err)
		}
		if len(jobs) != 2 {
			t.Fatalf("planned %d jobs, want 2", len(jobs))
		}
		if jobs[0].Window.EndSec != 60 || jobs[1].Window.EndSec != 120 {
			t.Errorf("job windows = %+v, %+v", jobs[0].Window, jobs[1].Window)
		}
	})

	t.Run("chunk floors to whole steps", func(t *testing.T) {
		jobs, err := PlanDownsampleJobs(rule, TimeWindow{StartSec: 0, EndSec: 240}, 150*time.Second)
		if err != nil {
			t.Fatalf("plan: %v", err)
		}
		if len(jobs) != 2 {
			t.Fatalf("planned %d jobs, want 2", len(jobs))
		}
		if jobs[0].Window.EndSec != 120 {
			t.Errorf("first chunk ends at %d, want 120", jobs[0].Window.EndSec)
		}
	})

	t.Run("empty window plans nothing", func(t *testing.T) {
		jobs, err := PlanDownsampleJobs(rule, TimeWindow{StartSec: 60, EndSec: 60}, time.Hour)
		if err != nil {
			t.Fatalf("plan: %v", err)
		}
		if jobs != nil {
			t.Errorf("jobs = %+v, want nil", jobs)
		}
	})

	t.Run("rejects invalid rule", func(t *testing.T) {
		bad := rule
		bad.Function = "median"
		if _, err := PlanDownsampleJobs(bad, TimeWindow{StartSec: 0, EndSec: 60}, time.Hour); err == nil {
			t.Error("expected validation error")
		}
	})
}

func TestDownsampleJobQueryContext(t *testing.T) {
	job := DownsampleJob{
		Rule: DownsampleRule{
			Metric:   "cpu_usage",
			Function: DownsampleMax,
			Source:   15 * time.Second,
			Target:   time.Minute,
		},
		Window: TimeWindow{StartSec: 60, StepSec: 60, EndSec: 300},
	}

	qc := job.QueryContext()
	if qc.Query != "max_over_time(cpu_usage[1m0s])" {
		t.Errorf("query = %q", qc.Query)
	}
	if qc.Window.StepSec != 60 {
		t.Errorf("step = %d, want 60", qc.Window.StepSec)
	}
	if qc.Window.StartSec != 60 || qc.Window.EndSec != 300 {
		t.Errorf("window = %+v", qc.Window)
	}
	if qc.QueryID == "" {
		t.Error("query ID should be assigned")
	}
}

func TestDownsampleRows(t *testing.T) {
	rule := func(fn string) DownsampleRule {
		return DownsampleRule{
			Metric:   "cpu_usage",
			Function: fn,
			Source:   15 * time.Second,
			Target:   time.Minute,
		}
	}

	input := []Row{
		{TimestampMs: 0, Value: 1},
		{TimestampMs: 20_000, Value: 2},
		{TimestampMs: 40_000, Value: 3},
		{TimestampMs: 60_000, Value: 10},
		{TimestampMs: 75_000, Value: math.NaN()},
		{TimestampMs: 90_000, Value: 4},
	}

	t.Run("avg carries mean and count", func(t *testing.T) {
		out, err := DownsampleRows(input, rule(DownsampleAvg))
		if err != nil {
			t.Fatalf("downsample: %v", err)
		}
		if len(out) != 2 {
			t.Fatalf("got %d buckets, want 2", len(out))
		}
		first := out[0]
		if first.TimestampMs != 0 || first.Value != 2 || first.Mean != 2 || first.Count != 3 {
			t.Errorf("first bucket = %+v", first)
		}
		second := out[1]
		if second.TimestampMs != 60_000 || second.Value != 7 || second.Count != 2 {
			t.Errorf("second bucket = %+v", second)
		}
	})

	t.Run("sum", func(t *testing.T) {
		out, err := DownsampleRows(input, rule(DownsampleSum))
		if err != nil {
			t.Fatalf("downsample: %v", err)
		}
		if out[0].Value != 6 || out[1].Value != 14 {
			t.Errorf("sums = %v, %v", out[0].Value, out[1].Value)
		}
	})

	t.Run("min and max", func(t *testing.T) {
		low, err := DownsampleRows(input, rule(DownsampleMin))
		if err != nil {
			t.Fatalf("downsample: %v", err)
		}
		hi, err := DownsampleRows(input, rule(DownsampleMax))
		if err != nil {
			t.Fatalf("downsample: %v", err)
		}
		if low[0].Value != 1 || low[1].Value != 4 {
			t.Errorf("mins = %v, %v", low[0].Value, low[1].Value)
		}
		if hi[0].Value != 3 || hi[1].Value != 10 {
			t.Errorf("maxes = %v, %v", hi[0].Value, hi[1].Value)
		}
	})

	t.Run("count skips stale samples", func(t *testing.T) {
		out, err := DownsampleRows(input, rule(DownsampleCount))
		if err != nil {
			t.Fatalf("downsample: %v", err)
		}
		if out[0].Value != 3 || out[1].Value != 2 {
			t.Errorf("counts = %v, %v", out[0].Value, out[1].Value)
		}
	})

	t.Run("all stale yields nothing", func(t *testing.T) {
		out, err := DownsampleRows([]Row{{TimestampMs: 0, Value: math.NaN()}}, rule(DownsampleAvg))
		if err != nil {
			t.Fatalf("downsample: %v", err)
		}
		if len(out) != 0 {
			t.Errorf("got %d buckets, want 0", len(out))
		}
	})

	t.Run("empty input", func(t *testing.T) {
		out, err := DownsampleRows(nil, rule(DownsampleAvg))
		if err != nil {
			t.Fatalf("downsample: %v", err)
		}
		if len(out) != 0 {
			t.Errorf("got %d buckets, want 0", len(out))
		}
	})

	t.Run("rejects invalid rule", func(t *testing.T) {
		if _, err := DownsampleRows(input, DownsampleRule{}); err == nil {
			t.Error("expected validation error")
		}
	})
}
