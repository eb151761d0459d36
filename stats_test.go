package federation

import (
	"encoding/json"
	"testing"
)

func TestQueryStatsMerge(t *testing.T) {
	s := QueryStats{SeriesFetched: 1, SamplesProcessed: 10, BytesProcessed: 100, ExecDurationMs: 40}
	s.Merge(QueryStats{SeriesFetched: 2, SamplesProcessed: 5, BytesProcessed: 50, ExecDurationMs: 25})

	if s.SeriesFetched != 3 || s.SamplesProcessed != 15 || s.BytesProcessed != 150 {
		t.Errorf("volume counters = %+v", s)
	}
	if s.ExecDurationMs != 40 {
		t.Errorf("exec duration = %d, want max 40", s.ExecDurationMs)
	}

	s.Merge(QueryStats{ExecDurationMs: 90})
	if s.ExecDurationMs != 90 {
		t.Errorf("exec duration = %d, want 90 after slower hop", s.ExecDurationMs)
	}
}

func TestQueryStatsRecordSerialized(t *testing.T) {
	var s QueryStats
	s.RecordSerialized(12, 340)
	s.RecordSerialized(3, 60)

	if s.SeriesFetched != 2 || s.SamplesProcessed != 15 || s.BytesProcessed != 400 {
		t.Errorf("stats = %+v", s)
	}
	if s.ExecDurationMs != 0 {
		t.Error("serialization should not touch execution time")
	}
}

func TestQueryStatsIsZero(t *testing.T) {
	var s QueryStats
	if !s.IsZero() {
		t.Error("zero value should report zero")
	}
	s.SeriesFetched = 1
	if s.IsZero() {
		t.Error("touched stats should not report zero")
	}
}

func TestQueryStatsWireCasing(t *testing.T) {
	data, err := json.Marshal(QueryStats{SeriesFetched: 1, ExecDurationMs: 7})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"seriesFetched":1,"execDurationMs":7}`
	if string(data) != want {
		t.Errorf("wire form = %s, want %s", data, want)
	}
}

func TestQueryWarnings(t *testing.T) {
	var w QueryWarnings
	if !w.Empty() {
		t.Error("zero value should be empty")
	}

	w.Add("partition cold lagging")
	w.Merge(QueryWarnings{Messages: []string{"downsampled to 5m"}})

	if w.Empty() {
		t.Error("warnings recorded but Empty reports true")
	}
	if len(w.Messages) != 2 || w.Messages[1] != "downsampled to 5m" {
		t.Errorf("messages = %v", w.Messages)
	}
}
