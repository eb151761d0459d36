package federation

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestWireSampleUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantTS  int64
		wantErr bool
	}{
		{"plain pair", `[1000, 1.5]`, 1000, false},
		{"integral float timestamp", `[1000.0, 1.5]`, 1000, false},
		{"exponent timestamp", `[1e3, 1.5]`, 1000, false},
		{"string value", `[1000, "1.5"]`, 1000, false},
		{"histogram payload", `[5, {"0.5": 3, "+Inf": 10}]`, 5, false},
		{"aggregate triple", `[1000, 2.5, 10]`, 1000, false},
		{"aggregate quad", `[1000, 0.5, 2.5, 10]`, 1000, false},
		{"timestamp only", `[1000]`, 1000, false},
		{"fractional timestamp", `[1000.5, 1.5]`, 0, true},
		{"string timestamp", `["1000", 1.5]`, 0, true},
		{"empty array", `[]`, 0, true},
		{"not an array", `{"a": 1}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s WireSample
			err := json.Unmarshal([]byte(tt.input), &s)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tt.input)
				}
				if !errors.Is(err, ErrMalformedSample) {
					t.Errorf("error %v does not match ErrMalformedSample", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if s.TimestampSec != tt.wantTS {
				t.Errorf("timestamp = %d, want %d", s.TimestampSec, tt.wantTS)
			}
		})
	}
}

func TestWireSampleFieldFloat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantNaN bool
		wantErr bool
	}{
		{"number", `[1, 2.5]`, 2.5, false, false},
		{"integer number", `[1, 3]`, 3, false, false},
		{"numeric string", `[1, "2.5"]`, 2.5, false, false},
		{"NaN string", `[1, "NaN"]`, 0, true, false},
		{"+Inf string", `[1, "+Inf"]`, math.Inf(1), false, false},
		{"non-numeric string", `[1, "abc"]`, 0, false, true},
		{"object payload", `[1, {"a": 1}]`, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s WireSample
			if err := json.Unmarshal([]byte(tt.input), &s); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			got, err := s.FieldFloat(0)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("FieldFloat failed: %v", err)
			}
			if tt.wantNaN {
				if !math.IsNaN(got) {
					t.Errorf("got %f, want NaN", got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}

func TestWireSampleFieldLong(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"integer", `[1, 1.0, 10]`, 10, false},
		{"integral float", `[1, 1.0, 10.0]`, 10, false},
		{"integral string", `[1, 1.0, "10"]`, 10, false},
		{"large count", `[1, 1.0, 9007199254740993]`, 9007199254740993, false},
		{"fractional", `[1, 1.0, 10.5]`, 0, true},
		{"non-numeric", `[1, 1.0, "ten"]`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s WireSample
			if err := json.Unmarshal([]byte(tt.input), &s); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			got, err := s.FieldLong(1)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("FieldLong failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWireSampleIsHistogram(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"bucket map", `[5, {"0.5": 3}]`, true},
		{"plain value", `[5, 1.5]`, false},
		{"string value", `[5, "1.5"]`, false},
		{"aggregate arity", `[5, 1.5, 10]`, false},
		{"timestamp only", `[5]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s WireSample
			if err := json.Unmarshal([]byte(tt.input), &s); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if got := s.IsHistogram(); got != tt.want {
				t.Errorf("IsHistogram() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWireSampleBucketMap(t *testing.T) {
	t.Run("decodes counts", func(t *testing.T) {
		var s WireSample
		if err := json.Unmarshal([]byte(`[5, {"0.5": 3, "+INF": 10}]`), &s); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		m, err := s.BucketMap()
		if err != nil {
			t.Fatalf("BucketMap failed: %v", err)
		}
		if m["0.5"] != 3 || m["+INF"] != 10 {
			t.Errorf("unexpected map: %v", m)
		}
	})

	t.Run("rejects non-numeric counts", func(t *testing.T) {
		var s WireSample
		if err := json.Unmarshal([]byte(`[5, {"0.5": "three"}]`), &s); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if _, err := s.BucketMap(); err == nil {
			t.Fatal("expected error for string count")
		}
	})
}

func TestWireSampleMarshalRoundTrip(t *testing.T) {
	inputs := []string{
		`[1000,1.5]`,
		`[5,{"0.5":3,"+Inf":10}]`,
		`[1000,2.5,10]`,
	}
	for _, input := range inputs {
		var s WireSample
		if err := json.Unmarshal([]byte(input), &s); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		out, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		if string(out) != input {
			t.Errorf("round trip: got %s, want %s", out, input)
		}
	}
}

func TestRemoteSeriesSamples(t *testing.T) {
	t.Run("values list wins", func(t *testing.T) {
		var s RemoteSeries
		payload := `{"metric": {"__name__": "up"}, "value": [1, 1.0], "values": [[2, 2.0], [3, 3.0]]}`
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		samples := s.Samples()
		if len(samples) != 2 || samples[0].TimestampSec != 2 {
			t.Errorf("unexpected samples: %+v", samples)
		}
	})

	t.Run("falls back to single value", func(t *testing.T) {
		var s RemoteSeries
		payload := `{"metric": {"__name__": "up"}, "value": [1, 1.0]}`
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		samples := s.Samples()
		if len(samples) != 1 || samples[0].TimestampSec != 1 {
			t.Errorf("unexpected samples: %+v", samples)
		}
	})

	t.Run("nil when empty", func(t *testing.T) {
		var s RemoteSeries
		if err := json.Unmarshal([]byte(`{"metric": {}}`), &s); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if s.Samples() != nil {
			t.Errorf("expected nil samples")
		}
	})
}

func TestAggregateResponseFieldName(t *testing.T) {
	payload := `{"function": "avg", "aggregateSampl": [[1000, 2.5, 10]]}`
	var agg AggregateResponse
	if err := json.Unmarshal([]byte(payload), &agg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if agg.Function != "avg" {
		t.Errorf("function = %q, want avg", agg.Function)
	}
	if len(agg.AggregateSamples) != 1 {
		t.Fatalf("expected 1 aggregate sample, got %d", len(agg.AggregateSamples))
	}

	out, err := json.Marshal(agg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"function":"avg","aggregateSampl":[[1000,2.5,10]]}`
	if string(out) != want {
		t.Errorf("marshal: got %s, want %s", out, want)
	}
}
