package federation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Wire types for the remote query protocol. Field names and casing mirror
// the remote endpoint exactly and must not be renamed.

// RemoteResponse is the success-channel payload of a remote query.
type RemoteResponse struct {
	Status        string         `json:"status,omitempty"`
	Data          RemoteData     `json:"data"`
	Partial       bool           `json:"partial,omitempty"`
	Message       string         `json:"message,omitempty"`
	QueryStats    *QueryStats    `json:"queryStats,omitempty"`
	QueryWarnings *QueryWarnings `json:"queryWarnings,omitempty"`
}

// RemoteData holds the result list of a success payload.
type RemoteData struct {
	ResultType string         `json:"resultType,omitempty"`
	Result     []RemoteSeries `json:"result"`
}

// RemoteSeries is one series of a success payload: its metric labels plus
// either a single instant sample, a range sample list, or an aggregate
// wrapper.
type RemoteSeries struct {
	Metric            map[string]string  `json:"metric"`
	Value             *WireSample        `json:"value,omitempty"`
	Values            []WireSample       `json:"values,omitempty"`
	AggregateResponse *AggregateResponse `json:"aggregateResponse,omitempty"`
}

// Samples returns the series' ordered sample list: the values list when
// present, else the single value sample, else nil.
func (s *RemoteSeries) Samples() []WireSample {
	if len(s.Values) > 0 {
		return s.Values
	}
	if s.Value != nil {
		return []WireSample{*s.Value}
	}
	return nil
}

// AggregateResponse wraps pre-aggregated samples. The aggregateSampl field
// name is the remote's spelling.
type AggregateResponse struct {
	Function         string       `json:"function,omitempty"`
	AggregateSamples []WireSample `json:"aggregateSampl"`
}

// RemoteErrorBody is the error-channel payload of a remote query.
type RemoteErrorBody struct {
	Status     string      `json:"status"`
	ErrorType  string      `json:"errorType"`
	Error      string      `json:"error"`
	QueryStats *QueryStats `json:"queryStats,omitempty"`
}

// WireSample is one loosely typed wire sample: a JSON array whose first
// element is an integral timestamp in seconds and whose remaining elements
// depend on the result shape. The payload elements stay raw until a row
// iterator interprets them.
type WireSample struct {
	TimestampSec int64
	Fields       []json.RawMessage
}

// UnmarshalJSON decodes the array form, validating the timestamp element.
func (s *WireSample) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: sample is not an array: %v", ErrMalformedSample, err)
	}
	if len(parts) == 0 {
		return fmt.Errorf("%w: empty sample array", ErrMalformedSample)
	}
	ts, err := parseWireTimestamp(parts[0])
	if err != nil {
		return err
	}
	s.TimestampSec = ts
	s.Fields = parts[1:]
	return nil
}

// MarshalJSON re-emits the array form with the payload elements verbatim.
func (s WireSample) MarshalJSON() ([]byte, error) {
	parts := make([]json.RawMessage, 0, 1+len(s.Fields))
	parts = append(parts, json.RawMessage(strconv.FormatInt(s.TimestampSec, 10)))
	parts = append(parts, s.Fields...)
	return json.Marshal(parts)
}

// Arity is the wire element count of the sample, timestamp included.
func (s *WireSample) Arity() int {
	return 1 + len(s.Fields)
}

// IsHistogram reports whether the sample payload is a bucket map.
func (s *WireSample) IsHistogram() bool {
	if len(s.Fields) != 1 {
		return false
	}
	f := bytes.TrimSpace(s.Fields[0])
	return len(f) > 0 && f[0] == '{'
}

// BucketMap decodes the sample payload as a boundary-to-count map.
func (s *WireSample) BucketMap() (map[string]float64, error) {
	if len(s.Fields) != 1 {
		return nil, fmt.Errorf("%w: histogram sample has %d payload elements", ErrMalformedSample, len(s.Fields))
	}
	var m map[string]float64
	if err := json.Unmarshal(s.Fields[0], &m); err != nil {
		return nil, fmt.Errorf("%w: bucket map: %v", ErrMalformedSample, err)
	}
	return m, nil
}

// FieldFloat interprets payload element i as a double. Numbers and numeric
// strings (including "NaN" and the infinities) are accepted.
func (s *WireSample) FieldFloat(i int) (float64, error) {
	if i >= len(s.Fields) {
		return 0, fmt.Errorf("%w: missing payload element %d", ErrMalformedSample, i)
	}
	return parseWireFloat(s.Fields[i])
}

// FieldLong interprets payload element i as a long. Integers, integral
// floats and integral numeric strings are accepted.
func (s *WireSample) FieldLong(i int) (int64, error) {
	if i >= len(s.Fields) {
		return 0, fmt.Errorf("%w: missing payload element %d", ErrMalformedSample, i)
	}
	return parseWireLong(s.Fields[i])
}

func parseWireTimestamp(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%w: timestamp %s", ErrMalformedSample, truncateRaw(raw))
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: timestamp %s", ErrMalformedSample, truncateRaw(raw))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: non-integral timestamp %s", ErrMalformedSample, truncateRaw(raw))
	}
	return int64(f), nil
}

func parseWireFloat(raw json.RawMessage) (float64, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: value %s", ErrMalformedSample, truncateRaw(raw))
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: non-numeric value %q", ErrMalformedSample, x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: value %s", ErrMalformedSample, truncateRaw(raw))
}

func parseWireLong(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	}
	f, err := parseWireFloat(raw)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: non-integral count %s", ErrMalformedSample, truncateRaw(raw))
	}
	return int64(f), nil
}

// truncateRaw keeps error messages short when the offending element is large.
func truncateRaw(raw json.RawMessage) string {
	const max = 64
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
