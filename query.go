package federation

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// TimeWindow is the requested query window in seconds. The window is carried
// for output-range computation and is not re-sent to the remote.
type TimeWindow struct {
	StartSec int64 `json:"start_sec" yaml:"start_sec"`
	StepSec  int64 `json:"step_sec" yaml:"step_sec"`
	EndSec   int64 `json:"end_sec" yaml:"end_sec"`
}

// QueryContext identifies one federated query. It is created once by the
// caller and read by every downstream stage; nothing in this package
// mutates it.
type QueryContext struct {
	QueryID     string
	SubmittedAt time.Time
	TraceID     string
	SpanID      string
	Query       string
	Window      TimeWindow
}

// NewQueryContext creates a query context for the given query text and
// window, generating a query id and setting the submission time.
func NewQueryContext(query string, window TimeWindow) *QueryContext {
	return &QueryContext{
		QueryID:     generateQueryID(),
		SubmittedAt: time.Now(),
		Query:       query,
		Window:      window,
	}
}

// WithTrace returns a copy of the context carrying the given trace identifiers.
func (qc *QueryContext) WithTrace(traceID, spanID string) *QueryContext {
	out := *qc
	out.TraceID = traceID
	out.SpanID = spanID
	return &out
}

func generateQueryID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
