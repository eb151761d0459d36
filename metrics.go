package federation

import (
	"sync/atomic"
	"time"
)

// ExecMetrics counts federated execution outcomes. All methods are safe for
// concurrent use; counters only ever increase except InFlight.
type ExecMetrics struct {
	dispatched    atomic.Int64
	succeeded     atomic.Int64
	failed        atomic.Int64
	retried       atomic.Int64
	rejected      atomic.Int64
	breakerOpen   atomic.Int64
	partial       atomic.Int64
	inFlight      atomic.Int64
	rowsReturned  atomic.Int64
	bytesReturned atomic.Int64
	execMillis    atomic.Int64

	failedByKind [errorKindCount]atomic.Int64
}

// errorKindCount bounds the per-kind failure counters; it must track the
// ErrorKind enum.
const errorKindCount = int(ErrorKindMalformed) + 1

// NewExecMetrics creates an empty metrics set.
func NewExecMetrics() *ExecMetrics {
	return &ExecMetrics{}
}

// RecordDispatch accounts the start of one execution attempt chain.
func (m *ExecMetrics) RecordDispatch() {
	m.dispatched.Add(1)
	m.inFlight.Add(1)
}

// RecordResult accounts a terminal result and releases the in-flight slot.
func (m *ExecMetrics) RecordResult(res *FederatedResult, elapsed time.Duration) {
	m.inFlight.Add(-1)
	m.execMillis.Add(elapsed.Milliseconds())
	if res.Ok() {
		m.succeeded.Add(1)
		if res.Partial {
			m.partial.Add(1)
		}
		for _, v := range res.Vectors {
			m.rowsReturned.Add(int64(v.Rows))
			m.bytesReturned.Add(int64(v.SizeBytes))
		}
		return
	}
	m.failed.Add(1)
	if res.Err != nil {
		kind := int(res.Err.Kind)
		if kind >= 0 && kind < errorKindCount {
			m.failedByKind[kind].Add(1)
		}
	}
}

// RecordRetry accounts one retry beyond the first attempt.
func (m *ExecMetrics) RecordRetry() {
	m.retried.Add(1)
}

// RecordRejected accounts an execution refused before dispatch, either by
// the concurrency limit or an open circuit breaker.
func (m *ExecMetrics) RecordRejected() {
	m.rejected.Add(1)
}

// RecordBreakerOpen accounts a circuit breaker transition to open.
func (m *ExecMetrics) RecordBreakerOpen() {
	m.breakerOpen.Add(1)
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Dispatched    int64 `json:"dispatched"`
	Succeeded     int64 `json:"succeeded"`
	Failed        int64 `json:"failed"`
	Retried       int64 `json:"retried"`
	Rejected      int64 `json:"rejected"`
	BreakerOpen   int64 `json:"breaker_open"`
	Partial       int64 `json:"partial"`
	InFlight      int64 `json:"in_flight"`
	RowsReturned  int64 `json:"rows_returned"`
	BytesReturned int64 `json:"bytes_returned"`
	ExecMillis    int64 `json:"exec_millis"`

	FailedByKind map[string]int64 `json:"failed_by_kind,omitempty"`
}

// Snapshot copies the current counter values.
func (m *ExecMetrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Dispatched:    m.dispatched.Load(),
		Succeeded:     m.succeeded.Load(),
		Failed:        m.failed.Load(),
		Retried:       m.retried.Load(),
		Rejected:      m.rejected.Load(),
		BreakerOpen:   m.breakerOpen.Load(),
		Partial:       m.partial.Load(),
		InFlight:      m.inFlight.Load(),
		RowsReturned:  m.rowsReturned.Load(),
		BytesReturned: m.bytesReturned.Load(),
		ExecMillis:    m.execMillis.Load(),
	}
	for kind := 0; kind < errorKindCount; kind++ {
		n := m.failedByKind[kind].Load()
		if n == 0 {
			continue
		}
		if snap.FailedByKind == nil {
			snap.FailedByKind = make(map[string]int64)
		}
		snap.FailedByKind[errorKindName(ErrorKind(kind))] = n
	}
	return snap
}

func errorKindName(kind ErrorKind) string {
	switch kind {
	case ErrorKindTransport:
		return "transport"
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindRemote:
		return "remote"
	case ErrorKindDecode:
		return "decode"
	case ErrorKindMalformed:
		return "malformed"
	}
	return "unknown"
}
