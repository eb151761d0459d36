package federation

// QueryStats counts the data volume one query touched. For federated results
// the remote reports its own stats, which are forwarded verbatim; locally
// incurred serialization cost goes to a discarded placeholder accumulator so
// the remote's cost is never counted twice.
//
// Field names follow the wire casing of the remote endpoint.
type QueryStats struct {
	SeriesFetched    int64 `json:"seriesFetched,omitempty"`
	SamplesProcessed int64 `json:"samplesProcessed,omitempty"`
	BytesProcessed   int64 `json:"bytesProcessed,omitempty"`
	ExecDurationMs   int64 `json:"execDurationMs,omitempty"`
}

// Merge folds other into s. Volume counters add; execution time keeps the
// maximum, since merged hops overlap in wall time.
func (s *QueryStats) Merge(other QueryStats) {
	s.SeriesFetched += other.SeriesFetched
	s.SamplesProcessed += other.SamplesProcessed
	s.BytesProcessed += other.BytesProcessed
	if other.ExecDurationMs > s.ExecDurationMs {
		s.ExecDurationMs = other.ExecDurationMs
	}
}

// RecordSerialized accounts one serialized range vector.
func (s *QueryStats) RecordSerialized(rows int, bytes int) {
	s.SeriesFetched++
	s.SamplesProcessed += int64(rows)
	s.BytesProcessed += int64(bytes)
}

// IsZero reports whether no counter has been touched.
func (s QueryStats) IsZero() bool {
	return s == QueryStats{}
}

// QueryWarnings accumulates non-fatal notices attached to a result.
type QueryWarnings struct {
	Messages []string `json:"messages,omitempty"`
}

// Add appends one warning message.
func (w *QueryWarnings) Add(msg string) {
	w.Messages = append(w.Messages, msg)
}

// Merge appends all of other's messages.
func (w *QueryWarnings) Merge(other QueryWarnings) {
	w.Messages = append(w.Messages, other.Messages...)
}

// Empty reports whether no warnings have been recorded.
func (w QueryWarnings) Empty() bool {
	return len(w.Messages) == 0
}
