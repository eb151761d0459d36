package federation

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Trace propagation headers sent with every federated sub-query.
const (
	headerQueryID     = "X-Chronicle-Query-Id"
	headerTraceID     = "X-Chronicle-Trace-Id"
	headerSpanID      = "X-Chronicle-Span-Id"
	headerSubmittedAt = "X-Chronicle-Submitted-At"
)

// Endpoint is the dispatch target of one sub-query.
type Endpoint struct {
	Name        string
	URL         string
	BearerToken string
}

// rawResponse is a received body tagged with the channel it arrived on.
// Non-2xx responses arrive on the error channel.
type rawResponse struct {
	statusCode int
	body       []byte
	errChannel bool
}

// DispatcherConfig configures the remote dispatcher.
type DispatcherConfig struct {
	// DefaultTimeout bounds a call when the caller passes no time budget.
	DefaultTimeout time.Duration `json:"default_timeout" yaml:"default_timeout"`
	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// DefaultDispatcherConfig returns the default dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		DefaultTimeout: 30 * time.Second,
		MaxBodyBytes:   64 << 20,
	}
}

// Dispatcher issues one federated sub-query per call over HTTP POST. It
// performs no retries; any backoff policy belongs to the caller.
type Dispatcher struct {
	config DispatcherConfig
	client HTTPDoer
}

// NewDispatcher creates a dispatcher. A nil client defaults to a plain
// http.Client; the per-call time budget governs the deadline.
func NewDispatcher(config DispatcherConfig, client HTTPDoer) *Dispatcher {
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultDispatcherConfig().DefaultTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultDispatcherConfig().MaxBodyBytes
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Dispatcher{config: config, client: client}
}

// Dispatch posts the query text to the endpoint and returns the raw body
// tagged with its channel. Only the query parameter is sent; the time
// window stays local for output-range computation. Transport failures
// surface as errors for the caller to convert into terminal results.
func (d *Dispatcher) Dispatch(ctx context.Context, qc *QueryContext, ep Endpoint, timeBudget time.Duration) (*rawResponse, error) {
	if timeBudget <= 0 {
		timeBudget = d.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeBudget)
	defer cancel()

	form := url.Values{}
	form.Set("query", qc.Query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(headerQueryID, qc.QueryID)
	if qc.TraceID != "" {
		req.Header.Set(headerTraceID, qc.TraceID)
	}
	if qc.SpanID != "" {
		req.Header.Set(headerSpanID, qc.SpanID)
	}
	if !qc.SubmittedAt.IsZero() {
		req.Header.Set(headerSubmittedAt, strconv.FormatInt(qc.SubmittedAt.UnixMilli(), 10))
	}
	if ep.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+ep.BearerToken)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.config.MaxBodyBytes))
	if err != nil {
		return nil, err
	}

	return &rawResponse{
		statusCode: resp.StatusCode,
		body:       body,
		errChannel: resp.StatusCode < 200 || resp.StatusCode > 299,
	}, nil
}
