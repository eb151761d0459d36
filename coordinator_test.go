package federation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const coordinatorSuccessBody = `{
	"status": "success",
	"data": {"result": [
		{"metric": {"__name__": "up", "job": "api"}, "values": [[100, "1"], [115, "0"]]}
	]},
	"queryStats": {"seriesFetched": 1, "samplesProcessed": 2}
}`

func coordinatorQC() *QueryContext {
	return NewQueryContext("up", TimeWindow{StartSec: 100, StepSec: 15, EndSec: 130})
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func newTestCoordinator(t *testing.T, cfg CoordinatorConfig, endpoints map[string]string) *Coordinator {
	t.Helper()
	catalog := NewCatalog(CatalogConfig{}, nil)
	for name, url := range endpoints {
		if err := catalog.Add(name, Endpoint{URL: url}, 0); err != nil {
			t.Fatalf("add partition %s: %v", name, err)
		}
	}
	return NewCoordinator(cfg, catalog, nil)
}

func TestCoordinatorExecuteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(coordinatorSuccessBody))
	}))
	defer server.Close()

	co := newTestCoordinator(t, CoordinatorConfig{Retry: fastRetry(1)}, map[string]string{"shard-a": server.URL})

	res := co.Execute(context.Background(), "shard-a", coordinatorQC(), time.Second)
	if !res.Ok() {
		t.Fatalf("execute failed: %v", res.Err)
	}
	if len(res.Vectors) != 1 || res.Vectors[0].Rows != 2 {
		t.Errorf("unexpected vectors %+v", res.Vectors)
	}
	if res.Stats.SeriesFetched != 1 {
		t.Errorf("stats not forwarded: %+v", res.Stats)
	}

	snap := co.Metrics().Snapshot()
	if snap.Dispatched != 1 || snap.Succeeded != 1 {
		t.Errorf("metrics = %+v, want one dispatched and succeeded", snap)
	}
}

func TestCoordinatorUnknownPartition(t *testing.T) {
	co := newTestCoordinator(t, CoordinatorConfig{}, nil)

	res := co.Execute(context.Background(), "nowhere", coordinatorQC(), time.Second)
	if res.Ok() {
		t.Fatal("expected error result for unknown partition")
	}
	if !errors.Is(res.Err, ErrPartitionNotFound) {
		t.Errorf("expected ErrPartitionNotFound, got %v", res.Err)
	}
}

func TestCoordinatorRejectsWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(coordinatorSuccessBody))
	}))
	defer server.Close()

	co := newTestCoordinator(t, CoordinatorConfig{
		MaxConcurrent: 1,
		Retry:         fastRetry(1),
	}, map[string]string{"shard-a": server.URL})

	first := make(chan *FederatedResult, 1)
	go func() {
		first <- co.Execute(context.Background(), "shard-a", coordinatorQC(), 5*time.Second)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for co.Metrics().Snapshot().InFlight == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first execution never became in-flight")
		}
		time.Sleep(2 * time.Millisecond)
	}

	second := co.Execute(context.Background(), "shard-a", coordinatorQC(), time.Second)
	if second.Ok() {
		t.Fatal("expected rejection while saturated")
	}
	if !errors.Is(second.Err, ErrTooManyInflight) {
		t.Errorf("expected ErrTooManyInflight, got %v", second.Err)
	}
	if got := co.Metrics().Snapshot().Rejected; got != 1 {
		t.Errorf("rejected = %d, want 1", got)
	}

	close(release)
	if res := <-first; !res.Ok() {
		t.Errorf("first execution failed: %v", res.Err)
	}
}

func TestCoordinatorRetriesRetryableRemote(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","errorType":"unavailable","error":"shard overloaded"}`))
			return
		}
		w.Write([]byte(coordinatorSuccessBody))
	}))
	defer server.Close()

	co := newTestCoordinator(t, CoordinatorConfig{Retry: fastRetry(3)}, map[string]string{"shard-a": server.URL})

	res := co.Execute(context.Background(), "shard-a", coordinatorQC(), time.Second)
	if !res.Ok() {
		t.Fatalf("expected success after retry, got %v", res.Err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("remote saw %d calls, want 2", got)
	}
	if got := co.Metrics().Snapshot().Retried; got != 1 {
		t.Errorf("retried = %d, want 1", got)
	}
}

func TestCoordinatorDoesNotRetryBadQuery(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"status":"error","errorType":"bad_data","error":"parse error"}`))
	}))
	defer server.Close()

	co := newTestCoordinator(t, CoordinatorConfig{Retry: fastRetry(3)}, map[string]string{"shard-a": server.URL})

	res := co.Execute(context.Background(), "shard-a", coordinatorQC(), time.Second)
	if res.Ok() {
		t.Fatal("expected error result")
	}
	if res.Err.Kind != ErrorKindRemote || res.Err.ErrorType != "bad_data" {
		t.Errorf("unexpected error %+v", res.Err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("remote saw %d calls, want 1", got)
	}
}

func TestCoordinatorBreakerOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	co := newTestCoordinator(t, CoordinatorConfig{
		Retry:               fastRetry(1),
		BreakerFailures:     2,
		BreakerResetTimeout: time.Minute,
	}, map[string]string{"shard-a": url})

	for i := 0; i < 2; i++ {
		res := co.Execute(context.Background(), "shard-a", coordinatorQC(), time.Second)
		if res.Ok() {
			t.Fatalf("execution %d should fail", i)
		}
		if res.Err.Kind != ErrorKindTransport {
			t.Fatalf("execution %d kind = %v, want transport", i, res.Err.Kind)
		}
	}

	res := co.Execute(context.Background(), "shard-a", coordinatorQC(), time.Second)
	if res.Ok() {
		t.Fatal("expected circuit-open result")
	}
	if !errors.Is(res.Err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen cause, got %v", res.Err)
	}
	if got := co.Metrics().Snapshot().BreakerOpen; got != 1 {
		t.Errorf("breaker open count = %d, want 1", got)
	}
}

func TestCoordinatorExecuteAll(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(coordinatorSuccessBody))
	}))
	defer up.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"status":"error","errorType":"bad_data","error":"parse error"}`))
	}))
	defer failing.Close()

	co := newTestCoordinator(t, CoordinatorConfig{Retry: fastRetry(1)}, map[string]string{
		"good": up.URL,
		"bad":  failing.URL,
	})

	results := co.ExecuteAll(context.Background(), coordinatorQC(), time.Second)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results["good"].Ok() {
		t.Errorf("good partition failed: %v", results["good"].Err)
	}
	if results["bad"].Ok() {
		t.Error("bad partition should fail")
	}

	stats, warnings, partial := MergeResults(results)
	if !partial {
		t.Error("merged result should be partial when a partition fails")
	}
	if stats.SeriesFetched != 1 {
		t.Errorf("merged series fetched = %d, want 1", stats.SeriesFetched)
	}
	found := false
	for _, msg := range warnings.Messages {
		if strings.Contains(msg, "bad") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings should name the failed partition: %v", warnings.Messages)
	}
}

type captureSink struct {
	mu      sync.Mutex
	entries []*FederatedResult
}

func (s *captureSink) Record(_ context.Context, _ *QueryContext, res *FederatedResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, res)
	return nil
}

func TestCoordinatorSinkReceivesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(coordinatorSuccessBody))
	}))
	defer server.Close()

	co := newTestCoordinator(t, CoordinatorConfig{Retry: fastRetry(1)}, map[string]string{"shard-a": server.URL})
	sink := &captureSink{}
	co.AttachSink(sink)

	res := co.Executor("shard-a").Execute(context.Background(), coordinatorQC(), time.Second)
	if !res.Ok() {
		t.Fatalf("execute failed: %v", res.Err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.entries) != 1 {
		t.Fatalf("sink saw %d results, want 1", len(sink.entries))
	}
	if sink.entries[0] != res {
		t.Error("sink should receive the terminal result")
	}
}
