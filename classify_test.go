package federation

import (
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	t.Run("structured body forwarded verbatim", func(t *testing.T) {
		body := []byte(`{
			"status": "error",
			"errorType": "bad_data",
			"error": "parse error at char 5",
			"queryStats": {"seriesFetched": 3, "execDurationMs": 8}
		}`)
		res := classifyError(422, body)
		if res.Ok() {
			t.Fatal("expected Error result")
		}
		re := res.Err
		if re.Kind != ErrorKindRemote {
			t.Errorf("kind = %v, want remote", re.Kind)
		}
		if re.StatusCode != 422 {
			t.Errorf("status code = %d, want 422", re.StatusCode)
		}
		if re.Status != "error" || re.ErrorType != "bad_data" || re.Message != "parse error at char 5" {
			t.Errorf("remote fields not verbatim: %+v", re)
		}
		if !errors.Is(re, ErrRemoteQuery) {
			t.Errorf("error %v does not match ErrRemoteQuery", re)
		}
		if res.Stats.SeriesFetched != 3 || res.Stats.ExecDurationMs != 8 {
			t.Errorf("stats = %+v, want remote-reported", res.Stats)
		}
	})

	t.Run("undecodable body", func(t *testing.T) {
		res := classifyError(500, []byte(`<html>Bad Gateway</html>`))
		if res.Ok() {
			t.Fatal("expected Error result")
		}
		if res.Err.Kind != ErrorKindDecode {
			t.Errorf("kind = %v, want decode", res.Err.Kind)
		}
		if res.Err.StatusCode != 500 {
			t.Errorf("status code = %d, want 500", res.Err.StatusCode)
		}
		if !errors.Is(res.Err, ErrUndecodableBody) {
			t.Errorf("error %v does not match ErrUndecodableBody", res.Err)
		}
		if !res.Stats.IsZero() {
			t.Errorf("undecodable body must carry empty stats, got %+v", res.Stats)
		}
	})

	t.Run("missing stats default to zero", func(t *testing.T) {
		res := classifyError(503, []byte(`{"status": "error", "errorType": "unavailable", "error": "shutting down"}`))
		if !res.Stats.IsZero() {
			t.Errorf("stats = %+v, want zero", res.Stats)
		}
	})
}

func TestClassifySuccess(t *testing.T) {
	window := TimeWindow{StartSec: 1000, StepSec: 1, EndSec: 1001}

	t.Run("assembles result", func(t *testing.T) {
		body := []byte(`{
			"status": "success",
			"data": {"result": [{"metric": {"__name__": "up"}, "values": [[1000, 1.0], [1001, 2.0]]}]}
		}`)
		res := classifySuccess(200, body, window)
		if !res.Ok() {
			t.Fatalf("expected Ok result, got error %v", res.Err)
		}
		if len(res.Vectors) != 1 || res.Vectors[0].Rows != 2 {
			t.Errorf("vectors = %+v", res.Vectors)
		}
	})

	t.Run("empty result is never an error", func(t *testing.T) {
		res := classifySuccess(200, []byte(`{"status": "success", "data": {"result": []}}`), window)
		if !res.Ok() {
			t.Fatalf("expected Ok result, got error %v", res.Err)
		}
		if len(res.Vectors) != 0 {
			t.Errorf("got %d vectors, want 0", len(res.Vectors))
		}
	})

	t.Run("undecodable body", func(t *testing.T) {
		res := classifySuccess(200, []byte(`{"data": truncated`), window)
		if res.Ok() {
			t.Fatal("expected Error result")
		}
		if res.Err.Kind != ErrorKindDecode {
			t.Errorf("kind = %v, want decode", res.Err.Kind)
		}
		if !res.Stats.IsZero() {
			t.Errorf("stats = %+v, want zero", res.Stats)
		}
	})

	t.Run("status error reclassified onto error path", func(t *testing.T) {
		// Some remotes answer 200 with a body that still declares failure.
		body := []byte(`{"status": "error", "errorType": "timeout", "error": "deadline exceeded"}`)
		res := classifySuccess(200, body, window)
		if res.Ok() {
			t.Fatal("expected Error result")
		}
		if res.Err.Kind != ErrorKindRemote {
			t.Errorf("kind = %v, want remote", res.Err.Kind)
		}
		if res.Err.ErrorType != "timeout" || res.Err.Message != "deadline exceeded" {
			t.Errorf("remote fields not verbatim: %+v", res.Err)
		}
	})
}

func TestClassifyResponseChannelDispatch(t *testing.T) {
	window := TimeWindow{StartSec: 1, StepSec: 1, EndSec: 1}

	t.Run("error channel", func(t *testing.T) {
		raw := &rawResponse{
			statusCode: 500,
			body:       []byte(`{"status": "error", "errorType": "internal", "error": "boom"}`),
			errChannel: true,
		}
		res := classifyResponse(raw, window)
		if res.Ok() {
			t.Fatal("expected Error result")
		}
		if res.Err.ErrorType != "internal" {
			t.Errorf("errorType = %q", res.Err.ErrorType)
		}
	})

	t.Run("success channel", func(t *testing.T) {
		raw := &rawResponse{
			statusCode: 200,
			body:       []byte(`{"data": {"result": [{"metric": {}, "values": [[1, 1.0]]}]}}`),
		}
		res := classifyResponse(raw, window)
		if !res.Ok() {
			t.Fatalf("expected Ok result, got error %v", res.Err)
		}
	})
}

func TestRemoteErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *RemoteError
		want string
	}{
		{
			"remote reported",
			newRemoteReportedError(422, "error", "bad_data", "parse error"),
			"parse error (bad_data)",
		},
		{
			"with cause",
			newRemoteError(ErrorKindDecode, "decoding remote error body", errors.New("unexpected end of JSON input")),
			"decoding remote error body: unexpected end of JSON input",
		},
		{
			"plain message",
			newRemoteError(ErrorKindTransport, "remote call failed", nil),
			"remote call failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemoteErrorIs(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		sentinel error
	}{
		{ErrorKindTransport, ErrTransport},
		{ErrorKindTimeout, ErrRemoteTimeout},
		{ErrorKindRemote, ErrRemoteQuery},
		{ErrorKindDecode, ErrUndecodableBody},
	}
	for _, tt := range tests {
		re := newRemoteError(tt.kind, "x", nil)
		if !errors.Is(re, tt.sentinel) {
			t.Errorf("kind %v does not match %v", tt.kind, tt.sentinel)
		}
	}

	re := newRemoteError(ErrorKindMalformed, "x", ErrMalformedBucket)
	if !errors.Is(re, ErrMalformedBucket) {
		t.Error("cause chain broken: malformed error should unwrap to its cause")
	}
	if errors.Is(re, ErrTransport) {
		t.Error("malformed error must not match the transport sentinel")
	}
}
