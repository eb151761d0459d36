package federation

import (
	"encoding/json"
)

// Remote status strings.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// classifyResponse turns a raw remote response into a final result,
// dispatching on the channel the dispatcher tagged it with.
func classifyResponse(raw *rawResponse, window TimeWindow) *FederatedResult {
	if raw.errChannel {
		return classifyError(raw.statusCode, raw.body)
	}
	return classifySuccess(raw.statusCode, raw.body, window)
}

// classifyError decodes an error-channel body into a terminal Error result.
// A decodable structured body carries the remote's status fields and stats
// verbatim; an undecodable body carries the decode failure and empty stats,
// since the remote's stats are unavailable.
func classifyError(statusCode int, body []byte) *FederatedResult {
	var eb RemoteErrorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		re := newRemoteError(ErrorKindDecode, "decoding remote error body", err)
		re.StatusCode = statusCode
		return errorResult(re, QueryStats{})
	}
	re := newRemoteReportedError(statusCode, eb.Status, eb.ErrorType, eb.Error)
	return errorResult(re, remoteStats(eb.QueryStats))
}

// classifySuccess decodes a success-channel body and assembles it. The
// remote signals failure through the body's own status field as well as the
// HTTP status, so a success-channel body declaring status "error" is
// reclassified onto the error path.
func classifySuccess(statusCode int, body []byte, window TimeWindow) *FederatedResult {
	var resp RemoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		re := newRemoteError(ErrorKindDecode, "decoding remote response body", err)
		re.StatusCode = statusCode
		return errorResult(re, QueryStats{})
	}
	if resp.Status == statusError {
		return classifyError(statusCode, body)
	}
	return assembleSuccess(&resp, window)
}
