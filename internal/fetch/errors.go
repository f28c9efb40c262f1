package fetch

import "errors"

// ErrorCode classifies how a request ended. Codes are stable across
// releases; Message() names are the human-readable half of the result
// document's error object.
type ErrorCode int

// Transport and engine error codes.
const (
	CodeOK ErrorCode = iota
	CodeConnectionFailed
	CodeTimeout
	CodeTLSFailed
	CodeSizeExceeded
	CodeTransportFailed
	CodeInvalidURL
	CodeSubmitRejected
	CodeWaitTimeout
)

var codeNames = map[ErrorCode]string{
	CodeOK:               "OK",
	CodeConnectionFailed: "ERR_CONNECTION_FAILED",
	CodeTimeout:          "ERR_TIMEOUT",
	CodeTLSFailed:        "ERR_TLS_HANDSHAKE",
	CodeSizeExceeded:     "ERR_SIZE_EXCEEDED",
	CodeTransportFailed:  "ERR_TRANSPORT",
	CodeInvalidURL:       "ERR_INVALID_URL",
	CodeSubmitRejected:   "ERR_SUBMIT_REJECTED",
	CodeWaitTimeout:      "ERR_WAIT_TIMEOUT",
}

// String returns the stable name for the code.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "ERR_UNKNOWN"
}

// ErrSizeExceeded aborts a streaming transfer once the body limit is hit.
// Accumulators return it from OnData to signal the transport to stop.
var ErrSizeExceeded = errors.New("body size limit exceeded")
