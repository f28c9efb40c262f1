package fetch

import "testing"

// TestErrorCodeNames pins the stable names surfaced in result documents.
func TestErrorCodeNames(t *testing.T) {
	t.Parallel()

	cases := map[ErrorCode]string{
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
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("code %d: got %q, want %q", int(code), got, want)
		}
	}
	if got := ErrorCode(999).String(); got != "ERR_UNKNOWN" {
		t.Errorf("unknown code: got %q", got)
	}
}
