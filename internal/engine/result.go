package engine

import (
	"time"

	"github.com/tinwell/asyncfetch/internal/fetch"
)

// buildResult maps a finished buffered job and its transport outcome into
// the canonical result document.
func buildResult(j *job, out fetch.Outcome, duration time.Duration) fetch.Result {
	acc := j.buffered

	// Last value wins per name when flattening the ordered pairs.
	headers := make(map[string]string, len(acc.Headers()))
	for _, h := range acc.Headers() {
		headers[h.Name] = h.Value
	}

	result := fetch.Result{
		URL:              j.url,
		Method:           j.method,
		Status:           out.StatusCode,
		OK:               out.Code == fetch.CodeOK && out.StatusCode >= 200 && out.StatusCode < 400,
		DurationMS:       duration.Milliseconds(),
		Body:             acc.Body(),
		BodyTruncated:    acc.BodyTruncated(),
		HeadersTruncated: acc.HeadersTruncated(),
		Headers:          headers,
	}
	if out.Code != fetch.CodeOK {
		result.Err = &fetch.ResultError{
			Code:    int(out.Code),
			Message: out.Code.String(),
		}
	}
	return result
}

// errorResult synthesizes a result-shaped error for paths where no job
// ever ran: precondition failures, rejected submissions, wait timeouts.
func errorResult(url, method string, code fetch.ErrorCode) fetch.Result {
	return fetch.Result{
		URL:     url,
		Method:  method,
		Headers: map[string]string{},
		Err: &fetch.ResultError{
			Code:    int(code),
			Message: code.String(),
		},
	}
}
