package fetch

import "strings"

// NormalizeURL repairs malformed scheme/host strings produced by string
// concatenation upstream, which otherwise reach the transport as literal
// hostnames and fail resolution. Applied in order:
//
//  1. "https:/host" (single slash) gains the missing slash;
//  2. "https:///host" (three or more slashes) collapses to two;
//  3. "https://:host" drops the stray leading colon on the host.
//
// A syntactically well-formed scheme://host string is returned unchanged,
// as is anything that does not start with an http or https scheme.
func NormalizeURL(raw string) string {
	for _, scheme := range []string{"https", "http"} {
		prefix := scheme + ":/"
		if !strings.HasPrefix(raw, prefix) {
			continue
		}
		rest := raw[len(scheme)+1:]
		slashes := 0
		for slashes < len(rest) && rest[slashes] == '/' {
			slashes++
		}
		host := rest[slashes:]
		host = strings.TrimPrefix(host, ":")
		return scheme + "://" + host
	}
	return raw
}
