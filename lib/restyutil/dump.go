// Package restyutil writes the http exchanges of a resty client somewhere
// they can be read after the fact, for debugging scrapers against live pages.
package restyutil

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// Output receives one formatted exchange per call.
type Output interface {
	Write(id string, contents string)
}

// MaxBodyBytes is how much of a response body ends up in a dump, definition
// tables run into the tens of megabytes.
const MaxBodyBytes = 64 * 1024

var redactedHeaders = []string{"Authorization", "X-Api-Key", "Cookie", "Set-Cookie"}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var out strings.Builder
	for _, k := range keys {
		redact := slices.Contains(redactedHeaders, http.CanonicalHeaderKey(k))
		for _, v := range headers[k] {
			if redact {
				v = "<redacted>"
			}
			fmt.Fprintf(&out, "%s: %s\n", k, v)
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func formatBody(body []byte) string {
	if len(body) <= MaxBodyBytes {
		return string(body)
	}
	return fmt.Sprintf("%s\n\n[truncated %d bytes]", body[:MaxBodyBytes], len(body)-MaxBodyBytes)
}

// 1: request method
// 2: request url
// 3: request headers
// 4: response status
// 5: response headers
// 6: response body
const exchangeTemplate = `---- REQUEST ----

%s %s

%s

---- RESPONSE ----

%s

%s

%s`

func formatExchange(res *resty.Response) string {
	requestHeaders := res.Request.Header
	if res.Request.RawRequest != nil {
		requestHeaders = res.Request.RawRequest.Header
	}
	return fmt.Sprintf(
		exchangeTemplate,
		res.Request.Method, res.Request.URL,
		formatHeaders(requestHeaders),
		res.Status(),
		formatHeaders(res.Header()),
		formatBody(res.Body()),
	)
}

// Dump writes every response the client receives to output as
// "<prefix>-<n>.txt". A nil output leaves the client untouched.
func Dump(client *resty.Client, prefix string, output Output) {
	if output == nil {
		return
	}
	var counter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := fmt.Sprintf("%s-%04d.txt", prefix, atomic.AddUint64(&counter, 1))
		output.Write(id, formatExchange(res))
		return nil
	})
}
