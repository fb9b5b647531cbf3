// capability_web.go: the web:: capability namespace.
//
// The namespace the blockchain target forbids. Responses are size- and
// time-limited so a script cannot pin the host on a slow endpoint.

package serval

import (
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"
)

const (
	webTimeout     = 15 * time.Second
	webMaxBodySize = 4 << 20 // 4 MiB
)

// registerWebCapabilities installs web::{http_get, url_encode}.
func registerWebCapabilities(t *CapabilityTable) {
	client := &http.Client{Timeout: webTimeout}

	// web::http_get(url) -> { status: int, body: string }
	t.Register("web", "http_get", func(args []Value) (Value, error) {
		url, err := oneStringArg("web::http_get", args)
		if err != nil {
			return NullValue, err
		}
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return NullValue, fmt.Errorf("web::http_get requires an absolute http(s) URL")
		}
		resp, err := client.Get(url)
		if err != nil {
			return NullValue, fmt.Errorf("GET %s: %w", url, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, webMaxBodySize))
		if err != nil {
			return NullValue, fmt.Errorf("GET %s: read body: %w", url, err)
		}
		return MapValue(map[string]Value{
			"status": IntValue(int64(resp.StatusCode)),
			"body":   StringValue(string(body)),
		}), nil
	})

	// web::url_encode(s) -> percent-encoded query component
	t.Register("web", "url_encode", func(args []Value) (Value, error) {
		s, err := oneStringArg("web::url_encode", args)
		if err != nil {
			return NullValue, err
		}
		return StringValue(neturl.QueryEscape(s)), nil
	})
}
