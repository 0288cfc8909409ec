package models

import (
	"io"
	"net/http"
	"strings"
	"time"
)

// newHTTPClient returns a client whose transport turns gateway and proxy
// failures into *ErrModelUnavailable, so routing and handlers can tell an
// unreachable provider from a bad answer.
func newHTTPClient(provider string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &guardTransport{inner: http.DefaultTransport, provider: provider},
	}
}

// guardTransport rejects transport errors, HTTP errors and non-JSON bodies
// (e.g. "no available server" from a reverse proxy).
type guardTransport struct {
	inner    http.RoundTripper
	provider string
}

func (t *guardTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, &ErrModelUnavailable{Provider: t.provider, Cause: err}
	}

	if resp.StatusCode >= 400 || !acceptedContentType(resp.Header.Get("Content-Type")) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &ErrModelUnavailable{
			Provider: t.provider,
			Status:   resp.StatusCode,
			Body:     strings.TrimSpace(string(body)),
		}
	}
	return resp, nil
}

// acceptedContentType allows JSON, NDJSON (ollama) and SSE (streaming APIs).
// An absent header is accepted.
func acceptedContentType(ct string) bool {
	if ct == "" {
		return true
	}
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "json") || strings.Contains(ct, "event-stream")
}
