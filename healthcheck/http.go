package healthcheck

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-memory/memory"
)

// HTTP checks that a request to URL answers 2xx. Method defaults to GET;
// Body, when set, is sent as JSON.
type HTTP struct {
	URL    string
	Method string
	Body   []byte
	Client *http.Client
}

// NewHTTP creates a checker for url.
func NewHTTP(url string) *HTTP {
	return &HTTP{URL: url, Client: &http.Client{Timeout: 5 * time.Second}}
}

// HealthCheck issues the request.
func (h *HTTP) HealthCheck(ctx context.Context) error {
	method := h.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if h.Body != nil {
		body = bytes.NewReader(h.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, body)
	if err != nil {
		return goerr.Wrap(err, "failed to build health request", goerr.V("url", h.URL))
	}
	if h.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return goerr.Wrap(err, "health endpoint unreachable", goerr.V("url", h.URL), goerr.T(memory.ErrTagStoreUnavailable))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return goerr.New("health endpoint not ok",
			goerr.V("url", h.URL), goerr.V("method", method), goerr.V("status", resp.StatusCode), goerr.T(memory.ErrTagStoreUnavailable))
	}
	return nil
}

var _ memory.HealthChecker = (*HTTP)(nil)
