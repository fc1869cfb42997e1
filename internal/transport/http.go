package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"opsync/internal/domain"

	"github.com/rs/zerolog"
)

// HTTPClient implements domain.Transport over net/http with a bounded
// per-request timeout. Base URL resolution goes through the Resolver on
// every call.
type HTTPClient struct {
	client   *http.Client
	resolver *Resolver
	logger   *zerolog.Logger
}

func NewHTTPClient(resolver *Resolver, timeout time.Duration, logger *zerolog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		client:   &http.Client{Timeout: timeout},
		resolver: resolver,
		logger:   logger,
	}
}

func (c *HTTPClient) Do(ctx context.Context, method, url string, payload json.RawMessage, headers map[string]string) (*domain.Response, error) {
	full := c.resolver.Resolve(url)

	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, full, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// No response at all: dial, DNS, TLS, timeout.
		return nil, &ConnectivityError{Op: method + " " + url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectivityError{Op: method + " " + url, Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Status: resp.StatusCode, Body: respBody}
	}

	c.logger.Debug().Str("method", method).Str("url", url).Int("status", resp.StatusCode).Msg("transport call")
	return &domain.Response{Status: resp.StatusCode, Body: respBody}, nil
}

// Ping issues a GET against the configured health path. Used by the
// connectivity prober.
func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, http.MethodGet, c.resolver.HealthPath(), nil, nil)
	return err
}
