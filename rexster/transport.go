package rexster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saulfrancisco-ruizacevedo/go-neomodel"
	"go.uber.org/zap"
)

// Reply is one raw HTTP reply.
type Reply struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Transport performs one request against the server root. GET params travel
// in the query string; for every other method they are the JSON body.
type Transport interface {
	Request(ctx context.Context, method, path string, params map[string]any) (*Reply, error)
}

// HTTPTransport is the net/http Transport.
type HTTPTransport struct {
	base     *url.URL
	client   *http.Client
	username string
	password string
	logger   *zap.Logger
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient replaces the HTTP client. Its timeout takes precedence
// over the configured one.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithTransportLogger sets the logger used for request tracing.
func WithTransportLogger(l *zap.Logger) TransportOption {
	return func(t *HTTPTransport) { t.logger = l }
}

// NewHTTPTransport creates a transport rooted at cfg.URI, authenticating
// with cfg.Username and cfg.Password when a username is set.
func NewHTTPTransport(cfg *neomodel.Config, opts ...TransportOption) (*HTTPTransport, error) {
	base, err := url.Parse(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("parse server uri: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server uri %q: scheme must be http or https", cfg.URI)
	}

	t := &HTTPTransport{
		base:     base,
		client:   &http.Client{Timeout: cfg.Timeout},
		username: cfg.Username,
		password: cfg.Password,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Request sends the request and reads the whole reply. Only failures to
// reach the server are errors; every HTTP status is returned as a Reply.
func (t *HTTPTransport) Request(ctx context.Context, method, path string, params map[string]any) (*Reply, error) {
	u := t.base.JoinPath(strings.Split(strings.Trim(path, "/"), "/")...)

	var body []byte
	if len(params) > 0 {
		if method == http.MethodGet {
			q := u.Query()
			for k, v := range params {
				q.Set(k, queryValue(v))
			}
			u.RawQuery = q.Encode()
		} else {
			var err error
			body, err = json.Marshal(params)
			if err != nil {
				return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
			}
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.username != "" {
		req.SetBasicAuth(t.username, t.password)
	}

	t.logger.Debug("rexster request",
		zap.String("method", method),
		zap.String("uri", u.String()),
		zap.ByteString("body", body),
		zap.String("request_id", requestID),
	)

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u.Redacted(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, u.Redacted(), err)
	}

	t.logger.Debug("rexster reply",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("request_id", requestID),
	)
	return &Reply{StatusCode: resp.StatusCode, Body: data, Header: resp.Header}, nil
}

// queryValue renders a query-string value. Lists are rendered as [a,b].
func queryValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []string:
		return "[" + strings.Join(x, ",") + "]"
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
