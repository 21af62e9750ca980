// Package adminapi is the HTTP client for the certification platform's
// admin REST API. It is the only place the console talks to the network.
package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds each request when no http.Client is supplied.
	DefaultTimeout = 15 * time.Second

	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes = 4 << 20

	tracerName = "github.com/certdesk/admin-console/adminapi"
)

// TokenSource supplies the bearer token at call time.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

// Token implements TokenSource.
func (f TokenFunc) Token() string { return f() }

// Param is one query-string parameter. Params are sent in slice order.
type Param struct {
	Name  string
	Value string
}

// Request describes one API call.
type Request struct {
	// Endpoint names the call for logs, metrics and errors. Optional.
	Endpoint string
	Method   string
	// Path is relative to the base URL and must already be escaped.
	Path  string
	Query []Param
	// Body is JSON-encoded when non-nil.
	Body any
	// Anonymous requests carry no bearer token, so a 401 on them never
	// reaches the unauthorized handler.
	Anonymous bool
}

func (r Request) op() string {
	if r.Endpoint != "" {
		return r.Endpoint
	}
	return r.Method + " " + r.Path
}

// Client sends requests to the admin API.
type Client struct {
	baseURL        string
	tokens         TokenSource
	timeout        time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
	onUnauthorized func(token string)
	durations      *prometheus.HistogramVec
	tracer         trace.Tracer
}

// NewClient creates a client for the API at baseURL. The token is read from
// tokens on every request, so a login or logout takes effect immediately.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: must be an absolute http(s) URL", baseURL)
	}
	if tokens == nil {
		tokens = TokenFunc(func() string { return "" })
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		tokens:  tokens,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}

	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs req and decodes a 2xx JSON response into out (when out is
// non-nil and the body is not empty). Every failure is an *APIError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	start := time.Now()
	requestID := uuid.NewString()

	ctx, span := c.tracer.Start(ctx, req.Method+" "+req.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
			attribute.String("certdesk.endpoint", req.Endpoint),
			attribute.String("certdesk.request_id", requestID),
		),
	)
	defer span.End()

	var token string
	if !req.Anonymous {
		token = c.tokens.Token()
	}
	status, err := c.do(ctx, req, token, requestID, out)

	outcome := "success"
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			outcome = string(apiErr.Kind)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if c.durations != nil {
		c.durations.WithLabelValues(endpointLabel(req), outcome).Observe(time.Since(start).Seconds())
	}

	c.logger.Debug("admin api request",
		"endpoint", req.Endpoint,
		"method", req.Method,
		"path", req.Path,
		"status", status,
		"outcome", outcome,
		"request_id", requestID,
		"duration", time.Since(start),
	)

	if status == http.StatusUnauthorized && token != "" && c.onUnauthorized != nil {
		c.onUnauthorized(token)
	}
	return err
}

func (c *Client) do(ctx context.Context, req Request, token, requestID string, out any) (int, error) {
	fail := func(kind ErrorKind, status int, msg string, cause error) *APIError {
		return &APIError{
			Op:         req.op(),
			Method:     req.Method,
			Path:       req.Path,
			StatusCode: status,
			Message:    msg,
			Kind:       kind,
			RequestID:  requestID,
			Err:        cause,
		}
	}

	var bodyReader io.Reader
	if req.Body != nil {
		jsonBody, err := json.Marshal(req.Body)
		if err != nil {
			return 0, fail(KindRequest, 0, "", fmt.Errorf("marshal request body: %w", err))
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.buildURL(req), bodyReader)
	if err != nil {
		return 0, fail(KindRequest, 0, "", fmt.Errorf("create request: %w", err))
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fail(KindTransport, 0, "", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, MaxResponseBytes+1))
	if err != nil {
		return httpResp.StatusCode, fail(KindTransport, httpResp.StatusCode, "", fmt.Errorf("read response body: %w", err))
	}
	if len(respBody) > MaxResponseBytes {
		return httpResp.StatusCode, fail(KindDecode, httpResp.StatusCode, "",
			fmt.Errorf("response body exceeds %d bytes", MaxResponseBytes))
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return httpResp.StatusCode, fail(KindForStatus(httpResp.StatusCode), httpResp.StatusCode,
			errorMessage(httpResp.StatusCode, respBody), nil)
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return httpResp.StatusCode, fail(KindDecode, 0, "", fmt.Errorf("unmarshal response: %w", err))
		}
	}

	return httpResp.StatusCode, nil
}

func (c *Client) buildURL(req Request) string {
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(req.Query) == 0 {
		return c.baseURL + path
	}

	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString(path)
	for i, p := range req.Query {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// errorMessage picks the most useful text out of an error response.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "{") {
		return text
	}
	return http.StatusText(status)
}

func endpointLabel(req Request) string {
	if req.Endpoint != "" {
		return req.Endpoint
	}
	return req.Method
}
