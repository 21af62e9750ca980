package adminapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client for making requests.
// WithTimeout is ignored when a client is supplied.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP request timeout.
// If not set, defaults to 15 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithUnauthorizedHandler registers fn to be called when a request that
// carried a token is answered with 401. fn receives the token that was sent.
func WithUnauthorizedHandler(fn func(token string)) Option {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// WithRequestMetrics records request durations in h, labelled by endpoint
// and outcome.
func WithRequestMetrics(h *prometheus.HistogramVec) Option {
	return func(c *Client) {
		c.durations = h
	}
}

// WithTracer sets the tracer used for request spans.
// Defaults to the global tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}
