// Package transport executes HTTP calls against the POS backend and
// normalizes success and error responses. It is the only component that
// may demote the session: a 401 on any call clears the token and fires
// the session's unauthorized hooks.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dukapos/pos-core-go/internal/domain"
	"github.com/dukapos/pos-core-go/internal/infra/observability"
	"github.com/dukapos/pos-core-go/internal/infra/resilience"
	"github.com/dukapos/pos-core-go/internal/session"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("transport")

// apiRoot is the versioned path prefix for every backend call.
const apiRoot = "/api/v1"

// errorBody is the error envelope the backend returns on failures.
type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Client performs one HTTP request per Do call. Responses are matched to
// their own request only; there is no coalescing or deduplication.
type Client struct {
	httpClient *http.Client
	baseURL    string
	session    *session.Store
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewClient creates a transport client for the backend at baseURL.
func NewClient(httpClient *http.Client, baseURL string, sess *session.Store, cb *gobreaker.CircuitBreaker, cfg resilience.Config, metrics *observability.Metrics, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		session:    sess,
		cb:         cb,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
	}
}

// Do executes a single request under /api/v1 and decodes the JSON response
// into out (which may be nil). Error surface:
//   - *domain.ErrUnauthorized — 401; the session has already been invalidated
//   - *domain.ErrRequestFailed — non-2xx with the backend's message
//   - *domain.ErrNetworkUnavailable — no HTTP response at all
//
// Idempotent GETs are retried on network failure; everything else is
// single-shot (payment submission must never be silently retried).
func (c *Client) Do(ctx context.Context, method, path string, body any, authed bool, out any) error {
	ctx, span := tracer.Start(ctx, "Transport.Do")
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	)

	op := operationLabel(method, path)
	start := time.Now()
	defer func() {
		c.metrics.RecordRequestDuration(op, time.Since(start))
	}()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	_, err := c.cb.Execute(func() (any, error) {
		if method == http.MethodGet && c.cfg.MaxRetries > 0 {
			return nil, c.roundTripWithRetry(ctx, method, path, payload, authed, out)
		}
		return nil, c.roundTrip(ctx, method, path, payload, authed, out)
	})
	if err != nil {
		c.metrics.IncrExternalError(op)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &domain.ErrNetworkUnavailable{Err: err}
		}
		return err
	}
	c.metrics.IncrRequest("success")
	return nil
}

// roundTripWithRetry retries only transport-level failures; 401, backend
// rejections, and decode errors are terminal on the first occurrence.
func (c *Client) roundTripWithRetry(ctx context.Context, method, path string, payload []byte, authed bool, out any) error {
	var terminal error
	err := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
		err := c.roundTrip(ctx, method, path, payload, authed, out)
		var netErr *domain.ErrNetworkUnavailable
		if err != nil && !errors.As(err, &netErr) {
			terminal = err
			return nil
		}
		return err
	})
	if terminal != nil {
		return terminal
	}
	return err
}

// roundTrip performs exactly one HTTP exchange and interprets the response
// in the contract's order: 401 first, then the error envelope, then decode.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, authed bool, out any) error {
	url := c.baseURL + apiRoot + path

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if authed {
		if token, ok := c.session.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("transport: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return &domain.ErrNetworkUnavailable{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.ErrNetworkUnavailable{Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("transport: 401, invalidating session",
			zap.String("method", method),
			zap.String("path", path),
		)
		c.session.Invalidate()
		return &domain.ErrUnauthorized{Message: messageFrom(respBody, resp)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := messageFrom(respBody, resp)
		c.logger.Warn("transport: backend rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return &domain.ErrRequestFailed{Status: resp.StatusCode, Message: msg}
	}

	c.logger.Debug("transport: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &domain.ErrRequestFailed{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("malformed response body: %v", err),
		}
	}
	return nil
}

// messageFrom extracts the backend's error message, falling back to the
// HTTP status text when the body carries none.
func messageFrom(body []byte, resp *http.Response) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Message != "" {
		return eb.Message
	}
	return http.StatusText(resp.StatusCode)
}

// operationLabel keeps metric cardinality bounded: method plus the first
// path segment, never resource IDs.
func operationLabel(method, path string) string {
	seg := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		seg = seg[:i]
	}
	if i := strings.IndexByte(seg, '?'); i >= 0 {
		seg = seg[:i]
	}
	return method + " " + seg
}
