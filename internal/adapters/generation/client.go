// Package generation is the client for the text-generation backend.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/tripcore/internal/core/domain"
	"github.com/samirrijal/tripcore/internal/core/ports"
	"github.com/samirrijal/tripcore/internal/pkg/metrics"
	"github.com/samirrijal/tripcore/internal/pkg/telemetry"
)

const (
	// DefaultTimeout bounds a single generation request.
	DefaultTimeout = 45 * time.Second

	generatePath    = "/api/generate"
	maxBodyBytes    = 4 << 20
	maxMessageBytes = 500
)

// textFields are checked in order on a successful response.
var textFields = []string{"text", "response", "content"}

// Client calls the generation backend with a bounded, cancellable request.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	doer    ports.HTTPDoer
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithHTTPDoer(d ports.HTTPDoer) Option {
	return func(c *Client) { c.doer = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
		doer:    &http.Client{},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint is the URL every request is sent to.
func (c *Client) Endpoint() string { return c.baseURL + generatePath }

// Timeout is the bound applied to each request.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Generate sends prompt and returns the generated text.
// Failures are *domain.GenerationError values with a kind describing the cause.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "generation.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("generation.endpoint", c.Endpoint()))

	bound := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < bound {
			bound = remaining.Round(time.Millisecond)
		}
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.send(reqCtx, prompt)
	if err != nil {
		err = c.classify(ctx, reqCtx, bound, err)
		kind := "upstream"
		var ge *domain.GenerationError
		if errors.As(err, &ge) {
			kind = ge.Kind.String()
		}
		metrics.GenerationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		c.log.Warn("generation request failed", "kind", kind, "endpoint", c.Endpoint(), "error", err)
		return "", err
	}

	metrics.GenerationDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("generation.response_length", len(text)))
	return text, nil
}

func (c *Client) send(ctx context.Context, prompt string) (string, error) {
	buf, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ge := &domain.GenerationError{
			Kind:     domain.KindUpstream,
			Endpoint: c.Endpoint(),
			Status:   resp.StatusCode,
			Message:  errorMessage(resp.StatusCode, body),
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			ge.Kind = domain.KindAuthorization
		}
		return "", ge
	}

	return extractText(body), nil
}

// classify maps a send failure to a GenerationError. Timeout is decided from
// the derived context, not from the transport error. A deadline inherited from
// the caller is a timeout too, reported with the bound that was in effect.
func (c *Client) classify(parent, reqCtx context.Context, bound time.Duration, err error) error {
	var ge *domain.GenerationError
	switch {
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded):
		return &domain.GenerationError{Kind: domain.KindTimeout, Endpoint: c.Endpoint(), Timeout: bound, Err: err}
	case parent.Err() != nil:
		return &domain.GenerationError{Kind: domain.KindCanceled, Endpoint: c.Endpoint(), Err: parent.Err()}
	case errors.As(err, &ge):
		return ge
	case isUnreachable(err):
		return &domain.GenerationError{Kind: domain.KindUnreachable, Endpoint: c.Endpoint(), Err: err}
	default:
		return &domain.GenerationError{
			Kind:     domain.KindUpstream,
			Endpoint: c.Endpoint(),
			Message:  fmt.Sprintf("generation request failed: %v", err),
			Err:      err,
		}
	}
}

func isUnreachable(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

// errorMessage prefers a structured message, then raw text, then the status code.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		var s string
		if json.Unmarshal(payload.Error, &s) == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && strings.TrimSpace(nested.Message) != "" {
			return strings.TrimSpace(nested.Message)
		}
		if strings.TrimSpace(payload.Message) != "" {
			return strings.TrimSpace(payload.Message)
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		if len(text) > maxMessageBytes {
			text = text[:maxMessageBytes] + "…"
		}
		return text
	}
	return fmt.Sprintf("request failed with status code %d", status)
}

// extractText returns the generated text field, or the whole body when the
// payload does not carry one.
func extractText(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, field := range textFields {
			if s, ok := payload[field].(string); ok {
				return s
			}
		}
	}
	return string(body)
}
