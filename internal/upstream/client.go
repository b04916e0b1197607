package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/wolfman30/agendmed/internal/observability/metrics"
	"github.com/wolfman30/agendmed/pkg/logging"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 1 << 20
	maxErrorBody        = 300

	endpointServices     = "services"
	endpointAppointments = "appointments"
	endpointUserTimes    = "user_times"
	endpointSave         = "save_appointment"
)

var tracer = otel.Tracer("agendmed.internal.upstream")

// ErrResponseTooLarge is returned when a response body exceeds the client's limit.
var ErrResponseTooLarge = errors.New("upstream: response body too large")

// Client talks to the tenant scheduling API (the AgendMed web app).
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	maxBody    int64
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout bounds every individual call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps outbound requests per second across all tenants.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMaxResponseBytes caps how much of a response body is read.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient builds a client rooted at baseURL (e.g. FRONTEND_URL).
func NewClient(baseURL string, logger *logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		maxBody:    defaultMaxBodyBytes,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Services returns the tenant's bookable services in display order.
func (c *Client) Services(ctx context.Context, tenantID string) ([]ServiceDTO, error) {
	q := url.Values{"userId": {tenantID}}
	var out []ServiceDTO
	if err := c.do(ctx, endpointServices, http.MethodGet, "/api/chatbot/services", q, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BlockedTimes returns the HH:MM times already taken on date (YYYY-MM-DD).
func (c *Client) BlockedTimes(ctx context.Context, tenantID, date string) ([]string, error) {
	q := url.Values{"userId": {tenantID}, "date": {date}}
	var out []string
	if err := c.do(ctx, endpointAppointments, http.MethodGet, "/api/schedule/get-appointments", q, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WorkingTimes returns the tenant's configured HH:MM slots.
func (c *Client) WorkingTimes(ctx context.Context, tenantID string) ([]string, error) {
	q := url.Values{"userId": {tenantID}}
	var out userTimesResponse
	if err := c.do(ctx, endpointUserTimes, http.MethodGet, "/api/chatbot/user-times", q, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Times, nil
}

// SaveAppointment stores a confirmed booking and returns the remote id.
func (c *Client) SaveAppointment(ctx context.Context, req SaveAppointmentRequest, idempotencyKey string) (string, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	var out saveAppointmentResponse
	if err := c.do(ctx, endpointSave, http.MethodPost, "/api/chatbot/save-appointment", nil, req, headers, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("upstream: save appointment returned empty id")
	}
	return out.ID.String(), nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body any, headers map[string]string, out any) (err error) {
	if c.baseURL == "" {
		return errors.New("upstream: base url not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "upstream."+endpoint)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("upstream.path", path))

	start := time.Now()
	status := "ok"
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		c.metrics.ObserveUpstream(endpoint, status, time.Since(start))
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			status = "rate_limited"
			return fmt.Errorf("upstream: %s: rate limit wait: %w", endpoint, err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			status = "encode_error"
			return fmt.Errorf("upstream: %s: marshal request: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		status = "request_error"
		return fmt.Errorf("upstream: %s: create request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		status = "transport_error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		c.logger.Warn("upstream request failed", "endpoint", endpoint, "error", err)
		return fmt.Errorf("upstream: %s: http request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		status = "read_error"
		return fmt.Errorf("upstream: %s: read response: %w", endpoint, err)
	}
	if int64(len(respBody)) > c.maxBody {
		status = "too_large"
		c.logger.Warn("upstream response too large", "endpoint", endpoint, "limit_bytes", c.maxBody)
		return fmt.Errorf("upstream: %s: %w", endpoint, ErrResponseTooLarge)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		status = fmt.Sprintf("%dxx", resp.StatusCode/100)
		msg := string(respBody)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		c.logger.Warn("upstream returned error status", "endpoint", endpoint, "status", resp.StatusCode)
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		status = "decode_error"
		return fmt.Errorf("upstream: %s: unmarshal response: %w", endpoint, err)
	}
	return nil
}
