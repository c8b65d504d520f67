package todoapi

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

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"todoctl/internal/observability"
	"todoctl/internal/service"
)

const (
	// DefaultTimeout bounds each HTTP exchange.
	DefaultTimeout = 30 * time.Second

	userAgent  = "todoctl"
	tracerName = "todoctl/internal/backend/todoapi"
)

// BreakerSettings configure the circuit breaker in front of the API.
// Only transport failures and 5xx responses count against it.
type BreakerSettings struct {
	Enabled      bool
	MinRequests  uint32
	FailureRatio float64
	Timeout      time.Duration
}

// DefaultBreakerSettings returns the breaker used when none is configured.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Enabled:      true,
		MinRequests:  5,
		FailureRatio: 0.8,
		Timeout:      30 * time.Second,
	}
}

// Options configure a Transport.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Breaker    BreakerSettings
}

// Transport performs JSON exchanges with the API. Client and AuthClient share
// one so they share the breaker.
type Transport struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewTransport builds a Transport.
func NewTransport(opts Options) *Transport {
	t := &Transport{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    opts.HTTPClient,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		tracer:  otel.Tracer(tracerName),
	}
	if t.http == nil {
		t.http = &http.Client{Timeout: DefaultTimeout}
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	if opts.Breaker.Enabled {
		t.breaker = newBreaker(opts.Breaker, t.logger)
	}
	return t
}

func newBreaker(s BreakerSettings, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "todoapi",
		Timeout: s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// tokenFunc supplies the bearer token for a call.
type tokenFunc func(ctx context.Context) (string, error)

// call runs one exchange through the breaker: obtain a token if token is
// non-nil, send body as JSON, classify the status and decode a 2xx body into out.
func (t *Transport) call(ctx context.Context, op, method, path string, token tokenFunc, body, out any) error {
	return t.exchange(ctx, op, method, path, token, body, out, true)
}

// callUnguarded is call without the breaker and without a bearer token.
func (t *Transport) callUnguarded(ctx context.Context, op, method, path string, body, out any) error {
	return t.exchange(ctx, op, method, path, nil, body, out, false)
}

func (t *Transport) exchange(ctx context.Context, op, method, path string, token tokenFunc, body, out any, guarded bool) (err error) {
	ctx, span := t.tracer.Start(ctx, "todoapi."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		))
	start := time.Now()
	defer func() { t.finish(span, op, method, path, start, err) }()

	var bearer string
	if token != nil {
		if bearer, err = token(ctx); err != nil {
			return err
		}
	}

	req, err := t.newRequest(ctx, method, path, bearer, body)
	if err != nil {
		return err
	}

	resp, err := t.roundTrip(req, guarded)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &service.Error{Code: service.CodeServer, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

func (t *Transport) newRequest(ctx context.Context, method, path, bearer string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"}).SetAuthHeader(req)
	}
	return req, nil
}

// roundTrip sends req, through the breaker when guarded. 5xx responses are
// consumed and returned as errors so they count as failures.
func (t *Transport) roundTrip(req *http.Request, guarded bool) (*http.Response, error) {
	send := func() (any, error) {
		resp, err := t.http.Do(req)
		if err != nil {
			return nil, &service.Error{Code: service.CodeNetwork, Message: "request failed", Err: err}
		}
		if resp.StatusCode >= 500 {
			defer resp.Body.Close()
			return nil, responseError(resp)
		}
		return resp, nil
	}

	var (
		v   any
		err error
	)
	if t.breaker == nil || !guarded {
		v, err = send()
	} else {
		v, err = t.breaker.Execute(send)
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &service.Error{Code: service.CodeNetwork, Message: "server unavailable (circuit open)", Err: err}
	}
	if err != nil {
		return nil, err
	}
	return v.(*http.Response), nil
}

func (t *Transport) finish(span trace.Span, op, method, path string, start time.Time, err error) {
	defer span.End()

	fields := []zap.Field{
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Duration("duration", time.Since(start)),
	}

	if err == nil {
		t.metrics.RecordRequest(op, "ok")
		t.logger.Debug("request completed", fields...)
		return
	}

	code := service.CodeOf(err)
	if code == "" {
		code = "Error"
	}
	t.metrics.RecordRequest(op, string(code))
	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))

	var e *service.Error
	if errors.As(err, &e) && e.Status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", e.Status))
		fields = append(fields, zap.Int("status", e.Status))
	}
	fields = append(fields, zap.String("code", string(code)), zap.Error(err))

	switch code {
	case service.CodeServer, service.CodeNetwork:
		t.logger.Warn("request failed", fields...)
	default:
		t.logger.Debug("request failed", fields...)
	}
}

// responseError turns a non-2xx response into a *service.Error, reading
// FastAPI's detail payload for the message and per-field problems.
func responseError(resp *http.Response) error {
	status := resp.StatusCode
	e := &service.Error{
		Code:    service.CodeForStatus(status),
		Status:  status,
		Message: strings.ToLower(http.StatusText(status)),
	}

	var gerr *googleapi.Error
	if err := googleapi.CheckResponse(resp); errors.As(err, &gerr) {
		if msg, fields := parseDetail(gerr.Body); msg != "" || len(fields) > 0 {
			if msg != "" {
				e.Message = msg
			}
			e.Fields = fields
		} else if gerr.Message != "" {
			e.Message = gerr.Message
		}
	}
	return e
}

// parseDetail reads {"detail": "..."} or FastAPI's
// {"detail": [{"loc": [...], "msg": "..."}]}.
func parseDetail(body string) (string, map[string]string) {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil || len(payload.Detail) == 0 {
		return "", nil
	}

	var msg string
	if err := json.Unmarshal(payload.Detail, &msg); err == nil {
		return msg, nil
	}

	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err != nil || len(items) == 0 {
		return "", nil
	}
	fields := make(map[string]string, len(items))
	for _, it := range items {
		key := "request"
		if n := len(it.Loc); n > 0 {
			key = fmt.Sprint(it.Loc[n-1])
		}
		fields[key] = it.Msg
	}
	return "validation failed", fields
}
