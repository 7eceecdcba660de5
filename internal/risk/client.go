// Package risk talks to the external collision-risk classifier. The
// classifier takes the debris-minus-satellite vector and its length and
// answers "Yes" or "No".
package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/signalsfoundry/debris-collision-sim/core"
	"github.com/signalsfoundry/debris-collision-sim/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/signalsfoundry/debris-collision-sim/internal/risk"

	// DefaultEndpoint is where the reference classifier listens.
	DefaultEndpoint = "http://127.0.0.1:8000/predict"
	// DefaultTimeout bounds a single classifier round trip.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
)

var (
	// ErrInvalidEndpoint indicates the classifier URL is unusable.
	ErrInvalidEndpoint = errors.New("invalid risk endpoint")
	// ErrUnavailable indicates a transport failure or a non-2xx reply.
	ErrUnavailable = errors.New("risk assessment unavailable")
	// ErrMalformedResponse indicates the reply could not be interpreted.
	ErrMalformedResponse = errors.New("malformed risk assessment response")
)

// Request is the classifier's input payload. Field names are part of the
// wire contract.
type Request struct {
	RelX       float64 `json:"rel_x"`
	RelY       float64 `json:"rel_y"`
	RelZ       float64 `json:"rel_z"`
	DistanceKm float64 `json:"distance_km"`
}

// NewRequest builds a request from a relative position, deriving the
// distance as its Euclidean norm.
func NewRequest(rel core.Vec3) Request {
	return Request{
		RelX:       rel.X,
		RelY:       rel.Y,
		RelZ:       rel.Z,
		DistanceKm: rel.Norm(),
	}
}

// Verdict is the classifier's answer.
type Verdict string

const (
	VerdictHigh Verdict = "high"
	VerdictLow  Verdict = "low"
)

// Assessment is a decoded classifier reply.
type Assessment struct {
	Verdict Verdict
	// Input is the payload as echoed back by the classifier, when present.
	Input *Request
}

type response struct {
	CollisionRisk string   `json:"collision_risk"`
	Input         *Request `json:"input,omitempty"`
}

// Client posts assessment requests to a classifier endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
	log      logging.Logger
	tracer   trace.Tracer
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each round trip. It applies to a copy of the HTTP
// client, so a client passed to WithHTTPClient is left unchanged.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient validates endpoint and returns a Client for it.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}

	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: DefaultTimeout},
		log:      logging.Noop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c, nil
}

// Endpoint returns the classifier URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Assess sends req and decodes the verdict.
func (c *Client) Assess(ctx context.Context, req Request) (Assessment, error) {
	ctx, span := c.tracer.Start(ctx, "risk.Assess", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.url", c.endpoint),
			attribute.Float64("risk.distance_km", req.DistanceKm),
		))
	defer span.End()

	out, err := c.assess(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Debug(ctx, "risk assessment failed", logging.Err(err))
		return Assessment{}, err
	}
	span.SetAttributes(attribute.String("risk.verdict", string(out.Verdict)))
	c.log.Debug(ctx, "risk assessment received", logging.String("verdict", string(out.Verdict)))
	return out, nil
}

func (c *Client) assess(ctx context.Context, req Request) (Assessment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Assessment{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if id := logging.RequestIDFromContext(ctx); id != "" {
		httpReq.Header.Set("X-Request-Id", id)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Assessment{}, fmt.Errorf("%w: classifier returned %s", ErrUnavailable, resp.Status)
	}

	var decoded response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return Assessment{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var verdict Verdict
	switch decoded.CollisionRisk {
	case "Yes":
		verdict = VerdictHigh
	case "No":
		verdict = VerdictLow
	default:
		return Assessment{}, fmt.Errorf("%w: unexpected collision_risk %q", ErrMalformedResponse, decoded.CollisionRisk)
	}
	return Assessment{Verdict: verdict, Input: decoded.Input}, nil
}
