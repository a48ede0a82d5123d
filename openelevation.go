package altitude

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
)

// DefaultBaseURL is the lookup endpoint of the public Open-Elevation service.
const DefaultBaseURL = "https://api.open-elevation.com/api/v1/lookup"

const (
	defaultTimeout   = 30 * time.Second
	maxErrorBodySize = 512
)

// An OpenElevationClient is a Transport for services implementing the
// Open-Elevation lookup API. Small batches are sent as a GET with the
// locations in the query string, larger ones as a POST with a JSON body.
// Requests are never retried.
type OpenElevationClient struct {
	baseURL        string
	httpClient     *http.Client
	timeout        time.Duration
	maxQueryLength int
	userAgent      string
}

// An OpenElevationClientOption sets an option on an OpenElevationClient.
type OpenElevationClientOption func(*OpenElevationClient)

// NewOpenElevationClient returns a new OpenElevationClient with the given
// options.
func NewOpenElevationClient(options ...OpenElevationClientOption) *OpenElevationClient {
	c := &OpenElevationClient{
		baseURL:        DefaultBaseURL,
		timeout:        defaultTimeout,
		maxQueryLength: DefaultMaxQueryLength,
		userAgent:      "go-altitude",
	}
	for _, option := range options {
		option(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}
	return c
}

func WithBaseURL(baseURL string) OpenElevationClientOption {
	return func(c *OpenElevationClient) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client. It takes precedence over WithTimeout.
func WithHTTPClient(httpClient *http.Client) OpenElevationClientOption {
	return func(c *OpenElevationClient) {
		c.httpClient = httpClient
	}
}

func WithMaxQueryLength(maxQueryLength int) OpenElevationClientOption {
	return func(c *OpenElevationClient) {
		c.maxQueryLength = maxQueryLength
	}
}

func WithTimeout(timeout time.Duration) OpenElevationClientOption {
	return func(c *OpenElevationClient) {
		c.timeout = timeout
	}
}

func WithUserAgent(userAgent string) OpenElevationClientOption {
	return func(c *OpenElevationClient) {
		c.userAgent = userAgent
	}
}

// Strategy returns the strategy that c uses to send coords.
func (c *OpenElevationClient) Strategy(coords []Coordinate) Strategy {
	return SelectStrategy(coords, c.maxQueryLength)
}

// Fetch implements Transport.
func (c *OpenElevationClient) Fetch(ctx context.Context, coords []Coordinate) ([]Coordinate, error) {
	var req *http.Request
	var err error
	switch c.Strategy(coords) {
	case StrategyQuery:
		req, err = c.newQueryRequest(ctx, coords)
	default:
		req, err = c.newBodyRequest(ctx, coords)
	}
	if err != nil {
		transportFailures.WithLabelValues("transport").Inc()
		return nil, err
	}

	payload, err := c.do(req)
	if err != nil {
		transportFailures.WithLabelValues("transport").Inc()
		return nil, err
	}

	results, err := decodeResults(payload)
	if err != nil {
		transportFailures.WithLabelValues("protocol").Inc()
		return nil, err
	}
	if len(results) != len(coords) {
		transportFailures.WithLabelValues("protocol").Inc()
		return nil, &ProtocolError{
			Reason:   fmt.Sprintf("expected %d results, got %d", len(coords), len(results)),
			Expected: len(coords),
			Actual:   len(results),
		}
	}
	return results, nil
}

func (c *OpenElevationClient) newQueryRequest(ctx context.Context, coords []Coordinate) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, &TransportError{
			Method: http.MethodGet,
			URL:    c.baseURL,
			cause:  fmt.Errorf("parse base URL: %w", err),
		}
	}
	q := u.Query()
	q.Set("locations", EncodeLocations(coords))
	u.RawQuery = q.Encode()
	return c.newRequest(ctx, http.MethodGet, u.String(), nil)
}

func (c *OpenElevationClient) newBodyRequest(ctx context.Context, coords []Coordinate) (*http.Request, error) {
	type location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	body := struct {
		Locations []location `json:"locations"`
	}{
		Locations: make([]location, len(coords)),
	}
	for i, coord := range coords {
		body.Locations[i] = location{
			Latitude:  coord.latitude,
			Longitude: coord.longitude,
		}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return c.newRequest(ctx, http.MethodPost, c.baseURL, bytes.NewReader(data))
}

func (c *OpenElevationClient) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &TransportError{
			Method: method,
			URL:    c.baseURL,
			cause:  fmt.Errorf("create request: %w", err),
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// do sends req and returns the response body of a successful response.
func (c *OpenElevationClient) do(req *http.Request) ([]byte, error) {
	transportRequests.WithLabelValues(req.Method).Inc()

	// The URL may be long, so errors report it without the query.
	redactedURL := *req.URL
	redactedURL.RawQuery = ""
	newTransportError := func(statusCode int, body string, cause error) *TransportError {
		return &TransportError{
			Method:     req.Method,
			URL:        redactedURL.String(),
			StatusCode: statusCode,
			Body:       body,
			cause:      cause,
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error repeats the full URL.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, newTransportError(0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, newTransportError(resp.StatusCode, strings.TrimSpace(string(body)), fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(resp.StatusCode, "", err)
	}
	return payload, nil
}

// decodeResults strips the single-key envelope from payload and decodes the
// wrapped array.
func decodeResults(payload []byte) ([]Coordinate, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, &ProtocolError{Reason: "decode envelope", cause: err}
	}
	if len(envelope) != 1 {
		return nil, &ProtocolError{Reason: fmt.Sprintf("expected envelope with 1 key, got %d", len(envelope))}
	}
	for key, raw := range envelope {
		var results []Coordinate
		if err := json.Unmarshal(raw, &results); err != nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("decode %q", key), cause: err}
		}
		return results, nil
	}
	panic("unreachable")
}
