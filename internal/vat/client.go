package vat

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukerupert/vies/internal/domain"
	"github.com/dukerupert/vies/internal/telemetry"
)

const (
	// DefaultEndpoint is the VIES checkVatService SOAP endpoint.
	DefaultEndpoint = "http://ec.europa.eu/taxation_customs/vies/services/checkVatService"

	// DefaultTimeout bounds a whole lookup, redirects and body read included.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRedirects is the number of redirects followed before giving up.
	DefaultMaxRedirects = 10

	defaultHost = "ec.europa.eu"
)

// Config contains configuration for the VIES client.
type Config struct {
	// Endpoint overrides DefaultEndpoint. Must be an absolute http(s) URL.
	Endpoint string

	// Timeout overrides DefaultTimeout.
	Timeout time.Duration

	// MaxRedirects overrides DefaultMaxRedirects.
	MaxRedirects int

	// Strict surfaces transport failures as ErrTransport instead of
	// returning an empty result.
	Strict bool

	Logger     *slog.Logger           // Optional: defaults to slog.Default()
	Metrics    *telemetry.VIESMetrics // Optional
	HTTPClient *http.Client           // Optional: replaces the configured client entirely
}

// Client queries VIES over SOAP. It is safe for concurrent use.
type Client struct {
	endpoint string
	host     string
	strict   bool
	http     *http.Client
	logger   *slog.Logger
	metrics  *telemetry.VIESMetrics
}

// NewClient creates a VIES client from cfg.
func NewClient(cfg Config) (*Client, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("vat: invalid endpoint %q", endpoint)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(cfg.Timeout, cfg.MaxRedirects)
	}

	c := &Client{
		endpoint: endpoint,
		strict:   cfg.Strict,
		http:     httpClient,
		logger:   logger.With("component", "vies"),
		metrics:  cfg.Metrics,
	}

	// VIES is addressed as Host: ec.europa.eu; custom endpoints keep their
	// own host.
	if endpoint == DefaultEndpoint {
		c.host = defaultHost
	}

	return c, nil
}

// newHTTPClient builds an HTTP/1.1-only client with a total timeout and a
// redirect cap. Decompression is handled by decodeBody so that br and zstd
// are accepted alongside gzip.
func newHTTPClient(timeout time.Duration, maxRedirects int) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ForceAttemptHTTP2 = false
	transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	transport.DisableCompression = true

	return &http.Client{
		Timeout:   timeout,
		Transport: &telemetry.HTTPTransport{Transport: transport},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// Get looks up q on VIES.
//
// Validation and response errors are returned as domain errors (see the Err*
// sentinels). A transport failure returns a nil Record and a nil error unless
// the client is strict.
func (c *Client) Get(ctx context.Context, q Query) (*Record, error) {
	const op = "vat.get"

	// Guards against a zero Query built without NewQuery.
	if err := ValidateCountry(q.countryCode); err != nil {
		return nil, domain.Op(err, op)
	}

	logger := c.logger.With("country_code", q.countryCode)
	logger.Debug("checking VAT number")
	telemetry.AddBreadcrumb(ctx, "vies", "checkVat", map[string]interface{}{"country_code": q.countryCode})

	start := time.Now()

	body, err := c.post(ctx, BuildEnvelope(q))
	if err != nil {
		c.metrics.ObserveLookup(q.countryCode, telemetry.OutcomeTransportError, time.Since(start))
		logger.Warn("VIES request failed", "error", err, "strict", c.strict)
		telemetry.CaptureErrorFromContext(ctx, err, map[string]interface{}{"country_code": q.countryCode})

		if c.strict {
			return nil, domain.Unavailable(err, op, ErrTransport.Message)
		}
		return nil, nil
	}

	rec, err := ParseResponse(body)
	outcome := lookupOutcome(err)
	c.metrics.ObserveLookup(q.countryCode, outcome, time.Since(start))

	if err != nil {
		switch outcome {
		case telemetry.OutcomeInvalid:
			logger.Info("VAT number rejected by VIES")
		default:
			logger.Error("VIES response not usable", "error", err, "outcome", outcome)
		}
		return nil, err
	}

	logger.Debug("VAT number valid", "duration", time.Since(start))
	return rec, nil
}

// post sends the envelope and returns the decoded response body regardless
// of HTTP status; SOAP faults arrive as 500 responses and are parsed later.
func (c *Client) post(ctx context.Context, envelope string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", acceptEncoding)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Content-Type", "application/xml")
	if c.host != "" {
		req.Host = c.host
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return decodeBody(resp.Header.Get("Content-Encoding"), raw)
}

func lookupOutcome(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeValid
	case errors.Is(err, ErrInvalidVATNumber):
		return telemetry.OutcomeInvalid
	case errors.Is(err, ErrServiceFault):
		return telemetry.OutcomeFault
	default:
		return telemetry.OutcomeMalformed
	}
}
