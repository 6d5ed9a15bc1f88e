// Package gateway performs outbound backend calls with the session's credentials
// attached and turns every outcome, including transport failures, into a Response.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/expiry"
	"github.com/jrsteele09/go-auth-client/internal/config"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	contentTypeJSON = "application/json"
	headerRequestID = "X-Request-ID"

	defaultExpiredSentinel  = "Token expired"
	defaultRateLimitMessage = "Too many requests. Please try again later."
)

// Options describe a single call. Body may be nil, a *Multipart upload, raw
// bytes (json.RawMessage, []byte, string, io.Reader) or any value to be encoded as JSON.
type Options struct {
	Method  string
	Body    any
	Headers http.Header
}

// Gateway is safe for concurrent use.
type Gateway struct {
	baseURL          string
	client           *http.Client
	timeout          time.Duration
	expiry           expiry.Publisher
	expiredSentinel  string
	rateLimitMessage string

	tokensLock sync.RWMutex
	tokens     oauth2.TokenSource
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default http.Client. The client is used as given;
// WithTimeout does not modify it.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.client = client
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.timeout = d
	}
}

// WithTokenSource sets where the current token is read from on every call.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(g *Gateway) {
		g.tokens = ts
	}
}

// WithExpiredSentinel sets the 401 error value that marks an expired credential.
func WithExpiredSentinel(sentinel string) Option {
	return func(g *Gateway) {
		g.expiredSentinel = sentinel
	}
}

// WithRateLimitMessage sets the error returned in place of a 429 body.
func WithRateLimitMessage(msg string) Option {
	return func(g *Gateway) {
		g.rateLimitMessage = msg
	}
}

// New creates a Gateway for baseURL. publisher may be nil, in which case expiry is only logged.
func New(baseURL string, publisher expiry.Publisher, options ...Option) *Gateway {
	g := &Gateway{
		baseURL:          strings.TrimRight(baseURL, "/"),
		expiry:           publisher,
		expiredSentinel:  defaultExpiredSentinel,
		rateLimitMessage: defaultRateLimitMessage,
	}
	for _, opt := range options {
		opt(g)
	}
	if g.client == nil {
		g.client = &http.Client{Timeout: g.timeout}
	}
	return g
}

// NewFromConfig creates a Gateway from the gateway configuration. Later options win.
func NewFromConfig(c config.GatewayConfig, publisher expiry.Publisher, options ...Option) *Gateway {
	base := []Option{
		WithTimeout(c.GetRequestTimeout()),
		WithExpiredSentinel(c.GetExpiredSentinel()),
		WithRateLimitMessage(c.GetRateLimitMessage()),
	}
	return New(c.GetAPIBaseURL(), publisher, append(base, options...)...)
}

// SetTokenSource binds the token source after construction, for composition
// roots where the source itself depends on the gateway.
func (g *Gateway) SetTokenSource(ts oauth2.TokenSource) {
	g.tokensLock.Lock()
	defer g.tokensLock.Unlock()
	g.tokens = ts
}

func (g *Gateway) tokenSource() oauth2.TokenSource {
	g.tokensLock.RLock()
	defer g.tokensLock.RUnlock()
	return g.tokens
}

// Do performs the call and always returns a non-nil Response.
//
//   - transport failures become a synthetic 500 failure envelope
//   - 429 becomes a synthetic 429 failure envelope with the rate-limit message
//   - a 401 whose error equals the expired sentinel is published on the expiry
//     channel before Do returns; the 401 itself is still returned unchanged
//   - everything else is returned verbatim
func (g *Gateway) Do(ctx context.Context, path string, opts Options) *Response {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	requestID := uuid.New().String()
	logger := log.With().Str("method", method).Str("path", path).Str("request_id", requestID).Logger()

	body, contentType, err := encodeBody(opts.Body)
	if err != nil {
		logger.Err(err).Msg("Failed to encode request body")
		return failure(http.StatusInternalServerError, err.Error(), err)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.url(path), body)
	if err != nil {
		logger.Err(err).Msg("Failed to build request")
		return failure(http.StatusInternalServerError, err.Error(),
			apperrors.Wrapf(apperrors.ErrNetworkFailure, "[Gateway.Do] build request: %s", err.Error()))
	}
	for k, values := range opts.Headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(headerRequestID, requestID)
	g.authorize(req)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		logger.Warn().Err(err).Msg("Request failed before a response was received")
		return failure(http.StatusInternalServerError, err.Error(),
			apperrors.Wrapf(apperrors.ErrNetworkFailure, "[Gateway.Do] %s", err.Error()))
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warn().Err(err).Int("status", resp.StatusCode).Msg("Failed to read response body")
		return failure(http.StatusInternalServerError, err.Error(),
			apperrors.Wrapf(apperrors.ErrNetworkFailure, "[Gateway.Do] read body: %s", err.Error()))
	}
	logger.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("Request completed")

	result := &Response{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Header:     resp.Header,
		Body:       b,
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if SafeDecode(result).Error == g.expiredSentinel {
			logger.Info().Msg("Credential expired")
			if g.expiry != nil {
				g.expiry.Publish()
			}
		}
		return result
	case http.StatusTooManyRequests:
		logger.Warn().Msg("Rate limited")
		return failure(http.StatusTooManyRequests, g.rateLimitMessage, apperrors.ErrRateLimited)
	}
	return result
}

// Get is Do with GET.
func (g *Gateway) Get(ctx context.Context, path string) *Response {
	return g.Do(ctx, path, Options{Method: http.MethodGet})
}

// Post is Do with POST.
func (g *Gateway) Post(ctx context.Context, path string, body any) *Response {
	return g.Do(ctx, path, Options{Method: http.MethodPost, Body: body})
}

// Put is Do with PUT.
func (g *Gateway) Put(ctx context.Context, path string, body any) *Response {
	return g.Do(ctx, path, Options{Method: http.MethodPut, Body: body})
}

// Patch is Do with PATCH.
func (g *Gateway) Patch(ctx context.Context, path string, body any) *Response {
	return g.Do(ctx, path, Options{Method: http.MethodPatch, Body: body})
}

// Delete is Do with DELETE.
func (g *Gateway) Delete(ctx context.Context, path string) *Response {
	return g.Do(ctx, path, Options{Method: http.MethodDelete})
}

// authorize reads the token at call time; a missing session sends no header.
func (g *Gateway) authorize(req *http.Request) {
	ts := g.tokenSource()
	if ts == nil {
		return
	}
	tok, err := ts.Token()
	if err != nil || tok == nil || tok.AccessToken == "" {
		return
	}
	tok.SetAuthHeader(req)
}

func (g *Gateway) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return g.baseURL + path
}

// encodeBody returns the request body and the content type to use when the
// caller has not set one.
func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, contentTypeJSON, nil
	case *Multipart:
		if b == nil || b.body == nil {
			return nil, "", apperrors.Wrapf(apperrors.ErrUnsupportedPayload, "[encodeBody] empty multipart body")
		}
		return b.body, b.contentType, nil
	case json.RawMessage:
		return bytes.NewReader(b), contentTypeJSON, nil
	case []byte:
		return bytes.NewReader(b), contentTypeJSON, nil
	case string:
		return strings.NewReader(b), contentTypeJSON, nil
	case io.Reader:
		return b, contentTypeJSON, nil
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, "", apperrors.Wrapf(apperrors.ErrUnsupportedPayload, "[encodeBody] %s", err.Error())
	}
	return bytes.NewReader(encoded), contentTypeJSON, nil
}
