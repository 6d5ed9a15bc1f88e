package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

// Envelope is the {success, data|error} shape every backend endpoint returns.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Response is the uniform result of a gateway call. The body is read in full
// before the gateway returns, so it can be decoded any number of times.
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte

	// Err is set only on responses the gateway synthesized and says why.
	Err error
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Envelope is shorthand for SafeDecode(r).
func (r *Response) Envelope() Envelope {
	return SafeDecode(r)
}

// SafeDecode decodes the body as an envelope. A body that is not valid JSON yields
// a failure envelope whose error is the raw text, or the status line when the body
// is empty. It never fails and does not modify r.
func SafeDecode(r *Response) Envelope {
	if r == nil {
		return Envelope{Error: "no response"}
	}
	var env Envelope
	if err := json.Unmarshal(r.Body, &env); err == nil {
		return env
	}
	if text := strings.TrimSpace(string(r.Body)); text != "" {
		return Envelope{Error: text}
	}
	return Envelope{Error: fmt.Sprintf("HTTP %d: %s", r.Status, r.StatusText)}
}

// DecodeData decodes a successful envelope's data into out. A failure envelope is
// returned as an error carrying the server message.
func DecodeData(r *Response, out any) error {
	env := SafeDecode(r)
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", statusOf(r))
		}
		e := &EnvelopeError{Status: statusOf(r), Message: msg}
		if r != nil {
			e.Err = r.Err
		}
		return e
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperrors.Wrapf(apperrors.ErrMalformedResponse, "[DecodeData] %s", err.Error())
	}
	return nil
}

// EnvelopeError is a failure envelope surfaced as an error by DecodeData.
type EnvelopeError struct {
	Status  int
	Message string
	Err     error
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.Status, e.Message)
}

// Unwrap returns the cause of a synthesized response, or maps the status onto
// the error taxonomy.
func (e *EnvelopeError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	switch e.Status {
	case http.StatusTooManyRequests:
		return apperrors.ErrRateLimited
	case http.StatusUnauthorized:
		return apperrors.ErrCredentialExpired
	}
	return nil
}

// failure builds a synthetic failure response.
func failure(status int, message string, cause error) *Response {
	body, _ := json.Marshal(Envelope{Success: false, Error: message})
	return &Response{
		Status:     status,
		StatusText: http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{contentTypeJSON}},
		Body:       body,
		Err:        cause,
	}
}

func statusOf(r *Response) int {
	if r == nil {
		return 0
	}
	return r.Status
}

// statusText strips the numeric code from an http.Response status line.
func statusText(resp *http.Response) string {
	if _, text, ok := strings.Cut(resp.Status, " "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
