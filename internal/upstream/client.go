// Package upstream forwards chat-completion requests to the external
// provider and classifies its failures.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/intellirate/gateway/internal/config"
)

// ErrorKind classifies upstream failures.
type ErrorKind string

// Upstream failure kinds.
const (
	KindTimeout        ErrorKind = "timeout"
	KindAuthFailure    ErrorKind = "auth_failure"
	KindRateLimited    ErrorKind = "rate_limited"
	KindServerError    ErrorKind = "server_error"
	KindConnectFailure ErrorKind = "connect_failure"
	KindRejected       ErrorKind = "rejected"
)

// maxErrorBodyBytes bounds how much of an upstream error body is retained.
const maxErrorBodyBytes = 512

// Error describes a failed upstream call. StatusCode is the status the
// gateway returns to its caller; UpstreamStatus is the provider's original
// status, zero when the call never produced a response.
type Error struct {
	Kind           ErrorKind
	StatusCode     int
	UpstreamStatus int
	Message        string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.UpstreamStatus > 0 {
		return fmt.Sprintf("upstream: %s (status=%d): %s", e.Kind, e.UpstreamStatus, e.Message)
	}
	return fmt.Sprintf("upstream: %s: %s", e.Kind, e.Message)
}

// Code returns the stable machine-readable code for the failure kind.
func (e *Error) Code() string {
	switch e.Kind {
	case KindTimeout:
		return "UPSTREAM_TIMEOUT"
	case KindAuthFailure:
		return "UPSTREAM_AUTH"
	case KindRateLimited:
		return "UPSTREAM_RATE_LIMIT"
	case KindConnectFailure:
		return "UPSTREAM_UNREACHABLE"
	default:
		return "UPSTREAM_ERROR"
	}
}

// Usage holds token counts reported by the provider.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Result is a successful upstream response.
type Result struct {
	Body       []byte
	StatusCode int
	Latency    time.Duration
	Usage      Usage
}

// Client forwards request bodies to the completion provider. It performs
// no retries and no logging; a failed call is a single failed request.
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a Client with connect and total timeouts applied.
func NewClient(cfg config.UpstreamConfig) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		apiURL: cfg.URL,
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.TotalTimeout,
		},
	}
}

// Forward sends the request body to the provider and returns its response.
// Failures are returned as *Error with the caller-facing status mapped per
// kind: timeouts 504; auth, connect, and server failures 502; provider
// rate limiting 429. Provider auth failures are never surfaced as 401.
func (c *Client) Forward(ctx context.Context, body []byte) (*Result, error) {
	start := time.Now()

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if errReq != nil {
		return nil, &Error{Kind: KindConnectFailure, StatusCode: http.StatusBadGateway, Message: errReq.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		if isTimeout(errDo) {
			return nil, &Error{
				Kind:       KindTimeout,
				StatusCode: http.StatusGatewayTimeout,
				Message:    "provider request timed out",
			}
		}
		return nil, &Error{
			Kind:       KindConnectFailure,
			StatusCode: http.StatusBadGateway,
			Message:    "failed to connect to provider",
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		data, errRead := io.ReadAll(resp.Body)
		if errRead != nil {
			if isTimeout(errRead) {
				return nil, &Error{
					Kind:       KindTimeout,
					StatusCode: http.StatusGatewayTimeout,
					Message:    "provider response read timed out",
				}
			}
			return nil, &Error{
				Kind:           KindServerError,
				StatusCode:     http.StatusBadGateway,
				UpstreamStatus: resp.StatusCode,
				Message:        "failed to read provider response",
			}
		}
		return &Result{
			Body:       data,
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Usage:      parseUsage(data),
		}, nil
	}

	detail := readErrorBody(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &Error{
			Kind:           KindAuthFailure,
			StatusCode:     http.StatusBadGateway,
			UpstreamStatus: resp.StatusCode,
			Message:        "provider authentication failed",
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{
			Kind:           KindRateLimited,
			StatusCode:     http.StatusTooManyRequests,
			UpstreamStatus: resp.StatusCode,
			Message:        "provider rate limit exceeded",
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &Error{
			Kind:           KindServerError,
			StatusCode:     http.StatusBadGateway,
			UpstreamStatus: resp.StatusCode,
			Message:        "provider server error",
		}
	default:
		return nil, &Error{
			Kind:           KindRejected,
			StatusCode:     http.StatusBadGateway,
			UpstreamStatus: resp.StatusCode,
			Message:        detail,
		}
	}
}

// parseUsage extracts token counts from a provider response body.
func parseUsage(body []byte) Usage {
	var payload struct {
		Usage Usage `json:"usage"`
	}
	if errUnmarshal := json.Unmarshal(body, &payload); errUnmarshal != nil {
		return Usage{}
	}
	return payload.Usage
}

// readErrorBody reads a bounded prefix of an upstream error body.
func readErrorBody(r io.Reader) string {
	data, errRead := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if errRead != nil {
		return ""
	}
	return string(bytes.TrimSpace(data))
}

// isTimeout reports whether an error is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
