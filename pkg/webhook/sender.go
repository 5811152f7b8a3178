package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// Classification describes why an attempt failed, for observability and
// policy decisions. Retry policy is owned by the caller; the classification
// only reports what happened on the wire.
type Classification int

const (
	// ClassNone means the attempt succeeded.
	ClassNone Classification = iota
	// ClassTransient covers timeouts, connection errors, 5xx, and 429.
	ClassTransient
	// ClassPermanent covers 4xx responses (except 408, 425, 429) that are
	// unlikely to succeed on retry.
	ClassPermanent
)

// String returns the string representation of the classification.
func (c Classification) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Request describes a single outbound delivery attempt.
type Request struct {
	URL     string
	Payload []byte
	Headers map[string]string
	Timeout time.Duration
}

// Result captures the outcome of one delivery attempt. Delivered is true for
// any 2xx response; everything else carries a classification and, where a
// response was received, the status code and a sanitized body excerpt.
type Result struct {
	Delivered   bool
	StatusCode  int
	BodyExcerpt string
	Duration    time.Duration
	Class       Classification
	Err         error
}

// Sender performs single-shot webhook delivery attempts.
// Zero value is not usable; use NewSender to create instances.
type Sender struct {
	// client is reused across requests for connection pooling
	client *http.Client
}

// NewSender creates a sender with a pooled HTTP client tuned for fan-out to
// many distinct endpoints. Per-attempt timeouts come from Request.Timeout, so
// the client itself carries no timeout.
func NewSender() *Sender {
	return &Sender{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// NewSenderWithClient creates a sender with a custom HTTP client.
// This allows for custom transports, proxies, or testing.
func NewSenderWithClient(client *http.Client) *Sender {
	if client == nil {
		return NewSender()
	}
	return &Sender{client: client}
}

const (
	defaultAttemptTimeout = 10 * time.Second
	maxExcerptLen         = 200
	maxBodyRead           = 64 * 1024
)

// Attempt performs exactly one HTTP POST and classifies the outcome. It never
// retries; callers that want retries schedule another Attempt. The request
// body is sent as-is with Content-Type: application/json.
func (s *Sender) Attempt(ctx context.Context, req Request) Result {
	start := time.Now()

	if err := validateRequest(req); err != nil {
		return Result{Class: ClassPermanent, Err: err, Duration: time.Since(start)}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, req.URL, bytes.NewReader(req.Payload))
	if err != nil {
		return Result{Class: ClassPermanent, Err: fmt.Errorf("%w: %w", ErrInvalidURL, err), Duration: time.Since(start)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "hookrelay/1.0")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		result := Result{Class: ClassTransient, Duration: time.Since(start)}
		if reqCtx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			result.Err = fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, err)
		} else {
			result.Err = fmt.Errorf("%w: %w", ErrConnection, err)
		}
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	// Bounded read: excerpt is for the delivery log, not the full response.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))

	result := Result{
		StatusCode:  resp.StatusCode,
		BodyExcerpt: excerpt(body),
		Duration:    time.Since(start),
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Delivered = true
		return result
	}

	result.Class = classifyStatus(resp.StatusCode)
	result.Err = fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	return result
}

func validateRequest(req Request) error {
	if req.URL == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidURL)
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	// Restrict to HTTP/HTTPS to prevent scheme-based SSRF
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: only http and https schemes are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	if len(req.Payload) == 0 {
		return fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}
	return nil
}

// classifyStatus maps non-2xx codes to a failure class based on HTTP
// semantics. 4xx responses generally won't change on retry; the exceptions
// are server-side rate limiting and timing codes.
func classifyStatus(statusCode int) Classification {
	if statusCode >= 400 && statusCode < 500 {
		switch statusCode {
		case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
			return ClassTransient
		default:
			return ClassPermanent
		}
	}
	return ClassTransient
}

// excerpt sanitizes a response body for storage in the delivery log.
// Newlines are flattened to keep log lines intact; truncation lands on a
// rune boundary so the stored excerpt stays valid UTF-8.
func excerpt(body []byte) string {
	s := strings.ReplaceAll(string(body), "\n", " ")
	if len(s) > maxExcerptLen {
		cut := maxExcerptLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}
