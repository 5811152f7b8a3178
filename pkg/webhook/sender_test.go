package webhook_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/pkg/webhook"
)

func TestSender_Attempt_Success(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"event":"test","id":"123"}`)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "hookrelay/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "delivery-1", r.Header.Get("X-Webhook-Delivery"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, payload, body)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	defer server.Close()

	sender := webhook.NewSender()
	result := sender.Attempt(context.Background(), webhook.Request{
		URL:     server.URL,
		Payload: payload,
		Headers: map[string]string{"X-Webhook-Delivery": "delivery-1"},
	})

	assert.True(t, result.Delivered)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, webhook.ClassNone, result.Class)
	assert.NoError(t, result.Err)
}

func TestSender_Attempt_NeverRetries(t *testing.T) {
	t.Parallel()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sender := webhook.NewSender()
	result := sender.Attempt(context.Background(), webhook.Request{
		URL:     server.URL,
		Payload: []byte(`{}`),
	})

	assert.False(t, result.Delivered)
	assert.Equal(t, 1, calls)
}

func TestSender_Attempt_Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   webhook.Classification
	}{
		{"500 is transient", http.StatusInternalServerError, webhook.ClassTransient},
		{"503 is transient", http.StatusServiceUnavailable, webhook.ClassTransient},
		{"429 is transient", http.StatusTooManyRequests, webhook.ClassTransient},
		{"408 is transient", http.StatusRequestTimeout, webhook.ClassTransient},
		{"404 is permanent", http.StatusNotFound, webhook.ClassPermanent},
		{"401 is permanent", http.StatusUnauthorized, webhook.ClassPermanent},
		{"400 is permanent", http.StatusBadRequest, webhook.ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			result := webhook.NewSender().Attempt(context.Background(), webhook.Request{
				URL:     server.URL,
				Payload: []byte(`{}`),
			})

			assert.False(t, result.Delivered)
			assert.Equal(t, tt.status, result.StatusCode)
			assert.Equal(t, tt.want, result.Class)
			assert.Error(t, result.Err)
		})
	}
}

func TestSender_Attempt_BodyExcerpt(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("line one\nline two " + strings.Repeat("x", 300)))
	}))
	defer server.Close()

	result := webhook.NewSender().Attempt(context.Background(), webhook.Request{
		URL:     server.URL,
		Payload: []byte(`{}`),
	})

	assert.NotContains(t, result.BodyExcerpt, "\n")
	assert.LessOrEqual(t, len(result.BodyExcerpt), 203) // 200 chars + ellipsis
	assert.True(t, strings.HasSuffix(result.BodyExcerpt, "..."))
}

func TestSender_Attempt_BodyExcerptMultibyte(t *testing.T) {
	t.Parallel()

	// 3-byte runes; 200 is not a multiple of 3, so a byte-index cut would
	// split a rune.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("日本語テスト", 30)))
	}))
	defer server.Close()

	result := webhook.NewSender().Attempt(context.Background(), webhook.Request{
		URL:     server.URL,
		Payload: []byte(`{}`),
	})

	assert.True(t, utf8.ValidString(result.BodyExcerpt), "truncation must not split a rune")
	assert.True(t, strings.HasSuffix(result.BodyExcerpt, "..."))
	assert.LessOrEqual(t, len(result.BodyExcerpt), 203)
}

func TestSender_Attempt_Timeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := webhook.NewSender().Attempt(context.Background(), webhook.Request{
		URL:     server.URL,
		Payload: []byte(`{}`),
		Timeout: 50 * time.Millisecond,
	})

	assert.False(t, result.Delivered)
	assert.Equal(t, webhook.ClassTransient, result.Class)
	assert.ErrorIs(t, result.Err, webhook.ErrTimeout)
}

func TestSender_Attempt_ConnectionError(t *testing.T) {
	t.Parallel()

	// Port from a closed listener: connection refused
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	result := webhook.NewSender().Attempt(context.Background(), webhook.Request{
		URL:     url,
		Payload: []byte(`{}`),
	})

	assert.False(t, result.Delivered)
	assert.Equal(t, webhook.ClassTransient, result.Class)
	assert.ErrorIs(t, result.Err, webhook.ErrConnection)
}

func TestSender_Attempt_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     webhook.Request
		wantErr error
	}{
		{"empty URL", webhook.Request{Payload: []byte(`{}`)}, webhook.ErrInvalidURL},
		{"bad scheme", webhook.Request{URL: "ftp://example.com", Payload: []byte(`{}`)}, webhook.ErrInvalidURL},
		{"no host", webhook.Request{URL: "https://", Payload: []byte(`{}`)}, webhook.ErrInvalidURL},
		{"empty payload", webhook.Request{URL: "https://example.com"}, webhook.ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := webhook.NewSender().Attempt(context.Background(), tt.req)
			assert.False(t, result.Delivered)
			assert.Equal(t, webhook.ClassPermanent, result.Class)
			assert.ErrorIs(t, result.Err, tt.wantErr)
		})
	}
}

func TestSender_Attempt_CustomClient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := webhook.NewSenderWithClient(server.Client())
	result := sender.Attempt(context.Background(), webhook.Request{
		URL:     server.URL,
		Payload: []byte(`{}`),
	})

	assert.True(t, result.Delivered)
	assert.Equal(t, http.StatusNoContent, result.StatusCode)
}

func TestSender_Attempt_ContextCancellation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := webhook.NewSender().Attempt(ctx, webhook.Request{
		URL:     server.URL,
		Payload: []byte(`{}`),
	})

	assert.False(t, result.Delivered)
	assert.Error(t, result.Err)
}
