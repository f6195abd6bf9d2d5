package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/genai"

	"goods-registration/internal/domain/ports/adapter"
)

func newGeminiTestAdapter(t *testing.T, base string) *GeminiAdapter {
	t.Helper()
	a, err := NewGeminiAdapter(context.Background(), "key", base)
	if err != nil {
		t.Fatal(err)
	}
	a.backoff = 0
	return a
}

func TestGeminiChatRetriesTransientFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"黒いアクリルスタンドです。"}]}}]}`))
	}))
	defer srv.Close()

	got, err := newGeminiTestAdapter(t, srv.URL).Chat(context.Background(), "gemini-2.0-flash", []adapter.Message{adapter.TextMessage("user", "hi")}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != "黒いアクリルスタンドです。" || hits != 3 {
		t.Errorf("text=%q hits=%d, want success on the third attempt", got, hits)
	}
}

func TestGeminiChatGivesUpAfterThreeAttempts(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
	}))
	defer srv.Close()

	_, err := newGeminiTestAdapter(t, srv.URL).Chat(context.Background(), "gemini-2.0-flash", []adapter.Message{adapter.TextMessage("user", "hi")}, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if hits != 3 {
		t.Errorf("hits = %d, want exactly 3 attempts", hits)
	}
}

func TestGeminiChatDoesNotRetryClientErrors(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad request","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	_, err := newGeminiTestAdapter(t, srv.URL).Chat(context.Background(), "gemini-2.0-flash", []adapter.Message{adapter.TextMessage("user", "hi")}, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if hits != 1 {
		t.Errorf("hits = %d, 4xx must not be retried", hits)
	}
}

func TestRetryableGeminiErr(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("connection reset"), true},
		{genai.APIError{Code: http.StatusTooManyRequests}, true},
		{genai.APIError{Code: http.StatusServiceUnavailable}, true},
		{genai.APIError{Code: http.StatusBadRequest}, false},
		{genai.APIError{Code: http.StatusNotFound}, false},
	}
	for _, c := range cases {
		if got := retryableGeminiErr(c.err); got != c.want {
			t.Errorf("retryableGeminiErr(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
