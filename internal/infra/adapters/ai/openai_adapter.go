package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"goods-registration/internal/domain"
	"goods-registration/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAICompatAdapter)(nil)

// OpenAICompatAdapter talks to any OpenAI-compatible chat-completions
// gateway (the default deployment targets io.net Intelligence). Payloads are
// built by hand because the describe cascade sends content shapes the
// official SDKs do not model, such as raw-base64 image parts.
type OpenAICompatAdapter struct {
	provider string
	apiKey   string
	base     string // e.g., https://api.intelligence.io.solutions/api/v1
	client   *http.Client

	retries int
	backoff time.Duration
}

func NewOpenAICompatAdapter(provider, apiKey, base string, timeout time.Duration) *OpenAICompatAdapter {
	if provider == "" {
		provider = "openai-compat"
	}
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAICompatAdapter{
		provider: provider,
		apiKey:   apiKey,
		base:     strings.TrimRight(base, "/"),
		client:   &http.Client{Timeout: timeout},
		retries:  3,
		backoff:  2 * time.Second,
	}
}

func (o *OpenAICompatAdapter) Provider() string { return o.provider }

func (o *OpenAICompatAdapter) Configured() bool { return o.apiKey != "" }

func (o *OpenAICompatAdapter) Chat(ctx context.Context, model string, messages []adapter.Message, temperature float64) (string, error) {
	if !o.Configured() {
		return "", domain.ErrCredentialsMissing
	}
	if model == "" {
		return "", fmt.Errorf("%s: %w: empty model", o.provider, domain.ErrInvalidInput)
	}

	reqBody := struct {
		Model       string            `json:"model"`
		Messages    []adapter.Message `json:"messages"`
		Temperature float64           `json:"temperature"`
	}{Model: model, Messages: messages, Temperature: temperature}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < o.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(o.backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		text, retryable, err := o.post(ctx, b)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", lastErr
}

// post performs one HTTP round trip. The bool reports whether the failure is
// transient (transport error, 429, 5xx) and worth another attempt.
func (o *OpenAICompatAdapter) post(ctx context.Context, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("%s http %d", o.provider, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("%s http %d", o.provider, resp.StatusCode)
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content flexContent `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", false, err
	}
	for _, c := range payload.Choices {
		if t := c.Message.Content.Text(); t != "" {
			return t, false, nil
		}
	}
	return "", false, errors.New("no choice content")
}

// flexContent accepts both the plain-string and typed-part response forms.
type flexContent struct {
	raw   string
	parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
}

func (f *flexContent) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &f.raw)
	}
	return json.Unmarshal(data, &f.parts)
}

func (f flexContent) Text() string {
	if f.raw != "" {
		return strings.TrimSpace(f.raw)
	}
	var texts []string
	for _, p := range f.parts {
		if (p.Type == "output_text" || p.Type == "text") && p.Text != "" {
			texts = append(texts, strings.TrimSpace(p.Text))
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}
