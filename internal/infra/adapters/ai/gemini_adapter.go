package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"goods-registration/internal/domain"
	"goods-registration/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

// GeminiAdapter serves the alternate-provider stage of the describe cascade
// through the official SDK. Multimodal parts are converted: image_url data
// URLs and raw base64 become inline bytes, plain URLs become file references.
// Transient failures are retried with the same bounded fixed backoff as the
// OpenAI-compatible adapter.
type GeminiAdapter struct {
	client *genai.Client

	retries int
	backoff time.Duration
}

func NewGeminiAdapter(ctx context.Context, apiKey, baseURL string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, retries: 3, backoff: 2 * time.Second}, nil
}

func (g *GeminiAdapter) Provider() string { return "gemini" }

func (g *GeminiAdapter) Configured() bool { return g != nil && g.client != nil }

func (g *GeminiAdapter) Chat(ctx context.Context, model string, messages []adapter.Message, temperature float64) (string, error) {
	if !g.Configured() {
		return "", domain.ErrCredentialsMissing
	}
	if len(messages) == 0 {
		return "", errors.New("gemini: no messages")
	}

	contents := toGenAIContents(messages)
	temp := float32(temperature)

	var resp *genai.GenerateContentResponse
	var lastErr error
	for attempt := 0; attempt < g.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(g.backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		var err error
		resp, err = g.client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
			Temperature: &temp,
		})
		if err == nil {
			break
		}
		lastErr = err
		if !retryableGeminiErr(err) {
			return "", err
		}
	}
	if resp == nil && lastErr != nil {
		return "", lastErr
	}

	text := ""
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var sb strings.Builder
		for _, p := range resp.Candidates[0].Content.Parts {
			if p != nil && p.Text != "" {
				sb.WriteString(p.Text)
			}
		}
		text = strings.TrimSpace(sb.String())
	}
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

// retryableGeminiErr reports whether a GenerateContent failure is transient:
// a transport-level error, a 429, or a 5xx from the API.
func retryableGeminiErr(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return true
}

func toGenAIContents(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		switch strings.ToLower(m.Role) {
		case "assistant", "model":
			role = genai.RoleModel
		case "system":
			// Gemini has no system role in history; fold into user turns.
			role = genai.RoleUser
		}
		parts := make([]*genai.Part, 0, len(m.Parts)+1)
		if m.Content != "" {
			parts = append(parts, &genai.Part{Text: m.Content})
		}
		for _, p := range m.Parts {
			if gp := toGenAIPart(p); gp != nil {
				parts = append(parts, gp)
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out
}

func toGenAIPart(p adapter.ContentPart) *genai.Part {
	switch {
	case p.Text != "":
		return &genai.Part{Text: p.Text}
	case p.Image != "":
		if data, err := base64.StdEncoding.DecodeString(p.Image); err == nil {
			return &genai.Part{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: data}}
		}
	case p.ImageURL != nil:
		url := p.ImageURL.URL
		if b64, ok := strings.CutPrefix(url, "data:image/jpeg;base64,"); ok {
			if data, err := base64.StdEncoding.DecodeString(b64); err == nil {
				return &genai.Part{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: data}}
			}
			return nil
		}
		return &genai.Part{FileData: &genai.FileData{MIMEType: "image/jpeg", FileURI: url}}
	}
	return nil
}
