package adapter

import (
	"context"
	"encoding/json"
)

// ContentPart is one typed element of a multimodal message. Exactly one of
// Text, ImageURL or Image is set, matching the wire contract of
// chat-completions style providers.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
	// Image carries bare base64 bytes for providers that accept raw
	// encodings instead of data URLs.
	Image string `json:"image,omitempty"`
}

// ImageURL wraps a URL-typed image reference (public URL or data URL).
type ImageURL struct {
	URL string `json:"url"`
}

// Message is a chat message. Content is either a plain string or a list of
// typed parts; MarshalJSON emits whichever form is populated.
type Message struct {
	Role    string
	Content string
	Parts   []ContentPart
}

func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Parts) > 0 {
		return json.Marshal(struct {
			Role    string        `json:"role"`
			Content []ContentPart `json:"content"`
		}{m.Role, m.Parts})
	}
	return json.Marshal(struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{m.Role, m.Content})
}

// TextMessage builds a plain-text message.
func TextMessage(role, content string) Message {
	return Message{Role: role, Content: content}
}

// AIServiceAdapter is the port for chat/vision model calls. Implementations
// retry transient transport failures internally (bounded, fixed backoff) and
// surface everything else as an error. Output validity is the caller's
// concern.
type AIServiceAdapter interface {
	// Provider names the backing service for logging and metrics.
	Provider() string
	// Configured reports whether credentials are present.
	Configured() bool
	// Chat sends messages to the given model and returns the assistant text.
	Chat(ctx context.Context, model string, messages []Message, temperature float64) (string, error)
}
