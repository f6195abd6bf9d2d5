package ai

import (
	"context"
	"strings"

	"goods-registration/internal/domain"
	"goods-registration/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*MultiAIAdapter)(nil)

// MultiAIAdapter routes each call to a provider by model name. The describe
// cascade addresses primary, fallback and alternate models through one
// adapter; this keeps the cascade table free of provider wiring.
type MultiAIAdapter struct {
	defaultProvider string
	byProvider      map[string]adapter.AIServiceAdapter
}

func NewMultiAIAdapter(defaultProvider string, byProvider map[string]adapter.AIServiceAdapter) *MultiAIAdapter {
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
	}
}

func (m *MultiAIAdapter) resolveProvider(model string) string {
	l := strings.ToLower(model)
	if strings.HasPrefix(l, "gemini") || strings.HasPrefix(l, "google/") {
		return "gemini"
	}
	return m.defaultProvider
}

func (m *MultiAIAdapter) pick(model string) adapter.AIServiceAdapter {
	if a := m.byProvider[m.resolveProvider(model)]; a != nil && a.Configured() {
		return a
	}
	// last resort: first configured provider
	for _, a := range m.byProvider {
		if a != nil && a.Configured() {
			return a
		}
	}
	return nil
}

func (m *MultiAIAdapter) Provider() string { return "multi" }

func (m *MultiAIAdapter) Configured() bool {
	for _, a := range m.byProvider {
		if a != nil && a.Configured() {
			return true
		}
	}
	return false
}

func (m *MultiAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message, temperature float64) (string, error) {
	a := m.pick(model)
	if a == nil {
		return "", domain.ErrCredentialsMissing
	}
	return a.Chat(ctx, model, messages, temperature)
}
