package llm

import (
	"context"
	"fmt"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chatter abstracts a text inference backend. The companion and the interest
// extractor depend on this interface instead of a concrete client; both the
// managed primary endpoint and the self-hosted fallback satisfy it.
type Chatter interface {
	// Chat sends messages to the given model and returns the assistant's response.
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool
}

// Provider selects which inference backend a call should target.
type Provider string

const (
	ProviderPrimary  Provider = "primary"
	ProviderFallback Provider = "fallback"
)

// ParseProvider maps a request string onto a Provider. The empty string
// defaults to the primary backend.
func ParseProvider(s string) (Provider, error) {
	switch s {
	case "", string(ProviderPrimary):
		return ProviderPrimary, nil
	case string(ProviderFallback):
		return ProviderFallback, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

// Picker routes Provider values to concrete backends.
type Picker struct {
	primary  Chatter
	fallback Chatter
}

// NewPicker creates a Picker over the two configured backends.
func NewPicker(primary, fallback Chatter) *Picker {
	return &Picker{primary: primary, fallback: fallback}
}

// Pick returns the backend for the given provider. An unknown provider
// falls back to primary; callers validate with ParseProvider first.
func (p *Picker) Pick(provider Provider) Chatter {
	if provider == ProviderFallback && p.fallback != nil {
		return p.fallback
	}
	return p.primary
}
