package provider

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/agentmesh/runtime/pkg/types"
)

// Registry manages all available providers, keyed by provider id.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	// defaultModel is the "provider/model" string new runtimes resolve
	// against when an agent's config does not pin a model explicitly.
	defaultModel string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all available providers.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	return providers
}

// GetModel retrieves a specific model from a provider.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	provider, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}

	for _, model := range provider.Models() {
		if model.ID == modelID {
			return &model, nil
		}
	}

	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// AllModels returns all models from all providers, ranked by model quality.
func (r *Registry) AllModels() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []types.Model
	for _, p := range r.providers {
		models = append(models, p.Models()...)
	}

	sort.Slice(models, func(i, j int) bool {
		return modelPriority(models[i].ID) > modelPriority(models[j].ID)
	})

	return models
}

// DefaultModel returns the model a new run resolves to when an agent's
// config does not pin a "provider/model" string of its own.
func (r *Registry) DefaultModel() (*types.Model, error) {
	if r.defaultModel != "" {
		providerID, modelID := ParseModelString(r.defaultModel)
		if m, err := r.GetModel(providerID, modelID); err == nil {
			return m, nil
		}
	}

	if m, err := r.GetModel("anthropic", "claude-sonnet-4-20250514"); err == nil {
		return m, nil
	}

	models := r.AllModels()
	if len(models) == 0 {
		return nil, fmt.Errorf("no models available")
	}
	return &models[0], nil
}

// ParseModelString parses a "provider/model" string.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

func modelPriority(modelID string) int {
	switch {
	case strings.Contains(modelID, "gpt-5"):
		return 100
	case strings.Contains(modelID, "claude-sonnet-4"):
		return 90
	case strings.Contains(modelID, "claude-opus"):
		return 85
	case strings.Contains(modelID, "gpt-4o"):
		return 80
	case strings.Contains(modelID, "claude-3-5"):
		return 75
	default:
		return 50
	}
}

// InitializeFromEnv registers Anthropic/OpenAI providers discovered from
// ANTHROPIC_API_KEY / OPENAI_API_KEY, and sets the default model from
// AGENTMESH_DEFAULT_MODEL ("provider/model") when set. Providers that fail
// to construct (missing key, transport error) are skipped rather than
// failing the whole registry, so one misconfigured provider never blocks
// agents pinned to the other.
func (r *Registry) InitializeFromEnv(ctx context.Context) {
	r.defaultModel = os.Getenv("AGENTMESH_DEFAULT_MODEL")

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		p, err := NewAnthropicProvider(ctx, &AnthropicConfig{ID: "anthropic", APIKey: apiKey, MaxTokens: 8192})
		if err == nil {
			r.Register(p)
		}
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		p, err := NewOpenAIProvider(ctx, &OpenAIConfig{ID: "openai", APIKey: apiKey, MaxTokens: 4096})
		if err == nil {
			r.Register(p)
		}
	}
}
