package models

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/skillian-ai/skillian/internal/config"
	"github.com/skillian-ai/skillian/internal/orchestrator"
)

// Router selects among registered providers by model ID and falls back down
// a configured chain when the primary fails. It implements ModelProvider
// itself, so the conversation loop stays provider-agnostic.
type Router struct {
	providers map[string]orchestrator.ModelProvider
	models    map[string]*ModelInfo // "provider/model-id" -> info
	fallback  []string
	usage     *UsageTracker
	logger    *slog.Logger
	mu        sync.RWMutex
}

// ModelInfo ties a routable model ID to its provider.
type ModelInfo struct {
	ID           string
	Provider     string
	Config       config.Model
	ProviderImpl orchestrator.ModelProvider
}

// UsageTracker accumulates token usage per model.
type UsageTracker struct {
	mu    sync.Mutex
	usage map[string]*ModelUsage
}

// ModelUsage is the accumulated usage for one model.
type ModelUsage struct {
	Requests     int64
	TokensInput  int64
	TokensOutput int64
}

// NewRouter creates an empty router. fallback is tried in order whenever
// the requested model fails.
func NewRouter(fallback []string, logger *slog.Logger) *Router {
	return &Router{
		providers: make(map[string]orchestrator.ModelProvider),
		models:    make(map[string]*ModelInfo),
		fallback:  fallback,
		usage:     &UsageTracker{usage: make(map[string]*ModelUsage)},
		logger:    logger.With("component", "model_router"),
	}
}

// RegisterProvider adds a provider and indexes all its models.
func (r *Router) RegisterProvider(p orchestrator.ModelProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	r.providers[name] = p
	for _, model := range p.Models() {
		fullID := fmt.Sprintf("%s/%s", name, model.ID)
		r.models[fullID] = &ModelInfo{
			ID:           fullID,
			Provider:     name,
			Config:       model,
			ProviderImpl: p,
		}
		r.logger.Info("model registered", "id", fullID, "context", model.ContextWindow)
	}
}

func (r *Router) Name() string { return "router" }

// Models returns every routable model across providers.
func (r *Router) Models() []config.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]config.Model, 0, len(r.models))
	for id, info := range r.models {
		m := info.Config
		m.ID = id
		out = append(out, m)
	}
	return out
}

// Chat routes req.Model ("provider/model-id") to its provider, walking the
// fallback chain on failure.
func (r *Router) Chat(ctx context.Context, req orchestrator.ChatRequest) (*orchestrator.ChatResponse, error) {
	resp, err := r.chatSingle(ctx, req.Model, req)
	if err == nil {
		return resp, nil
	}

	r.logger.Warn("primary model failed, trying fallback",
		"primary", req.Model, "error", err, "fallbacks", len(r.fallback))

	for i, fb := range r.fallback {
		if fb == req.Model {
			continue
		}
		r.logger.Info("trying fallback", "model", fb, "attempt", i+1)
		resp, fbErr := r.chatSingle(ctx, fb, req)
		if fbErr == nil {
			return resp, nil
		}
		r.logger.Warn("fallback failed", "model", fb, "error", fbErr)
	}
	return nil, fmt.Errorf("all models failed, primary error: %w", err)
}

func (r *Router) chatSingle(ctx context.Context, modelID string, req orchestrator.ChatRequest) (*orchestrator.ChatResponse, error) {
	_, model, err := parseModelID(modelID)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	info, ok := r.models[modelID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", modelID)
	}

	req.Model = model
	resp, err := info.ProviderImpl.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	r.usage.record(modelID, resp.TokensInput, resp.TokensOutput)
	return resp, nil
}

// Usage returns a copy of the accumulated usage for a model ID.
func (r *Router) Usage(modelID string) ModelUsage {
	r.usage.mu.Lock()
	defer r.usage.mu.Unlock()
	if u, ok := r.usage.usage[modelID]; ok {
		return *u
	}
	return ModelUsage{}
}

func (t *UsageTracker) record(modelID string, in, out int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.usage[modelID]
	if !ok {
		u = &ModelUsage{}
		t.usage[modelID] = u
	}
	u.Requests++
	u.TokensInput += int64(in)
	u.TokensOutput += int64(out)
}

// parseModelID splits "provider/model-name" into its parts.
func parseModelID(id string) (provider, model string, err error) {
	parts := strings.SplitN(id, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model ID %q, expected provider/model", id)
	}
	return parts[0], parts[1], nil
}

// NewProviderFromConfig constructs the right adapter for a provider config.
func NewProviderFromConfig(cfg config.ProviderConfig) (orchestrator.ModelProvider, error) {
	switch cfg.Type {
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "ollama":
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}
