package models

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/skillian-ai/skillian/internal/config"
	"github.com/skillian-ai/skillian/internal/orchestrator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// stubProvider answers with a fixed response or error and records the model
// it was asked for.
type stubProvider struct {
	name      string
	models    []config.Model
	resp      *orchestrator.ChatResponse
	err       error
	lastModel string
	calls     int
}

func (p *stubProvider) Name() string           { return p.name }
func (p *stubProvider) Models() []config.Model { return p.models }

func (p *stubProvider) Chat(_ context.Context, req orchestrator.ChatRequest) (*orchestrator.ChatResponse, error) {
	p.calls++
	p.lastModel = req.Model
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}

func TestRouterRoutesByPrefix(t *testing.T) {
	primary := &stubProvider{
		name:   "anthropic",
		models: []config.Model{{ID: "claude-sonnet-4"}},
		resp:   &orchestrator.ChatResponse{Content: "from anthropic", TokensInput: 10, TokensOutput: 5},
	}
	r := NewRouter(nil, testLogger())
	r.RegisterProvider(primary)

	resp, err := r.Chat(context.Background(), orchestrator.ChatRequest{Model: "anthropic/claude-sonnet-4"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "from anthropic" {
		t.Errorf("content = %q", resp.Content)
	}
	// The provider receives the bare model ID, not the routed form.
	if primary.lastModel != "claude-sonnet-4" {
		t.Errorf("provider saw model %q", primary.lastModel)
	}

	usage := r.Usage("anthropic/claude-sonnet-4")
	if usage.Requests != 1 || usage.TokensInput != 10 || usage.TokensOutput != 5 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestRouterFallbackChain(t *testing.T) {
	broken := &stubProvider{
		name:   "anthropic",
		models: []config.Model{{ID: "claude-sonnet-4"}},
		err:    errors.New("rate limited"),
	}
	backup := &stubProvider{
		name:   "ollama",
		models: []config.Model{{ID: "llama3"}},
		resp:   &orchestrator.ChatResponse{Content: "from backup"},
	}

	r := NewRouter([]string{"ollama/llama3"}, testLogger())
	r.RegisterProvider(broken)
	r.RegisterProvider(backup)

	resp, err := r.Chat(context.Background(), orchestrator.ChatRequest{Model: "anthropic/claude-sonnet-4"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "from backup" {
		t.Errorf("content = %q", resp.Content)
	}
	if broken.calls != 1 || backup.calls != 1 {
		t.Errorf("calls: primary %d, backup %d", broken.calls, backup.calls)
	}
}

func TestRouterAllModelsFailed(t *testing.T) {
	broken := &stubProvider{
		name:   "anthropic",
		models: []config.Model{{ID: "claude-sonnet-4"}},
		err:    errors.New("down"),
	}
	r := NewRouter([]string{"anthropic/claude-sonnet-4"}, testLogger())
	r.RegisterProvider(broken)

	_, err := r.Chat(context.Background(), orchestrator.ChatRequest{Model: "anthropic/claude-sonnet-4"})
	if err == nil {
		t.Fatal("expected failure when the only model is down")
	}
	// The fallback matching the primary is skipped, not retried.
	if broken.calls != 1 {
		t.Errorf("primary called %d times", broken.calls)
	}
}

func TestRouterUnknownModel(t *testing.T) {
	r := NewRouter(nil, testLogger())
	if _, err := r.Chat(context.Background(), orchestrator.ChatRequest{Model: "anthropic/claude-sonnet-4"}); err == nil {
		t.Fatal("unknown model accepted")
	}
}

func TestRouterModelsNamespaced(t *testing.T) {
	r := NewRouter(nil, testLogger())
	r.RegisterProvider(&stubProvider{
		name:   "ollama",
		models: []config.Model{{ID: "llama3"}, {ID: "qwen2"}},
	})

	models := r.Models()
	if len(models) != 2 {
		t.Fatalf("models = %+v", models)
	}
	ids := map[string]bool{}
	for _, m := range models {
		ids[m.ID] = true
	}
	if !ids["ollama/llama3"] || !ids["ollama/qwen2"] {
		t.Errorf("ids = %v", ids)
	}
}

func TestParseModelID(t *testing.T) {
	provider, model, err := parseModelID("anthropic/claude-sonnet-4")
	if err != nil {
		t.Fatal(err)
	}
	if provider != "anthropic" || model != "claude-sonnet-4" {
		t.Errorf("got %q/%q", provider, model)
	}

	for _, bad := range []string{"", "noslash", "/model", "provider/"} {
		if _, _, err := parseModelID(bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}

	// Model IDs may themselves contain slashes.
	_, model, err = parseModelID("openai/org/gpt-4o")
	if err != nil {
		t.Fatal(err)
	}
	if model != "org/gpt-4o" {
		t.Errorf("model = %q", model)
	}
}

func TestNewProviderFromConfig(t *testing.T) {
	for _, typ := range []string{"anthropic", "openai", "ollama"} {
		p, err := NewProviderFromConfig(config.ProviderConfig{Name: typ, Type: typ})
		if err != nil {
			t.Errorf("%s: %v", typ, err)
			continue
		}
		if p.Name() != typ {
			t.Errorf("%s: name = %q", typ, p.Name())
		}
	}
	if _, err := NewProviderFromConfig(config.ProviderConfig{Name: "x", Type: "bedrock"}); err == nil {
		t.Error("unknown provider type accepted")
	}
}
