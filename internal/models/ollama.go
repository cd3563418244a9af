package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skillian-ai/skillian/internal/config"
	"github.com/skillian-ai/skillian/internal/orchestrator"
)

// OllamaProvider implements ModelProvider for a local Ollama server.
type OllamaProvider struct {
	name    string
	baseURL string
	models  []config.Model
	client  *http.Client
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []openAITool    `json:"tools,omitempty"` // Ollama uses the OpenAI tool shape
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaResponse struct {
	Model     string        `json:"model"`
	Message   ollamaMessage `json:"message"`
	Done      bool          `json:"done"`
	EvalCount int           `json:"eval_count"`
	// Prompt tokens
	PromptEvalCount int `json:"prompt_eval_count"`
}

// NewOllamaProvider creates a provider for a local Ollama instance.
func NewOllamaProvider(cfg config.ProviderConfig) *OllamaProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	name := cfg.Name
	if name == "" {
		name = "ollama"
	}
	return &OllamaProvider{
		name:    name,
		baseURL: baseURL,
		models:  cfg.Models,
		client:  &http.Client{Timeout: 300 * time.Second}, // local inference is slow
	}
}

func (p *OllamaProvider) Name() string { return p.name }

func (p *OllamaProvider) Models() []config.Model { return p.models }

func (p *OllamaProvider) Chat(ctx context.Context, req orchestrator.ChatRequest) (*orchestrator.ChatResponse, error) {
	msgs := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			var otc ollamaToolCall
			otc.Function.Name = tc.Name
			otc.Function.Arguments = tc.Arguments
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		msgs = append(msgs, om)
	}

	body := ollamaRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("ollama error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp ollamaResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	var toolCalls []orchestrator.ToolCall
	for _, otc := range apiResp.Message.ToolCalls {
		toolCalls = append(toolCalls, orchestrator.ToolCall{
			Name:      otc.Function.Name,
			Arguments: otc.Function.Arguments,
		})
	}

	return &orchestrator.ChatResponse{
		Content:      apiResp.Message.Content,
		ToolCalls:    toolCalls,
		Model:        apiResp.Model,
		TokensInput:  apiResp.PromptEvalCount,
		TokensOutput: apiResp.EvalCount,
		FinishReason: "stop",
	}, nil
}
