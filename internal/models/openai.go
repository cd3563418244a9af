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

// OpenAIProvider implements ModelProvider for OpenAI-compatible APIs.
// Works with OpenAI, OpenRouter, Together, and any compatible endpoint.
type OpenAIProvider struct {
	name    string
	baseURL string
	apiKey  string
	models  []config.Model
	client  *http.Client
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"` // always "function"
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"` // JSON-encoded
	} `json:"function"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(cfg config.ProviderConfig) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &OpenAIProvider{
		name:    name,
		baseURL: baseURL,
		apiKey:  cfg.ResolveAPIKey(),
		models:  cfg.Models,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Models() []config.Model { return p.models }

func (p *OpenAIProvider) Chat(ctx context.Context, req orchestrator.ChatRequest) (*orchestrator.ChatResponse, error) {
	msgs := make([]openAIMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		om := openAIMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			argsJSON, err := json.Marshal(tc.Arguments)
			if err != nil {
				return nil, fmt.Errorf("marshal tool call arguments: %w", err)
			}
			otc := openAIToolCall{ID: tc.ID, Type: "function"}
			otc.Function.Name = tc.Name
			otc.Function.Arguments = string(argsJSON)
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		msgs = append(msgs, om)
	}

	body := openAIRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      false,
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

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

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
		var apiErr openAIError
		_ = json.Unmarshal(respBody, &apiErr)
		return nil, fmt.Errorf("API error %d: %s (%s)",
			resp.StatusCode, apiErr.Error.Message, apiErr.Error.Type)
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from API")
	}

	choice := apiResp.Choices[0]
	var toolCalls []orchestrator.ToolCall
	for _, otc := range choice.Message.ToolCalls {
		args := make(map[string]any)
		if otc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(otc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("parse tool call arguments for %s: %w", otc.Function.Name, err)
			}
		}
		toolCalls = append(toolCalls, orchestrator.ToolCall{
			ID:        otc.ID,
			Name:      otc.Function.Name,
			Arguments: args,
		})
	}

	return &orchestrator.ChatResponse{
		Content:      choice.Message.Content,
		ToolCalls:    toolCalls,
		Model:        apiResp.Model,
		TokensInput:  apiResp.Usage.PromptTokens,
		TokensOutput: apiResp.Usage.CompletionTokens,
		FinishReason: choice.FinishReason,
	}, nil
}
