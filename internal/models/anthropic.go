// Package models implements LLM provider adapters and the routing layer
// that selects among them.
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

// AnthropicProvider implements ModelProvider for Anthropic's Messages API.
type AnthropicProvider struct {
	name    string
	baseURL string
	apiKey  string
	models  []config.Model
	client  *http.Client
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

// anthropicMessage content is a list of blocks: text, tool_use on assistant
// turns, tool_result on the following user turn.
type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content []struct {
		Type  string         `json:"type"`
		Text  string         `json:"text"`
		ID    string         `json:"id"`
		Name  string         `json:"name"`
		Input map[string]any `json:"input"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg config.ProviderConfig) *AnthropicProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	name := cfg.Name
	if name == "" {
		name = "anthropic"
	}
	return &AnthropicProvider{
		name:    name,
		baseURL: baseURL,
		apiKey:  cfg.ResolveAPIKey(),
		models:  cfg.Models,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *AnthropicProvider) Name() string { return p.name }

func (p *AnthropicProvider) Models() []config.Model { return p.models }

func (p *AnthropicProvider) Chat(ctx context.Context, req orchestrator.ChatRequest) (*orchestrator.ChatResponse, error) {
	msgs := convertAnthropicMessages(req.Messages)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	body := anthropicRequest{
		Model:     req.Model,
		MaxTokens: maxTokens,
		System:    req.SystemPrompt,
		Messages:  msgs,
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

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
		var apiErr anthropicError
		if err := json.Unmarshal(respBody, &apiErr); err != nil {
			return nil, fmt.Errorf("API error %d (failed to parse error body: %w)", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("API error %d: %s - %s",
			resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	content := ""
	var toolCalls []orchestrator.ToolCall
	for _, c := range apiResp.Content {
		switch c.Type {
		case "text":
			content += c.Text
		case "tool_use":
			toolCalls = append(toolCalls, orchestrator.ToolCall{
				ID:        c.ID,
				Name:      c.Name,
				Arguments: c.Input,
			})
		}
	}

	return &orchestrator.ChatResponse{
		Content:      content,
		ToolCalls:    toolCalls,
		Model:        apiResp.Model,
		TokensInput:  apiResp.Usage.InputTokens,
		TokensOutput: apiResp.Usage.OutputTokens,
		FinishReason: apiResp.StopReason,
	}, nil
}

// convertAnthropicMessages maps the neutral history onto Anthropic's block
// structure: assistant tool calls become tool_use blocks, tool results
// become tool_result blocks on a user turn.
func convertAnthropicMessages(history []orchestrator.ChatMessage) []anthropicMessage {
	var msgs []anthropicMessage
	for _, m := range history {
		switch m.Role {
		case "assistant":
			var blocks []anthropicBlock
			if m.Content != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Arguments,
				})
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: ""})
			}
			msgs = append(msgs, anthropicMessage{Role: "assistant", Content: blocks})
		case "tool":
			block := anthropicBlock{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
			}
			// Anthropic expects tool results on a user turn; fold
			// consecutive results into one message.
			if n := len(msgs); n > 0 && msgs[n-1].Role == "user" && msgs[n-1].Content[0].Type == "tool_result" {
				msgs[n-1].Content = append(msgs[n-1].Content, block)
				continue
			}
			msgs = append(msgs, anthropicMessage{Role: "user", Content: []anthropicBlock{block}})
		default:
			msgs = append(msgs, anthropicMessage{
				Role:    "user",
				Content: []anthropicBlock{{Type: "text", Text: m.Content}},
			})
		}
	}
	return msgs
}
