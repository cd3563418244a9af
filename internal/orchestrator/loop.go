package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/skillian-ai/skillian/internal/config"
	"github.com/skillian-ai/skillian/internal/skills"
)

// Loop drives one conversation: ask the model, maybe run tools, feed the
// results back, until the model answers in plain text or the iteration cap
// is hit. The tool set is re-bound from the registry every turn, so a
// hot-reload lands on the next iteration of every in-flight conversation.
type Loop struct {
	registry *skills.Registry
	provider ModelProvider
	logger   *slog.Logger

	conversationID string
	model          string
	systemPrompt   string
	maxIterations  int
	maxParallel    int
	maxTokens      int
	temperature    float64
	toolTimeout    time.Duration
	modelTimeout   time.Duration

	history []ChatMessage
}

// NewLoop creates a conversation loop. The history starts empty and
// persists across Run calls, so one Loop is one conversation.
func NewLoop(registry *skills.Registry, provider ModelProvider, cfg config.AgentConfig, logger *slog.Logger) *Loop {
	id := uuid.NewString()
	return &Loop{
		registry:       registry,
		provider:       provider,
		logger:         logger.With("component", "loop", "conversation", id),
		conversationID: id,
		model:          cfg.Model,
		systemPrompt:   cfg.SystemPrompt,
		maxIterations:  cfg.MaxIterations,
		maxParallel:    cfg.MaxParallel,
		maxTokens:      cfg.MaxTokens,
		temperature:    cfg.Temperature,
		toolTimeout:    time.Duration(cfg.ToolTimeoutSecs) * time.Second,
		modelTimeout:   time.Duration(cfg.ModelTimeoutSecs) * time.Second,
	}
}

// ConversationID returns the loop's stable identifier.
func (l *Loop) ConversationID() string { return l.conversationID }

// History returns a copy of the conversation so far.
func (l *Loop) History() []ChatMessage {
	out := make([]ChatMessage, len(l.history))
	copy(out, l.history)
	return out
}

// Run processes one user message through the conversation cycle and
// returns the final answer with the ordered list of performed invocations.
// Validation and execution failures become tool-result content so the
// model can retry; only cap exhaustion and model transport failures are
// returned as errors.
func (l *Loop) Run(ctx context.Context, userMessage string) (*Result, error) {
	l.history = append(l.history, ChatMessage{Role: "user", Content: userMessage})

	result := &Result{Status: StatusFailed}

	for iteration := 0; iteration < l.maxIterations; iteration++ {
		// Cancellation point between turns.
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("conversation cancelled: %w", err)
		}
		result.Iterations = iteration + 1

		// Bind the current tool set; a reload between turns is picked up
		// here without restarting the conversation.
		tools := l.bindTools()

		resp, err := l.callModel(ctx, tools)
		if err != nil {
			return result, fmt.Errorf("model call (iteration %d): %w", iteration+1, err)
		}

		assistant := ChatMessage{Role: "assistant", Content: resp.Content}
		if len(resp.ToolCalls) > 0 {
			assistant.ToolCalls = resp.ToolCalls
		}
		l.history = append(l.history, assistant)

		if len(resp.ToolCalls) == 0 {
			result.Answer = resp.Content
			result.Status = StatusDone
			l.logger.Info("conversation complete", "iterations", iteration+1,
				"tool_calls", len(result.Invocations))
			return result, nil
		}

		for i := range resp.ToolCalls {
			if resp.ToolCalls[i].ID == "" {
				resp.ToolCalls[i].ID = uuid.NewString()
			}
		}

		batch := l.executeParallel(ctx, resp.ToolCalls)
		for i, res := range batch {
			call := resp.ToolCalls[i]
			result.Invocations = append(result.Invocations, Invocation{
				ID:        call.ID,
				Tool:      call.Name,
				Arguments: call.Arguments,
				Result:    res,
			})
			l.history = append(l.history, ChatMessage{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    encodeResult(res),
			})
		}
	}

	result.Status = StatusExhausted
	l.logger.Warn("iteration cap reached", "cap", l.maxIterations)
	return result, &skills.ExhaustedError{Iterations: l.maxIterations}
}

func (l *Loop) bindTools() []ToolSchema {
	compiled := l.registry.ListTools()
	tools := make([]ToolSchema, 0, len(compiled))
	for _, t := range compiled {
		tools = append(tools, ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Schema.LLMSchema(),
		})
	}
	return tools
}

func (l *Loop) callModel(ctx context.Context, tools []ToolSchema) (*ChatResponse, error) {
	mctx := ctx
	if l.modelTimeout > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(ctx, l.modelTimeout)
		defer cancel()
	}

	systemPrompt := l.systemPrompt
	if skillContext := l.registry.CombinedPrompt(); skillContext != "" {
		systemPrompt = systemPrompt + "\n\n" + skillContext
	}

	return l.provider.Chat(mctx, ChatRequest{
		Model:        l.model,
		SystemPrompt: systemPrompt,
		Messages:     l.history,
		Tools:        tools,
		MaxTokens:    l.maxTokens,
		Temperature:  l.temperature,
	})
}

// executeParallel runs a batch of tool calls with bounded concurrency and
// returns results in the original call order. A single call takes the fast
// path with no goroutines.
func (l *Loop) executeParallel(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))

	if len(calls) == 1 {
		results[0] = l.executeCall(ctx, calls[0])
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.maxParallel)
	for i, call := range calls {
		g.Go(func() error {
			// Unique index per goroutine; no mutex needed.
			results[i] = l.executeCall(gctx, call)
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors; failures land in results
	return results
}

// executeCall resolves, validates, and invokes one tool call. Every failure
// path produces a structured result; nothing here crashes the loop.
func (l *Loop) executeCall(ctx context.Context, call ToolCall) ToolResult {
	start := time.Now()

	tool, _, err := l.registry.GetTool(call.Name)
	if err != nil {
		l.logger.Warn("model requested unknown tool", "tool", call.Name)
		return errorResult(call.Name, string(skills.CategoryNotFound), err.Error(), start)
	}

	args, err := tool.Schema.Validate(call.Arguments)
	if err != nil {
		// Implementation is never invoked on bad arguments.
		return errorResult(call.Name, "validation", err.Error(), start)
	}

	tctx := ctx
	if l.toolTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, l.toolTimeout)
		defer cancel()
	}

	value, err := invoke(tctx, tool, args)
	elapsed := time.Since(start)

	if err != nil {
		category := categorize(err, tctx)
		l.logger.Warn("tool execution failed",
			"tool", call.Name, "category", category, "error", err, "elapsed", elapsed)
		return errorResult(call.Name, category, err.Error(), start)
	}

	l.logger.Debug("tool executed", "tool", call.Name, "elapsed", elapsed)
	return ToolResult{
		Tool:      call.Name,
		Status:    "success",
		Result:    encodeValue(value),
		ElapsedMs: elapsed.Milliseconds(),
	}
}

// invoke runs the tool with panic recovery so a misbehaving implementation
// cannot take down the conversation.
func invoke(ctx context.Context, tool *skills.Tool, args map[string]any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &skills.ExecutionError{
				Tool:     tool.Name,
				Category: skills.CategoryExecution,
				Err:      fmt.Errorf("implementation panicked: %v", r),
			}
		}
	}()
	return tool.Invoke(ctx, args)
}

func categorize(err error, ctx context.Context) string {
	var execErr *skills.ExecutionError
	switch {
	case errors.As(err, &execErr):
		return string(execErr.Category)
	case errors.Is(err, context.DeadlineExceeded):
		return string(skills.CategoryTimeout)
	case errors.Is(err, context.Canceled):
		return string(skills.CategoryCancelled)
	case ctx.Err() != nil:
		return string(skills.CategoryTimeout)
	default:
		return string(skills.CategoryExecution)
	}
}

func errorResult(tool, errType, msg string, start time.Time) ToolResult {
	return ToolResult{
		Tool:      tool,
		Status:    "error",
		Error:     msg,
		ErrorType: errType,
		ElapsedMs: time.Since(start).Milliseconds(),
	}
}

// encodeValue renders a tool's return value for the model. Strings pass
// through; everything else is JSON.
func encodeValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// encodeResult renders a ToolResult as the tool message content.
func encodeResult(r ToolResult) string {
	if r.Status == "success" {
		return r.Result
	}
	data, _ := json.Marshal(map[string]string{
		"error":      r.Error,
		"error_type": r.ErrorType,
	})
	return string(data)
}
