// Package agent implements the bounded tool-calling loop: a sequential
// state machine that drives a conversation with a language model,
// dispatches its tool calls through the registry, and terminates with a
// final answer or a budget-exhaustion fallback.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/akozyrev/scholium/pkg/llms"
	"github.com/akozyrev/scholium/pkg/tool"
)

// FallbackMessage is returned when the turn budget runs out before the
// model produces a final answer. It is a valid completion, not an error.
const FallbackMessage = "The agent could not reach the goal within the allotted turns."

// DefaultSystemPrompt seeds every conversation. The prompt asks the model
// for restraint, but the hard backstop against runaway tool usage is the
// turn ceiling, enforced mechanically regardless of model compliance.
const DefaultSystemPrompt = `You are the author of a popular-science blog. Use the available functions to analyze articles in depth.
Constraints:
- never draw conclusions from short summaries alone; always check the full text
- when writing a post, keep it to 8-10 sentences that develop the topic and focus on what is most important and surprising
- use a few emoji; keep the style engaging but not overly playful
- reference the years of the underlying research and assess how the science developed over time
- stay scientifically accurate, but avoid heavy terminology; explain hard terms in plain words
- avoid generic or breathless conclusions`

// Config configures the loop.
type Config struct {
	// SystemPrompt overrides DefaultSystemPrompt when set.
	SystemPrompt string

	// MaxTurns is the default inference-call ceiling when Run is given a
	// non-positive value.
	MaxTurns int
}

// Loop is the tool-calling controller. It holds no per-invocation state;
// each Run owns its conversation and progress sink exclusively, so
// concurrent runs never interfere.
type Loop struct {
	provider     llms.Provider
	registry     *tool.Registry
	systemPrompt string
	maxTurns     int
	logger       *slog.Logger
}

// New creates an agent loop.
func New(provider llms.Provider, registry *tool.Registry, cfg Config) (*Loop, error) {
	if provider == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	maxTurns := cfg.MaxTurns
	if maxTurns < 1 {
		maxTurns = 5
	}

	return &Loop{
		provider:     provider,
		registry:     registry,
		systemPrompt: systemPrompt,
		maxTurns:     maxTurns,
		logger:       slog.Default(),
	}, nil
}

// Run drives one bounded conversation toward userGoal. It returns the
// model's final answer, or FallbackMessage when maxTurns inference calls
// pass without one. report receives progress lines for the lifetime of
// this invocation only; a nil report drops them.
//
// An inference failure propagates: there is no meaningful partial result
// once the model itself cannot be reached. Tool failures never do; the
// registry converts them into error-shaped results the model can react to.
func (l *Loop) Run(ctx context.Context, userGoal string, maxTurns int, report tool.Reporter) (string, error) {
	if userGoal == "" {
		return "", fmt.Errorf("user goal is required")
	}
	if maxTurns < 1 {
		maxTurns = l.maxTurns
	}

	history := []llms.Message{
		llms.SystemMessage(l.systemPrompt),
		llms.UserMessage(userGoal),
	}
	defs := l.registry.Definitions()

	for turn := 0; turn < maxTurns; turn++ {
		// Cooperative cancellation at turn boundaries.
		if err := ctx.Err(); err != nil {
			return "", err
		}

		completion, err := l.provider.Generate(ctx, history, defs)
		if err != nil {
			return "", err
		}

		if completion.Content != "" {
			l.logger.Debug("agent reached final answer", "turn", turn+1, "tokens", completion.Tokens)
			return completion.Content, nil
		}

		if len(completion.ToolCalls) == 0 {
			// Neither content nor tool calls; the turn ceiling guards
			// against an infinite stall here.
			continue
		}

		history = append(history, llms.Message{
			Role:      llms.RoleAssistant,
			ToolCalls: completion.ToolCalls,
		})

		// One tool-result message per call, in request order.
		for _, call := range completion.ToolCalls {
			result := l.dispatch(ctx, call, report)
			history = append(history, llms.ToolResultMessage(call.ID, tool.Encode(result)))
		}
	}

	l.logger.Debug("agent exhausted turn budget", "max_turns", maxTurns)
	return FallbackMessage, nil
}

// dispatch resolves one tool call. Malformed arguments become an
// error-shaped result, the same containment the registry applies to tool
// failures.
func (l *Loop) dispatch(ctx context.Context, call llms.ToolCall, report tool.Reporter) tool.Result {
	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			result := &tool.ErrorResult{Message: fmt.Sprintf("failed to parse arguments: %s", err)}
			report.Report(result.Summary())
			return result
		}
	}
	return l.registry.Invoke(ctx, call.Name, args, report)
}
