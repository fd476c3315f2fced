package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/akozyrev/scholium/pkg/llms"
)

// Reporter receives human-readable progress lines. It is bound per agent
// invocation, never process-wide, so concurrent runs cannot cross-report.
// A nil Reporter is valid and drops every line.
type Reporter func(message string)

// Report emits a line, swallowing sink panics: progress is best effort and
// must never disturb dispatch.
func (r Reporter) Report(message string) {
	if r == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("progress sink panicked", "panic", rec)
		}
	}()
	r(message)
}

// Registry is the fixed name-to-tool mapping built at process start.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry with the given tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool is nil")
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the advertisement for every registered tool, in
// stable name order.
func (r *Registry) Definitions() []llms.ToolDefinition {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]llms.ToolDefinition, len(names))
	for i, name := range names {
		defs[i] = Definition(r.tools[name])
	}
	return defs
}

// Invoke dispatches one tool call. It never returns an error: unknown
// names, tool failures, and tool panics all come back as *ErrorResult.
// Progress lines are emitted to report before and after the call.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any, report Reporter) Result {
	report.Report(fmt.Sprintf("[tool call] %s %s", name, previewArgs(args)))

	t, ok := r.tools[name]
	if !ok {
		result := &ErrorResult{Message: fmt.Sprintf("unknown function: %s", name)}
		report.Report(result.Summary())
		return result
	}

	result := safeCall(ctx, t, args)
	report.Report(fmt.Sprintf("[tool result] %s -> %s", name, result.Summary()))
	return result
}

// safeCall runs the tool, converting errors and panics into error results.
func safeCall(ctx context.Context, t Tool, args map[string]any) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool panicked", "tool", t.Name(), "panic", rec)
			result = &ErrorResult{Message: fmt.Sprintf("tool %s panicked: %v", t.Name(), rec)}
		}
	}()

	res, err := t.Call(ctx, args)
	if err != nil {
		return &ErrorResult{Message: err.Error()}
	}
	if res == nil {
		return &ScalarResult{Value: nil}
	}
	return res
}

func previewArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	return truncate(fmt.Sprintf("%v", args), maxTextPreview)
}
