// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	uuid "github.com/satori/go.uuid"

	apperrors "itassist/internal/errors"
	"itassist/internal/paths"
	"itassist/internal/scan"
)

// errorPrefix starts the text of every failed call.
const errorPrefix = "Error: "

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	CallID    string
	Function  string
	Result    string
	Error     error
	Truncated bool
	Duration  time.Duration
}

// Text renders the result as the text returned to clients. Failures are
// reported as "Error: <message>" instead of a transport fault.
func (r *ToolResult) Text() string {
	if r.Error != nil {
		return errorPrefix + r.Error.Error()
	}
	return r.Result
}

// Policy configures which tools may run. A nil Allow map allows every
// registered tool; Deny always wins.
type Policy struct {
	Allow map[string]bool
	Deny  map[string]bool
}

// PolicyFromLists builds a policy from allow/deny lists. An empty allow list
// allows everything.
func PolicyFromLists(allow, deny []string) Policy {
	var p Policy
	if len(allow) > 0 {
		p.Allow = make(map[string]bool, len(allow))
		for _, name := range allow {
			p.Allow[strings.TrimSpace(name)] = true
		}
	}
	if len(deny) > 0 {
		p.Deny = make(map[string]bool, len(deny))
		for _, name := range deny {
			p.Deny[strings.TrimSpace(name)] = true
		}
	}
	return p
}

func (p Policy) allows(name string) bool {
	if p.Deny[name] {
		return false
	}
	if p.Allow == nil {
		return true
	}
	return p.Allow[name]
}

// Options configures a registry and its built-in tools.
type Options struct {
	Logger        zerolog.Logger
	Policy        Policy
	Limits        Limits
	Paths         paths.Policy
	RateLimits    RateLimitConfig
	Timeouts      TimeoutConfig
	OutputFilters OutputFilterConfig
	Scan          scan.Config
	HTTP          HTTPConfig

	// ScanOptions are passed to the scanner, e.g. to swap its dialer.
	ScanOptions []scan.Option
}

// DefaultOptions returns the default registry configuration.
func DefaultOptions() Options {
	return Options{
		Logger:        zerolog.Nop(),
		Limits:        DefaultLimits(),
		Paths:         paths.DefaultPolicy(),
		RateLimits:    DefaultRateLimitConfig(),
		Timeouts:      DefaultTimeoutConfig(),
		OutputFilters: DefaultOutputFilterConfig(),
		Scan:          scan.DefaultConfig(),
		HTTP:          DefaultHTTPConfig(),
	}
}

// Registry holds all available tools and runs calls through the dispatch
// pipeline: lookup, policy, validation, rate limit, timeout, execution and
// output filtering.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	policy   Policy
	limiters *rateLimiters
	timeouts TimeoutConfig
	filters  OutputFilterConfig
	logger   zerolog.Logger
}

// NewRegistry creates a registry with the default options.
func NewRegistry() *Registry {
	return NewRegistryWithOptions(DefaultOptions())
}

// NewRegistryWithPolicy creates a default registry with the provided policy.
func NewRegistryWithPolicy(policy Policy) *Registry {
	opts := DefaultOptions()
	opts.Policy = policy
	return NewRegistryWithOptions(opts)
}

// NewRegistryWithOptions creates a registry and registers all built-in tools.
func NewRegistryWithOptions(opts Options) *Registry {
	r := &Registry{
		tools:    make(map[string]Tool),
		policy:   opts.Policy,
		limiters: newRateLimiters(opts.RateLimits),
		timeouts: opts.Timeouts,
		filters:  normalizeOutputFilterConfig(opts.OutputFilters),
		logger:   opts.Logger,
	}
	registerBuiltInTools(r, newBuiltins(opts))
	return r
}

// RegisterTool adds a tool to the registry.
func (r *Registry) RegisterTool(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	name := tool.Name()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if !tool.CompatibleWith(HostAPIVersion) {
		return fmt.Errorf("tool %s (version %s) is not compatible with host API %s", name, tool.Version(), HostAPIVersion)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s is already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Close releases the rate limiter goroutines.
func (r *Registry) Close() {
	r.limiters.Stop()
}

// Lookup returns a registered tool by name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Tools returns the allowed tools sorted by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Tool, 0, len(r.tools))
	for name, tool := range r.tools {
		if r.policy.allows(name) {
			list = append(list, tool)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// GetToolNames returns the sorted names of all allowed tools.
func (r *Registry) GetToolNames() []string {
	tools := r.Tools()
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name()
	}
	return names
}

// SetAllowed toggles whether a tool may run.
func (r *Registry) SetAllowed(name string, allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if allowed {
		delete(r.policy.Deny, name)
		if r.policy.Allow != nil {
			r.policy.Allow[name] = true
		}
		return
	}
	if r.policy.Deny == nil {
		r.policy.Deny = make(map[string]bool)
	}
	r.policy.Deny[name] = true
}

// IsAllowed reports whether the policy lets name run.
func (r *Registry) IsAllowed(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy.allows(name)
}

// OpenAITools returns the allowed tools as OpenAI function definitions.
func (r *Registry) OpenAITools() []openai.Tool {
	tools := r.Tools()
	defs := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return defs
}

// Execute runs the named tool. It never returns nil and never panics: every
// failure is carried in ToolResult.Error.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) *ToolResult {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	result := &ToolResult{
		CallID:   uuid.NewV4().String(),
		Function: name,
	}
	log := r.logger.With().Str("tool", name).Str("call_id", result.CallID).Logger()
	defer func() {
		result.Duration = time.Since(start)
		ev := log.Debug()
		if result.Error != nil {
			ev = log.Warn().Err(result.Error).Str("code", string(apperrors.CodeOf(result.Error)))
		}
		ev.Dur("duration", result.Duration).Bool("truncated", result.Truncated).Msg("tool call finished")
	}()

	tool, ok := r.Lookup(name)
	if !ok {
		result.Error = fmt.Errorf("%w: %q (available: %s)", ErrToolNotFound, name, strings.Join(r.GetToolNames(), ", "))
		return result
	}
	if !r.IsAllowed(name) {
		result.Error = NewPermissionError(name, "disabled by configuration")
		return result
	}
	if err := tool.Validate(args); err != nil {
		result.Error = NewInvalidArgumentsError(name, err)
		return result
	}
	if err := r.limiters.Allow(name); err != nil {
		result.Error = NewRateLimitError(name, err)
		return result
	}

	timeout := r.timeouts.TimeoutForTool(name)
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log.Debug().Interface("args", args).Msg("tool call started")
	output, err := r.run(callCtx, tool, args, log)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			err = fmt.Errorf("tool call canceled: %w", ctx.Err())
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			err = fmt.Errorf("%w after %s", ErrToolTimeout, timeout)
		}
		result.Error = classifyToolError(err)
		return result
	}

	result.Result, result.Truncated = r.filters.Apply(output)
	return result
}

// run executes the tool on its own goroutine so that a tool ignoring ctx
// still cannot hold the caller past the timeout.
func (r *Registry) run(ctx context.Context, tool Tool, args map[string]interface{}, log zerolog.Logger) (string, error) {
	type outcome struct {
		output string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("stack", string(debug.Stack())).Msg("tool panicked")
				done <- outcome{err: NewToolExecutionError(tool.Name(), "", errors.New("unexpected internal error"))}
			}
		}()
		output, err := tool.Execute(ctx, args)
		done <- outcome{output: output, err: err}
	}()

	select {
	case out := <-done:
		return out.output, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func classifyToolError(err error) error {
	if apperrors.CodeOf(err) != "" {
		return err
	}
	var resErr *scan.ResolutionError
	switch {
	case errors.As(err, &resErr):
		return apperrors.Wrap(apperrors.CodeNetwork, "", err)
	case errors.Is(err, scan.ErrInvalidPortSpec):
		return apperrors.Wrap(apperrors.CodeInvalidArguments, "", err)
	default:
		return apperrors.Wrap(apperrors.CodeToolExecution, "", err)
	}
}

// ExecuteOpenAIToolCall executes an OpenAI tool call payload.
func (r *Registry) ExecuteOpenAIToolCall(ctx context.Context, call openai.ToolCall) *ToolResult {
	name := call.Function.Name
	if name == "" {
		return &ToolResult{
			CallID:   call.ID,
			Function: "unknown_tool",
			Error:    apperrors.Wrap(apperrors.CodeInvalidArguments, "", fmt.Errorf("%w: tool call missing function name", ErrInvalidArguments)),
		}
	}
	args, err := parseToolArgs(call.Function.Arguments)
	if err != nil {
		return &ToolResult{
			CallID:   call.ID,
			Function: name,
			Error:    NewInvalidArgumentsError(name, err),
		}
	}
	return r.Execute(ctx, name, args)
}
