package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var toolNameRE = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

// Definition is the externally visible description of one tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Handler binds a definition to its executor. The schema is compiled at
// registration, so a malformed parameter block fails at startup rather than
// on the first call.
type Handler struct {
	Definition Definition
	Schema     *jsonschema.Schema
	Run        func(ctx context.Context, args map[string]any) (any, error)
}

// Result is one dispatch outcome, already rendered for the caller.
type Result struct {
	Tool    string `json:"tool"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error"`
}

// Registry holds the tool table. Registration happens at startup; dispatch is
// concurrent afterwards.
type Registry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	tools map[string]Handler
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger, tools: map[string]Handler{}}
}

func (r *Registry) Register(h Handler) error {
	name := h.Definition.Name
	if !toolNameRE.MatchString(name) {
		return fmt.Errorf("invalid tool name %q", name)
	}
	if h.Run == nil {
		return fmt.Errorf("tool %s missing executor", name)
	}
	if h.Schema == nil {
		s, err := compileSchema(h.Definition.Parameters)
		if err != nil {
			return fmt.Errorf("tool %s schema: %w", name, err)
		}
		h.Schema = s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = h
	return nil
}

// Definitions lists every registered tool. Map order is unstable; callers
// needing determinism sort the result.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for _, h := range r.tools {
		out = append(out, h.Definition)
	}
	return out
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// Dispatch validates raw JSON arguments against the tool's schema and runs
// it. Failures of any kind come back as an error Result rather than a Go
// error, so the transport loop has exactly one shape to serialize.
func (r *Registry) Dispatch(ctx context.Context, name string, raw json.RawMessage) Result {
	r.mu.RLock()
	h, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Result{Tool: name, Output: fmt.Sprintf("unknown tool: %s", name), IsError: true}
	}

	var args map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return Result{Tool: name, Output: fmt.Sprintf("invalid tool arguments JSON: %v", err), IsError: true}
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := h.Schema.Validate(args); err != nil {
		return Result{Tool: name, Output: fmt.Sprintf("tool args schema validation failed: %v", err), IsError: true}
	}

	v, err := h.Run(ctx, args)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "error", err)
		return Result{Tool: name, Output: err.Error(), IsError: true}
	}
	return Result{Tool: name, Output: valueToString(v)}
}

func compileSchema(params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}

func valueToString(v any) string {
	switch x := v.(type) {
	case nil:
		return "ok"
	case string:
		return x
	case []byte:
		return string(x)
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
