// Package tools dispatches model-emitted tool calls to registered executors
// and normalizes every outcome into a result the model can consume. A failed
// or unknown tool call is a conversational fact, never a session error.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Definition is the function-call schema advertised to the realtime model.
type Definition struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is one tool invocation as emitted by the model.
type Request struct {
	CallID string
	Name   string
	Args   map[string]any
}

// Result is the normalized outcome of one invocation. Output() is what gets
// serialized back onto the model stream.
type Result struct {
	CallID  string
	Name    string
	Success bool
	Payload map[string]any
	Error   string
}

// Output flattens the result into the function-call output object.
func (r Result) Output() map[string]any {
	out := make(map[string]any, len(r.Payload)+2)
	for k, v := range r.Payload {
		out[k] = v
	}
	out["success"] = r.Success
	if r.Error != "" {
		out["error"] = r.Error
	}
	return out
}

// Executor is one registered tool. Execute must be safe for concurrent use
// across sessions; blocking I/O belongs behind the passed context.
type Executor interface {
	Name() string
	Definition() Definition
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

type Registry struct {
	byName map[string]Executor
}

func NewRegistry(executors ...Executor) *Registry {
	registry := &Registry{byName: make(map[string]Executor, len(executors))}
	for _, ex := range executors {
		if ex == nil {
			continue
		}
		registry.byName[ex.Name()] = ex
	}
	return registry
}

func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[strings.TrimSpace(name)]
	return ok
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the schemas for all registered tools in name order.
func (r *Registry) Definitions() []Definition {
	if r == nil {
		return nil
	}
	defs := make([]Definition, 0, len(r.byName))
	for _, name := range r.Names() {
		defs = append(defs, r.byName[name].Definition())
	}
	return defs
}

// Invoke executes the named tool and always returns a result. An unregistered
// name, an executor error, or an executor panic all come back as a failure
// result keyed to the request's correlation id.
func (r *Registry) Invoke(ctx context.Context, req Request) (res Result) {
	res = Result{CallID: req.CallID, Name: strings.TrimSpace(req.Name)}
	defer func() {
		if v := recover(); v != nil {
			res.Success = false
			res.Payload = nil
			res.Error = fmt.Sprintf("tool %q panicked: %v", req.Name, v)
		}
	}()

	name := strings.TrimSpace(req.Name)
	if r == nil || name == "" {
		res.Error = "tool name is required"
		return res
	}
	ex, ok := r.byName[name]
	if !ok {
		res.Error = fmt.Sprintf("unknown tool %q", name)
		return res
	}

	payload, err := ex.Execute(ctx, req.Args)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.Payload = payload
	return res
}
