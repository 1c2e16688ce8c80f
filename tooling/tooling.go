// Package tooling implements the Center tool handler registry: name-keyed
// dispatch for the tool calls a Center skill invocation produces, with
// JSON-Schema argument validation and the terminating/non-terminating tool
// class distinction the negotiation engine's round loop depends on.
package tooling

import (
	"context"
	"encoding/json"
	"fmt"
)

// Name identifies one of the five tools the Center loop recognizes.
type Name string

const (
	OutputPlan     Name = "output_plan"
	AskAgent       Name = "ask_agent"
	StartDiscovery Name = "start_discovery"
	OutputGap      Name = "output_gap"
	Reject         Name = "reject"
)

// Spec describes one registered tool: its name, whether dispatching it ends
// the Center loop, a human-readable description for prompt construction,
// and a JSON Schema for its arguments.
type Spec struct {
	Name         Name
	Terminating  bool
	Description  string
	ArgsSchema   []byte // compiled lazily on the tool's first Dispatch
}

// Handler executes one tool call's side effect (recording a plan, asking an
// agent, spawning a sub-negotiation, recording a gap, or recording a
// rejection) and returns a result to append to the round transcript.
//
// session is an opaque context value (typically the session id); callers in
// the negotiation engine pass whatever a handler needs to act on the live
// session without this package importing the negotiation package, avoiding
// an import cycle.
type Handler interface {
	Handle(ctx context.Context, sessionID string, args json.RawMessage) (result any, err error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, sessionID string, args json.RawMessage) (any, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, sessionID string, args json.RawMessage) (any, error) {
	return f(ctx, sessionID, args)
}

type registration struct {
	spec    Spec
	handler Handler
}

// Registry is the name-keyed dispatch table for Center tool calls. It is
// built once at startup (not safe for concurrent Register calls racing
// Dispatch, matching the teacher's own build-then-serve registry pattern).
type Registry struct {
	entries map[Name]registration
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Name]registration)}
}

// Register adds spec/handler to the registry. Registering the same Name
// twice replaces the prior entry.
func (r *Registry) Register(spec Spec, handler Handler) {
	r.entries[spec.Name] = registration{spec: spec, handler: handler}
}

// Lookup returns the Spec for name and whether it is registered.
func (r *Registry) Lookup(name Name) (Spec, bool) {
	e, ok := r.entries[name]
	return e.spec, ok
}

// Specs returns every registered Spec, in no particular order; callers that
// need a stable prompt ordering should sort by Name.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.spec)
	}
	return out
}

// Dispatch validates args against the registered tool's schema and invokes
// its handler. An unknown tool name is a protocol error the caller (the
// Center round loop) must count toward the round cap rather than treat as
// fatal, per the specification's "unknown tool name is a protocol error:
// the engine records it and continues".
func (r *Registry) Dispatch(ctx context.Context, sessionID string, name Name, args json.RawMessage) (any, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	if err := validateArgs(e.spec, args); err != nil {
		return nil, &MalformedArgsError{Name: name, Cause: err}
	}
	return e.handler.Handle(ctx, sessionID, args)
}

// UnknownToolError is returned by Dispatch when name has no registered
// handler.
type UnknownToolError struct{ Name Name }

func (e *UnknownToolError) Error() string { return fmt.Sprintf("tooling: unknown tool %q", e.Name) }

// MalformedArgsError is returned by Dispatch when args fails schema
// validation for the registered tool.
type MalformedArgsError struct {
	Name  Name
	Cause error
}

func (e *MalformedArgsError) Error() string {
	return fmt.Sprintf("tooling: malformed arguments for tool %q: %v", e.Name, e.Cause)
}
func (e *MalformedArgsError) Unwrap() error { return e.Cause }
