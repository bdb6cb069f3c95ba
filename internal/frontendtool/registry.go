package frontendtool

import (
	"context"
	"fmt"
	"sort"

	"loopchat/backend/internal/protocol"
)

// Registry is the typed capability map from tool name to handler. Names()
// is what the orchestrator declares to the model; Execute is what the
// dispatch guard invokes.
type Registry struct {
	handlers map[ToolName]Handler
}

// NewRegistry builds a registry over an explicit handler map.
func NewRegistry(handlers map[ToolName]Handler) *Registry {
	m := make(map[ToolName]Handler, len(handlers))
	for name, h := range handlers {
		m[name] = h
	}
	return &Registry{handlers: m}
}

// NewLoginRegistry wires the three login tools over a shared caller-side
// session and the given identity provider.
func NewLoginRegistry(auth AuthClient) *Registry {
	session := &loginSession{}
	return NewRegistry(map[ToolName]Handler{
		LoginUserStart:  &startHandler{auth: auth, session: session},
		LoginUserVerify: &verifyHandler{auth: auth, session: session},
		LoginUserResend: &resendHandler{auth: auth, session: session},
	})
}

// Names returns the declared tool names in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// Empty reports whether any tools are registered.
func (r *Registry) Empty() bool {
	return len(r.handlers) == 0
}

// Execute validates the arguments and runs the named tool.
//
// A non-nil error means the call never became a meaningful tool outcome
// (unknown name, invalid arguments, missing prerequisite state); the caller
// should not build a tool result from it. Domain-level failures the model
// can react to (wrong code, send failure) come back as Result with OK=false
// and a nil error.
func (r *Registry) Execute(ctx context.Context, name ToolName, args protocol.ToolArgs) (Result, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q (registered: %v)", ErrToolNotFound, name, r.Names())
	}
	if err := handler.Validate(args); err != nil {
		return Result{}, err
	}
	return handler.Execute(ctx, args)
}
