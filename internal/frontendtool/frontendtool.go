// Package frontendtool declares the actions the model may request but that
// can only run in the caller's own execution context, such as sending and
// verifying one-time login codes through the identity provider.
package frontendtool

import (
	"context"

	"loopchat/backend/internal/protocol"
)

// ToolName identifies one declared frontend tool.
type ToolName string

// The three tools declared to the model.
const (
	LoginUserStart  ToolName = "login_user_start"
	LoginUserVerify ToolName = "login_user_verify"
	LoginUserResend ToolName = "login_user_resend"
)

// DeclaredNames returns the names of all declared tools without needing a
// wired registry. The server side declares tools to the model; only the
// caller side can execute them.
func DeclaredNames() []string {
	return []string{string(LoginUserStart), string(LoginUserVerify), string(LoginUserResend)}
}

// Result is the outcome of one tool execution, serialized into the tool
// result content the orchestrator folds into model context. Fields beyond OK
// are tool specific.
type Result struct {
	OK            bool   `json:"ok"`
	Code          string `json:"code,omitempty"` // Machine-readable error code when OK is false.
	Flow          string `json:"flow,omitempty"` // "sign_in" or "sign_up" for login_user_start.
	Authenticated bool   `json:"authenticated,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Handler validates and executes one tool. Validate never has side effects;
// Execute may involve an external round trip (e.g. sending a code).
type Handler interface {
	Validate(args protocol.ToolArgs) error
	Execute(ctx context.Context, args protocol.ToolArgs) (Result, error)
}

// AuthClient is the identity/session provider collaborator that performs
// the actual OTP primitives. Implementations live outside this package.
type AuthClient interface {
	// StartLogin triggers an out-of-band code send and reports which flow
	// was selected: "sign_in" for a known email, "sign_up" otherwise.
	StartLogin(ctx context.Context, email string) (flow string, err error)
	// VerifyCode completes the active flow with the supplied code.
	VerifyCode(ctx context.Context, code string) error
	// ResendCode repeats the send for the active flow.
	ResendCode(ctx context.Context) error
}
