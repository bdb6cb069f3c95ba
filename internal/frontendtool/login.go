package frontendtool

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	app_errors "loopchat/backend/internal/errors"
	"loopchat/backend/internal/protocol"
)

// Login flows selected by the identity provider.
const (
	FlowSignIn = "sign_in"
	FlowSignUp = "sign_up"
)

var (
	loginValidate     *validator.Validate
	loginValidateOnce sync.Once
)

func getValidator() *validator.Validate {
	loginValidateOnce.Do(func() {
		loginValidate = validator.New()
	})
	return loginValidate
}

// loginSession is the private caller-side state shared by the login tools.
// It is process scoped and never part of the persisted conversation: verify
// is only accepted because start just ran in this same session.
type loginSession struct {
	mu       sync.Mutex
	flow     string
	email    string
	codeSent bool
}

func (s *loginSession) begin(flow, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flow = flow
	s.email = email
	s.codeSent = true
}

func (s *loginSession) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flow != "" && s.codeSent
}

func (s *loginSession) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flow = ""
	s.email = ""
	s.codeSent = false
}

type startArgs struct {
	Email string `validate:"required,email"`
}

type verifyArgs struct {
	Code string `validate:"required,len=6,numeric"`
}

// startHandler implements login_user_start: it accepts an email, triggers an
// out-of-band code send, and reports which flow was selected.
type startHandler struct {
	auth    AuthClient
	session *loginSession
}

func (h *startHandler) Validate(args protocol.ToolArgs) error {
	payload := startArgs{}
	if args.Email != nil {
		payload.Email = *args.Email
	}
	if err := getValidator().Struct(payload); err != nil {
		return fmt.Errorf("%w: login_user_start requires a valid email: %s", app_errors.ErrValidation, err)
	}
	return nil
}

func (h *startHandler) Execute(ctx context.Context, args protocol.ToolArgs) (Result, error) {
	email := *args.Email
	flow, err := h.auth.StartLogin(ctx, email)
	if err != nil {
		return Result{OK: false, Code: CodeSendFailed, Message: err.Error()}, nil
	}
	h.session.begin(flow, email)
	return Result{OK: true, Flow: flow, Message: "verification code sent"}, nil
}

// verifyHandler implements login_user_verify: it completes the flow started
// by login_user_start with a 6-digit code.
type verifyHandler struct {
	auth    AuthClient
	session *loginSession
}

func (h *verifyHandler) Validate(args protocol.ToolArgs) error {
	payload := verifyArgs{}
	if args.Code != nil {
		payload.Code = *args.Code
	}
	if err := getValidator().Struct(payload); err != nil {
		return fmt.Errorf("%w: login_user_verify requires a 6-digit code: %s", app_errors.ErrValidation, err)
	}
	return nil
}

func (h *verifyHandler) Execute(ctx context.Context, args protocol.ToolArgs) (Result, error) {
	if !h.session.active() {
		return Result{OK: false, Code: CodeNoActiveFlow}, ErrNoActiveFlow
	}
	if err := h.auth.VerifyCode(ctx, *args.Code); err != nil {
		return Result{OK: false, Code: CodeInvalidCode, Message: err.Error()}, nil
	}
	h.session.reset()
	return Result{OK: true, Authenticated: true}, nil
}

// resendHandler implements login_user_resend: no arguments, repeats the send
// for the currently active flow.
type resendHandler struct {
	auth    AuthClient
	session *loginSession
}

func (h *resendHandler) Validate(protocol.ToolArgs) error {
	return nil
}

func (h *resendHandler) Execute(ctx context.Context, _ protocol.ToolArgs) (Result, error) {
	if !h.session.active() {
		return Result{OK: false, Code: CodeNoActiveFlow}, ErrNoActiveFlow
	}
	if err := h.auth.ResendCode(ctx); err != nil {
		return Result{OK: false, Code: CodeSendFailed, Message: err.Error()}, nil
	}
	return Result{OK: true, Message: "verification code resent"}, nil
}
