// Package dispatch implements the tool-call dispatch and dedup guard: a
// per-conversation state machine that turns tool directives in the streamed
// transcript into at-most-one tool execution and at-most-one hidden
// continuation each.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"loopchat/backend/internal/frontendtool"
	"loopchat/backend/internal/model"
	"loopchat/backend/internal/protocol"
	"loopchat/backend/internal/reconcile"
)

// toolCallIDPrefix seeds the codec for guard-generated call ids.
const toolCallIDPrefix = "fc"

// StreamState describes the liveness of the conversation stream at the time
// of an Observe call.
type StreamState int

const (
	// StateReady means no stream is in progress; the transcript is settled.
	StateReady StreamState = iota
	// StateSubmitted means a request was sent but no tokens arrived yet.
	StateSubmitted
	// StateStreaming means assistant tokens are actively arriving.
	StateStreaming
)

// Guard tracks which assistant turns have been evaluated for a tool
// directive and guarantees at-most-one execution per (turn, tool) and
// at-most-one continuation per generated call id.
//
// A Guard is owned by a single conversation view and constructed fresh per
// mount; its sets grow monotonically for the lifetime of that view and are
// not persisted. It is not safe for concurrent use: all calls happen on the
// view's single event loop.
type Guard struct {
	tools  *frontendtool.Registry
	sender Sender
	logger *slog.Logger

	handledTurns  map[string]struct{}
	handledPrints map[string]struct{}
	executedCalls map[string]struct{}
	inFlightTurn  string
	sending       bool
	suppressNext  bool
	hidden        map[string]struct{}

	prevState StreamState
	// pendingEdge remembers that a stream ran while a continuation send was
	// in progress, so the settled answer it produced is still evaluated once
	// the send returns.
	pendingEdge bool
}

// NewGuard builds a guard over the given tool registry and continuation
// sender. A nil logger falls back to slog.Default.
func NewGuard(tools *frontendtool.Registry, sender Sender, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		tools:         tools,
		sender:        sender,
		logger:        logger,
		handledTurns:  make(map[string]struct{}),
		handledPrints: make(map[string]struct{}),
		executedCalls: make(map[string]struct{}),
		hidden:        make(map[string]struct{}),
		prevState:     StateReady,
	}
}

// Hidden exposes the set of turn ids the rendering layer must drop. The
// returned map is live; callers must not mutate it.
func (g *Guard) Hidden() map[string]struct{} {
	return g.hidden
}

// Hide adds a turn id to the hidden set directly. Used when settled
// continuation turns arrive from persisted history rather than from a send
// this guard performed.
func (g *Guard) Hide(id string) {
	g.hidden[id] = struct{}{}
}

// HandledTurn reports whether the turn id was already evaluated.
func (g *Guard) HandledTurn(id string) bool {
	_, ok := g.handledTurns[id]
	return ok
}

// ExecutedCall reports whether a continuation was already sent for the
// given tool-call id.
func (g *Guard) ExecutedCall(id string) bool {
	_, ok := g.executedCalls[id]
	return ok
}

// Observe runs the transition rule against the current transcript. It is
// called on every transcript update and on every stream state change; all
// of its effects are idempotent, so re-presenting the same settled turn
// never triggers a second execution.
func (g *Guard) Observe(ctx context.Context, transcript []model.Message, state StreamState) error {
	defer func() { g.prevState = state }()

	g.trackSentinel(transcript)

	turn := lastAssistantTurn(transcript)
	if turn == nil {
		return nil
	}
	if g.tools == nil || g.tools.Empty() {
		return nil
	}
	if g.sending {
		// These updates belong to the continuation round trip this guard
		// itself started. The nested stream's liveness is remembered so a
		// directive chained directly onto the tool result is not skipped
		// when the send returns.
		if state == StateSubmitted || state == StateStreaming {
			g.pendingEdge = true
		}
		return nil
	}
	if _, done := g.handledTurns[turn.ID]; done {
		return nil
	}
	print := reconcile.MessageFingerprint(*turn)
	if _, done := g.handledPrints[print]; done {
		return nil
	}
	if g.inFlightTurn != "" && g.inFlightTurn != turn.ID {
		return nil
	}

	// Auto-dispatch is only permitted while the turn is actively streaming
	// or just-submitted, or on the transition from streaming to settled. A
	// bare reload starts and stays settled, so directives sitting in
	// history are never replayed on page view.
	live := state == StateSubmitted || state == StateStreaming
	settledEdge := state == StateReady &&
		(g.prevState == StateStreaming || g.prevState == StateSubmitted || g.pendingEdge)
	if state == StateReady {
		g.pendingEdge = false
	}
	if !live && !settledEdge {
		if state == StateReady {
			g.markHandled(turn.ID, print)
		}
		return nil
	}

	payload := extractTurnPayload(turn)
	if payload == nil || payload.FrontendToolCall == nil {
		// While the turn is still streaming the payload may simply not
		// have arrived yet; only a settled turn is marked handled.
		if state == StateReady {
			g.markHandled(turn.ID, print)
		}
		return nil
	}

	directive := payload.FrontendToolCall
	callID := protocol.NewToolCallID(toolCallIDPrefix, directive.ToolName, turn.ID)
	if _, done := g.executedCalls[callID]; done {
		g.markHandled(turn.ID, print)
		return nil
	}

	g.inFlightTurn = turn.ID
	result, err := g.tools.Execute(ctx, frontendtool.ToolName(directive.ToolName), directive.ToolArgs)
	if err != nil {
		// The call never became a meaningful outcome (unknown tool, bad
		// arguments, missing prerequisite state). Clear the in-flight
		// marker without marking the turn handled so a differently-shaped
		// retry by the user can proceed; no visible error turn is emitted.
		g.logger.Warn("frontend tool execution rejected",
			"tool", directive.ToolName, "turn_id", turn.ID, "error", err)
		g.inFlightTurn = ""
		return nil
	}

	var content protocol.ToolResultContent
	if result.OK {
		content = protocol.NewToolResult(callID, directive.ToolName, result)
	} else {
		content = protocol.NewToolErrorResult(callID, directive.ToolName, result)
	}

	g.sending = true
	sendErr := g.sender.SendContinuation(ctx, content)
	g.sending = false
	g.inFlightTurn = ""
	if sendErr != nil {
		g.logger.Error("failed to send continuation",
			"tool", directive.ToolName, "call_id", callID, "error", sendErr)
		return sendErr
	}

	g.executedCalls[callID] = struct{}{}
	g.markHandled(turn.ID, print)
	g.suppressNext = true
	return nil
}

func (g *Guard) markHandled(turnID, print string) {
	g.handledTurns[turnID] = struct{}{}
	g.handledPrints[print] = struct{}{}
}

// trackSentinel hides the continuation turn once it shows up in the
// transcript: after a send the suppress-next flag is armed, and the first
// new user turn carrying the sentinel text is added to the hidden set.
func (g *Guard) trackSentinel(transcript []model.Message) {
	if !g.suppressNext {
		return
	}
	for i := len(transcript) - 1; i >= 0; i-- {
		msg := transcript[i]
		if msg.Role != model.RoleUser || !IsSentinel(msg.Content) {
			continue
		}
		if _, done := g.hidden[msg.ID]; done {
			continue
		}
		g.hidden[msg.ID] = struct{}{}
		g.suppressNext = false
		return
	}
}

func lastAssistantTurn(transcript []model.Message) *model.Message {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == model.RoleAssistant {
			return &transcript[i]
		}
	}
	return nil
}

// extractTurnPayload prefers a native structured-object part and falls back
// to brace-scanning the display text for transports that embed the payload
// inline.
func extractTurnPayload(turn *model.Message) *protocol.AgentPayload {
	for _, part := range turn.Parts {
		if part.Type != model.PartTypeObject || len(part.Object) == 0 {
			continue
		}
		var payload protocol.AgentPayload
		if err := json.Unmarshal(part.Object, &payload); err == nil {
			return &payload
		}
	}
	return protocol.ExtractPayload(turn.Content)
}
