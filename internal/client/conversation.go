package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"loopchat/backend/internal/dispatch"
	"loopchat/backend/internal/frontendtool"
	"loopchat/backend/internal/model"
	"loopchat/backend/internal/protocol"
	"loopchat/backend/internal/reconcile"
	"loopchat/backend/internal/service"
)

// Conversation drives one chat from the caller's side: it owns the live
// transcript, relays user turns to the backend, and runs the dispatch guard
// over every transcript update so tool directives execute exactly once.
//
// A Conversation is single-threaded: Send, Load, and Transcript must be
// called from one goroutine, mirroring a UI event loop.
type Conversation struct {
	client *Client
	guard  *dispatch.Guard
	logger *slog.Logger

	chatID    string
	persisted []model.Message
	live      []model.Message
	state     dispatch.StreamState
}

// NewConversation builds a conversation controller over the given client and
// tool registry. chatID may be empty; the server assigns one on the first
// turn.
func NewConversation(c *Client, tools *frontendtool.Registry, chatID string, logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.Default()
	}
	conv := &Conversation{
		client: c,
		logger: logger,
		chatID: chatID,
		state:  dispatch.StateReady,
	}
	conv.guard = dispatch.NewGuard(tools, conv, logger)
	return conv
}

// ChatID returns the server-assigned chat id, empty until the first turn
// completes.
func (c *Conversation) ChatID() string {
	return c.chatID
}

// Transcript returns the displayable transcript: persisted history merged
// with the live turns, continuation turns hidden, duplicates dropped.
func (c *Conversation) Transcript() []model.Message {
	return reconcile.Reconcile(c.persisted, c.live, c.guard.Hidden())
}

// Load fetches the persisted transcript for the conversation's chat and
// reconciles it under the live turns. Observing afterwards never replays a
// directive: the stream is settled and stays settled across a reload.
func (c *Conversation) Load(ctx context.Context) error {
	if c.chatID == "" {
		return nil
	}
	fullChat, err := c.client.GetChat(ctx, c.chatID)
	if err != nil {
		return err
	}
	c.persisted = fullChat.Messages
	hideSettledContinuations(c.guard, c.persisted)
	return c.guard.Observe(ctx, c.Transcript(), c.state)
}

// Send submits a user turn and blocks until the answer has fully streamed,
// including any tool execution and continuation round trip the answer
// requests.
func (c *Conversation) Send(ctx context.Context, text string) error {
	return c.sendTurn(ctx, text, nil)
}

// SendContinuation implements dispatch.Sender: it relays a tool result to
// the backend as a hidden sentinel turn and streams the follow-up answer.
func (c *Conversation) SendContinuation(ctx context.Context, result protocol.ToolResultContent) error {
	return c.sendTurn(ctx, protocol.ContinuationSentinel, &result)
}

func (c *Conversation) sendTurn(ctx context.Context, query string, result *protocol.ToolResultContent) error {
	userTurn := model.Message{
		ID:        uuid.NewString(),
		ChatID:    c.chatID,
		Role:      model.RoleUser,
		Content:   query,
		Parts:     []model.Part{model.TextPart(query)},
		CreatedAt: now(),
	}
	c.live = append(c.live, userTurn)

	assistantTurn := model.Message{
		ID:        uuid.NewString(),
		ChatID:    c.chatID,
		Role:      model.RoleAssistant,
		CreatedAt: now(),
	}
	assistantIdx := -1

	c.state = dispatch.StateSubmitted
	c.observe(ctx)

	req := &service.CreateMessageRequest{
		ChatID:              c.chatID,
		Query:               query,
		FrontendToolCallRes: result,
	}
	final, err := c.client.SendMessage(ctx, req, func(chunk model.StreamResponse) {
		if chunk.Done {
			return
		}
		if assistantIdx < 0 {
			c.live = append(c.live, assistantTurn)
			assistantIdx = len(c.live) - 1
		}
		c.live[assistantIdx].Content += chunk.Content
		c.state = dispatch.StateStreaming
		c.observe(ctx)
	})
	if err != nil {
		// Roll the stream state back to settled; the turns stay in the live
		// transcript so a retry can be reconciled against them.
		c.state = dispatch.StateReady
		return fmt.Errorf("send failed: %w", err)
	}

	if assistantIdx < 0 {
		c.live = append(c.live, assistantTurn)
		assistantIdx = len(c.live) - 1
	}

	// Adopt the server's ids so later tool call records and reconciliation
	// line up with persisted history.
	if final.ChatID != "" {
		c.chatID = final.ChatID
	}
	if final.MessageID != "" {
		c.live[assistantIdx].ID = final.MessageID
	}
	if len(final.Payload) > 0 {
		var payload protocol.AgentPayload
		if jsonErr := json.Unmarshal(final.Payload, &payload); jsonErr == nil {
			c.live[assistantIdx].Content = payload.Result
			c.live[assistantIdx].Parts = []model.Part{model.TextPart(payload.Result)}
			if payload.FrontendToolCall != nil {
				c.live[assistantIdx].Parts = append(c.live[assistantIdx].Parts, model.ObjectPart(final.Payload))
			}
		}
	}

	c.state = dispatch.StateReady
	c.observe(ctx)
	// A dispatch during the settle pass appends continuation turns after the
	// guard snapshotted the transcript; a second pass lets the guard hide
	// the sentinel turn it just sent. Both passes are idempotent.
	c.observe(ctx)
	return nil
}

func (c *Conversation) observe(ctx context.Context) {
	if err := c.guard.Observe(ctx, c.Transcript(), c.state); err != nil {
		c.logger.Warn("tool dispatch failed, turn stays retryable", "error", err)
	}
}

// hideSettledContinuations marks persisted sentinel turns as hidden so a
// reloaded transcript never shows the internal continuation plumbing.
func hideSettledContinuations(guard *dispatch.Guard, persisted []model.Message) {
	for _, msg := range persisted {
		if msg.Role == model.RoleUser && protocol.IsSentinel(msg.Content) {
			guard.Hide(msg.ID)
		}
	}
}
