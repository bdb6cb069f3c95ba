package model

import (
	"encoding/json"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool call statuses.
const (
	ToolCallPending = "pending"
	ToolCallSuccess = "success"
	ToolCallError   = "error"
)

// Identity is the resolved caller: either an authenticated user or an
// anonymous browser session. Exactly one of the two fields is set.
type Identity struct {
	UserID    string
	SessionID string
}

// Authenticated reports whether the caller has a real user account.
func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

// Valid reports whether the identity carries any principal at all.
func (i Identity) Valid() bool {
	return i.UserID != "" || i.SessionID != ""
}

// Chat stores metadata about a conversation. A chat is owned by either an
// authenticated user or an anonymous session, never both.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UserID    *string   `json:"user_id,omitempty"`
	SessionID *string   `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnedBy reports whether the given identity owns this chat.
func (c *Chat) OwnedBy(ident Identity) bool {
	if c.UserID != nil && ident.UserID != "" {
		return *c.UserID == ident.UserID
	}
	if c.SessionID != nil && ident.SessionID != "" {
		return *c.SessionID == ident.SessionID
	}
	return false
}

// Message stores a single turn in a chat. Parts carry the heterogeneous
// display payload; Content is the plain text rendering kept for listing and
// for building model context.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	ParentID  *string   `json:"parent_id,omitempty"` // User turn an assistant turn answers.
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Parts     []Part    `json:"parts,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolCall is the durable record of one tool invocation owned by an
// assistant turn. Output and Status are filled in on completion; a record is
// never otherwise mutated.
type ToolCall struct {
	ID        string          `json:"id"` // At most 64 bytes, see protocol.NewToolCallID.
	MessageID string          `json:"message_id"`
	ToolName  string          `json:"tool_name"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Status    string          `json:"status"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// FullChat includes the chat metadata and all its messages.
type FullChat struct {
	Chat
	Messages []Message `json:"messages"`
}

// StreamResponse is the structure for a single chunk in a streaming response.
// The final chunk has Done set and carries the finalized structured payload
// as raw JSON so the caller can re-parse it defensively.
type StreamResponse struct {
	Content   string          `json:"content"`
	Done      bool            `json:"done"`
	ChatID    string          `json:"chat_id,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
}
