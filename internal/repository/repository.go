package repository

import (
	"context"

	"loopchat/backend/internal/model"
)

// Repository defines the interface for data storage operations.
// This interface makes it easy to switch database implementations.
type Repository interface {
	CreateChat(ctx context.Context, chat *model.Chat) error
	GetChat(ctx context.Context, chatID string) (*model.Chat, error)
	GetChats(ctx context.Context, ident model.Identity) ([]*model.Chat, error)
	UpdateChatTitle(ctx context.Context, chatID, newTitle string) error
	DeleteChat(ctx context.Context, chatID string) error

	AddMessage(ctx context.Context, chatID string, message *model.Message) error
	GetMessages(ctx context.Context, chatID string) ([]model.Message, error)

	CreateToolCall(ctx context.Context, call *model.ToolCall) error
	// UpdateToolCallResult fills in the output and status of a pending tool
	// call. It reports whether a record with the given id existed.
	UpdateToolCallResult(ctx context.Context, callID string, output []byte, status string, errDetail *string) (bool, error)
	GetToolCallsByChat(ctx context.Context, chatID string) ([]model.ToolCall, error)
}
