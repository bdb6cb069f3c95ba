package interfaces

import (
	"context"

	"loopchat/backend/internal/model"
	"loopchat/backend/internal/service"
)

// This file defines the interfaces for our core services.
// Depending on these interfaces, instead of concrete implementations, allows for
// decoupling (e.g., API layer from Service layer) and easier testing via mocking.

// ChatService defines the contract for chat-related business logic. Every
// operation takes the resolved caller identity; ownership enforcement lives
// behind this interface, not in the transport.
type ChatService interface {
	UpdateChatTitle(ctx context.Context, ident model.Identity, chatID, newTitle string) error
	DeleteChat(ctx context.Context, ident model.Identity, chatID string) error
	ListChats(ctx context.Context, ident model.Identity) ([]*model.Chat, error)
	GetFullChat(ctx context.Context, ident model.Identity, chatID string) (*model.FullChat, error)
	HandleNewMessage(ctx context.Context, ident model.Identity, req *service.CreateMessageRequest, streamChan chan<- model.StreamResponse)
}

// SettingsService defines the contract for managing application settings.
type SettingsService interface {
	InitAndGet(ctx context.Context, defaultSystemPrompt string) (*service.Settings, error)
	Get(ctx context.Context) (*service.Settings, error)
	Save(ctx context.Context, settings *service.Settings) error
}
