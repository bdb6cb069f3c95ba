// Package mocks provides testify mocks of the service interfaces for
// API-layer tests.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"loopchat/backend/internal/model"
	"loopchat/backend/internal/service"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockChatService is a mock implementation of interfaces.ChatService.
type MockChatService struct {
	mock.Mock
}

func NewMockChatService(t testingT) *MockChatService {
	m := &MockChatService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockChatService) UpdateChatTitle(ctx context.Context, ident model.Identity, chatID, newTitle string) error {
	args := m.Called(ctx, ident, chatID, newTitle)
	return args.Error(0)
}

func (m *MockChatService) DeleteChat(ctx context.Context, ident model.Identity, chatID string) error {
	args := m.Called(ctx, ident, chatID)
	return args.Error(0)
}

func (m *MockChatService) ListChats(ctx context.Context, ident model.Identity) ([]*model.Chat, error) {
	args := m.Called(ctx, ident)
	if chats := args.Get(0); chats != nil {
		return chats.([]*model.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChatService) GetFullChat(ctx context.Context, ident model.Identity, chatID string) (*model.FullChat, error) {
	args := m.Called(ctx, ident, chatID)
	if chat := args.Get(0); chat != nil {
		return chat.(*model.FullChat), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChatService) HandleNewMessage(ctx context.Context, ident model.Identity, req *service.CreateMessageRequest, streamChan chan<- model.StreamResponse) {
	m.Called(ctx, ident, req, streamChan)
}

// MockSettingsService is a mock implementation of interfaces.SettingsService.
type MockSettingsService struct {
	mock.Mock
}

func NewMockSettingsService(t testingT) *MockSettingsService {
	m := &MockSettingsService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSettingsService) InitAndGet(ctx context.Context, defaultSystemPrompt string) (*service.Settings, error) {
	args := m.Called(ctx, defaultSystemPrompt)
	if settings := args.Get(0); settings != nil {
		return settings.(*service.Settings), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSettingsService) Get(ctx context.Context) (*service.Settings, error) {
	args := m.Called(ctx)
	if settings := args.Get(0); settings != nil {
		return settings.(*service.Settings), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSettingsService) Save(ctx context.Context, settings *service.Settings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}
