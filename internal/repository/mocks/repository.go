// Package mocks provides a testify mock of the repository interface for
// service-layer tests.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"loopchat/backend/internal/model"
)

// MockRepository is a mock implementation of repository.Repository.
type MockRepository struct {
	mock.Mock
}

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// NewMockRepository creates a new mock bound to the test lifecycle: it
// asserts expectations on cleanup.
func NewMockRepository(t testingT) *MockRepository {
	m := &MockRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockRepository) CreateChat(ctx context.Context, chat *model.Chat) error {
	args := m.Called(ctx, chat)
	return args.Error(0)
}

func (m *MockRepository) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	args := m.Called(ctx, chatID)
	if chat, ok := args.Get(0).(*model.Chat); ok {
		return chat, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) GetChats(ctx context.Context, ident model.Identity) ([]*model.Chat, error) {
	args := m.Called(ctx, ident)
	if chats, ok := args.Get(0).([]*model.Chat); ok {
		return chats, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) UpdateChatTitle(ctx context.Context, chatID, newTitle string) error {
	args := m.Called(ctx, chatID, newTitle)
	return args.Error(0)
}

func (m *MockRepository) DeleteChat(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *MockRepository) AddMessage(ctx context.Context, chatID string, message *model.Message) error {
	args := m.Called(ctx, chatID, message)
	return args.Error(0)
}

func (m *MockRepository) GetMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	args := m.Called(ctx, chatID)
	if messages, ok := args.Get(0).([]model.Message); ok {
		return messages, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) CreateToolCall(ctx context.Context, call *model.ToolCall) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *MockRepository) UpdateToolCallResult(ctx context.Context, callID string, output []byte, status string, errDetail *string) (bool, error) {
	args := m.Called(ctx, callID, output, status, errDetail)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) GetToolCallsByChat(ctx context.Context, chatID string) ([]model.ToolCall, error) {
	args := m.Called(ctx, chatID)
	if calls, ok := args.Get(0).([]model.ToolCall); ok {
		return calls, args.Error(1)
	}
	return nil, args.Error(1)
}
