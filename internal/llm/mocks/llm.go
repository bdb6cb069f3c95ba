// Package mocks provides a testify mock of the LLM provider for
// service-layer tests.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"loopchat/backend/internal/llm"
)

// MockLLMProvider is a mock implementation of llm.LLMProvider.
type MockLLMProvider struct {
	mock.Mock
}

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// NewMockLLMProvider creates a new mock bound to the test lifecycle.
func NewMockLLMProvider(t testingT) *MockLLMProvider {
	m := &MockLLMProvider{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockLLMProvider) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	args := m.Called(ctx, req)
	if resp, ok := args.Get(0).(*llm.GenerateResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLMProvider) GenerateStream(ctx context.Context, req *llm.GenerateRequest, ch chan<- llm.StreamResponse) error {
	args := m.Called(ctx, req, ch)
	return args.Error(0)
}

func (m *MockLLMProvider) ListModels(ctx context.Context) (*llm.ListModelsResponse, error) {
	args := m.Called(ctx)
	if resp, ok := args.Get(0).(*llm.ListModelsResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}
