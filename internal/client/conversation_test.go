package client_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loopchat/backend/internal/client"
	"loopchat/backend/internal/frontendtool"
	"loopchat/backend/internal/model"
	"loopchat/backend/internal/protocol"
	"loopchat/backend/internal/service"
)

// fakeAuthClient counts OTP primitive calls so tests can assert exactly-once
// execution end to end.
type fakeAuthClient struct {
	mu         sync.Mutex
	startCalls int
	verifyErr  error
}

func (f *fakeAuthClient) StartLogin(ctx context.Context, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls = f.startCalls + 1
	return "sign_in", nil
}

func (f *fakeAuthClient) VerifyCode(ctx context.Context, code string) error {
	return f.verifyErr
}

func (f *fakeAuthClient) ResendCode(ctx context.Context) error {
	return nil
}

// scriptedBackend replays a fixed sequence of SSE answers for successive
// message posts and serves a canned transcript for reloads.
type scriptedBackend struct {
	mu       sync.Mutex
	answers  []model.StreamResponse // one final chunk per expected post
	requests []service.CreateMessageRequest
	fullChat *model.FullChat
}

func (b *scriptedBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chats/messages", func(w http.ResponseWriter, r *http.Request) {
		var req service.CreateMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		b.mu.Lock()
		b.requests = append(b.requests, req)
		require.NotEmpty(t, b.answers, "backend received more posts than scripted")
		final := b.answers[0]
		b.answers = b.answers[1:]
		b.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		var payload protocol.AgentPayload
		if len(final.Payload) > 0 && json.Unmarshal(final.Payload, &payload) == nil {
			chunk, _ := json.Marshal(model.StreamResponse{Content: payload.Result})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		data, _ := json.Marshal(final)
		fmt.Fprintf(w, "data: %s\n\n", data)
	})
	mux.HandleFunc("GET /api/v1/chats/{chatID}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(b.fullChat))
	})
	return mux
}

func (b *scriptedBackend) posted() []service.CreateMessageRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]service.CreateMessageRequest(nil), b.requests...)
}

func finalChunk(chatID, messageID, result string, directive *protocol.FrontendToolCall) model.StreamResponse {
	payload, _ := json.Marshal(protocol.AgentPayload{Result: result, FrontendToolCall: directive})
	return model.StreamResponse{Done: true, ChatID: chatID, MessageID: messageID, Payload: payload}
}

func strptr(s string) *string { return &s }

func TestConversation_PlainExchange(t *testing.T) {
	backend := &scriptedBackend{
		answers: []model.StreamResponse{finalChunk("chat1", "msg-a1", "Hello back!", nil)},
	}
	server := httptest.NewServer(backend.handler(t))
	defer server.Close()

	auth := &fakeAuthClient{}
	c := client.NewClient(server.URL, model.Identity{SessionID: "session-1"})
	conv := client.NewConversation(c, frontendtool.NewLoginRegistry(auth), "", nil)

	require.NoError(t, conv.Send(context.Background(), "hello"))

	assert.Equal(t, "chat1", conv.ChatID())
	assert.Equal(t, 0, auth.startCalls)

	transcript := conv.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, model.RoleUser, transcript[0].Role)
	assert.Equal(t, "hello", transcript[0].Content)
	assert.Equal(t, model.RoleAssistant, transcript[1].Role)
	assert.Equal(t, "Hello back!", transcript[1].Content)
	assert.Equal(t, "msg-a1", transcript[1].ID, "assistant turn adopts the server id")
}

func TestConversation_DirectiveRoundTrip(t *testing.T) {
	directive := &protocol.FrontendToolCall{
		ToolName: string(frontendtool.LoginUserStart),
		ToolArgs: protocol.ToolArgs{Email: strptr("user@example.com")},
	}
	backend := &scriptedBackend{
		answers: []model.StreamResponse{
			finalChunk("chat1", "msg-a1", "One moment while I wait for you to finish logging in.", directive),
			finalChunk("chat1", "msg-a2", "I sent a code to your email, please type it in.", nil),
		},
	}
	server := httptest.NewServer(backend.handler(t))
	defer server.Close()

	auth := &fakeAuthClient{}
	c := client.NewClient(server.URL, model.Identity{SessionID: "session-1"})
	conv := client.NewConversation(c, frontendtool.NewLoginRegistry(auth), "", nil)

	require.NoError(t, conv.Send(context.Background(), "log me in"))

	// The tool ran exactly once and its result went back as a continuation.
	assert.Equal(t, 1, auth.startCalls)
	posts := backend.posted()
	require.Len(t, posts, 2)
	assert.Equal(t, "log me in", posts[0].Query)
	assert.Equal(t, protocol.ContinuationSentinel, posts[1].Query)
	require.NotNil(t, posts[1].FrontendToolCallRes)
	res := posts[1].FrontendToolCallRes
	assert.Equal(t, protocol.ToolResultContentType, res.Type)
	assert.Equal(t, string(frontendtool.LoginUserStart), res.ToolName)
	assert.Equal(t, protocol.NewToolCallID("fc", string(frontendtool.LoginUserStart), "msg-a1"), res.ToolCallID)
	assert.False(t, res.Output.IsError())

	// The sentinel turn is hidden; the visible transcript is user turn,
	// waiting answer, and the follow-up.
	transcript := conv.Transcript()
	require.Len(t, transcript, 3)
	assert.Equal(t, "log me in", transcript[0].Content)
	assert.Equal(t, "One moment while I wait for you to finish logging in.", transcript[1].Content)
	assert.Equal(t, "I sent a code to your email, please type it in.", transcript[2].Content)
}

func TestConversation_ReloadDoesNotReplay(t *testing.T) {
	directivePayload, _ := json.Marshal(protocol.AgentPayload{
		Result: "One moment while I wait for you to finish logging in.",
		FrontendToolCall: &protocol.FrontendToolCall{
			ToolName: string(frontendtool.LoginUserStart),
			ToolArgs: protocol.ToolArgs{Email: strptr("user@example.com")},
		},
	})
	backend := &scriptedBackend{
		fullChat: &model.FullChat{
			Chat: model.Chat{ID: "chat1"},
			Messages: []model.Message{
				{ID: "msg-u1", Role: model.RoleUser, Content: "log me in"},
				{
					ID:      "msg-a1",
					Role:    model.RoleAssistant,
					Content: "One moment while I wait for you to finish logging in.",
					Parts: []model.Part{
						model.TextPart("One moment while I wait for you to finish logging in."),
						model.ObjectPart(directivePayload),
					},
				},
				{ID: "msg-u2", Role: model.RoleUser, Content: protocol.ContinuationSentinel},
				{ID: "msg-a2", Role: model.RoleAssistant, Content: "I sent a code to your email."},
			},
		},
	}
	server := httptest.NewServer(backend.handler(t))
	defer server.Close()

	auth := &fakeAuthClient{}
	c := client.NewClient(server.URL, model.Identity{SessionID: "session-1"})
	conv := client.NewConversation(c, frontendtool.NewLoginRegistry(auth), "chat1", nil)

	require.NoError(t, conv.Load(context.Background()))

	// History contains a settled directive; reloading must not run it again.
	assert.Equal(t, 0, auth.startCalls)
	assert.Empty(t, backend.posted())

	transcript := conv.Transcript()
	require.Len(t, transcript, 3, "the sentinel turn stays hidden after reload")
	assert.Equal(t, "msg-u1", transcript[0].ID)
	assert.Equal(t, "msg-a1", transcript[1].ID)
	assert.Equal(t, "msg-a2", transcript[2].ID)
}

func TestConversation_StreamRestartDedup(t *testing.T) {
	backend := &scriptedBackend{
		answers: []model.StreamResponse{finalChunk("chat1", "msg-a1", "Hello back!", nil)},
		fullChat: &model.FullChat{
			Chat: model.Chat{ID: "chat1"},
			Messages: []model.Message{
				{ID: "msg-u1", Role: model.RoleUser, Content: "hello"},
				// Persisted under its server id while the live copy streamed
				// under the same id; reconciliation keeps one.
				{ID: "msg-a1", Role: model.RoleAssistant, Content: "Hello back!"},
			},
		},
	}
	server := httptest.NewServer(backend.handler(t))
	defer server.Close()

	auth := &fakeAuthClient{}
	c := client.NewClient(server.URL, model.Identity{SessionID: "session-1"})
	conv := client.NewConversation(c, frontendtool.NewLoginRegistry(auth), "", nil)

	require.NoError(t, conv.Send(context.Background(), "hello"))
	require.NoError(t, conv.Load(context.Background()))

	var assistants int
	for _, msg := range conv.Transcript() {
		if msg.Role == model.RoleAssistant {
			assistants = assistants + 1
		}
	}
	assert.Equal(t, 1, assistants, "persisted and live copies of the answer collapse to one")
}
