package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	apperrors "loopchat/backend/internal/errors"
	"loopchat/backend/internal/llm"
	"loopchat/backend/internal/model"
	"loopchat/backend/internal/protocol"
	"loopchat/backend/internal/repository"
)

// toolCallIDPrefix namespaces the codec ids this service mints for pending
// tool call records. The caller derives ids with the same codec, so the two
// sides agree without coordination.
const toolCallIDPrefix = "fc"

type ChatService struct {
	repo     repository.Repository
	llm      llm.LLMProvider
	settings *SettingsService
	tools    []string
}

// CreateMessageRequest is the structure for a new message request from the
// client. FrontendToolCallRes is only present on the continuation turn that
// follows a frontend tool execution.
type CreateMessageRequest struct {
	ChatID              string                      `json:"chat_id"`
	Query               string                      `json:"query" validate:"required"`
	FrontendToolCallRes *protocol.ToolResultContent `json:"frontend_tool_call_res,omitempty"`
}

func NewChatService(repo repository.Repository, llmProvider llm.LLMProvider, settings *SettingsService, toolNames []string) *ChatService {
	return &ChatService{repo: repo, llm: llmProvider, settings: settings, tools: toolNames}
}

// UpdateChatTitle handles the logic for manually updating a chat's title.
func (s *ChatService) UpdateChatTitle(ctx context.Context, ident model.Identity, chatID, newTitle string) error {
	if newTitle == "" {
		return fmt.Errorf("%w: title cannot be empty", apperrors.ErrValidation)
	}
	if _, err := s.ownedChat(ctx, ident, chatID); err != nil {
		return err
	}
	slog.Info("Updating chat title.", "chat_id", chatID, "title", newTitle)
	return s.repo.UpdateChatTitle(ctx, chatID, newTitle)
}

// DeleteChat handles the logic for deleting a chat and all its related data.
func (s *ChatService) DeleteChat(ctx context.Context, ident model.Identity, chatID string) error {
	if _, err := s.ownedChat(ctx, ident, chatID); err != nil {
		return err
	}
	slog.Info("Deleting chat.", "chat_id", chatID)
	return s.repo.DeleteChat(ctx, chatID)
}

// ListChats retrieves all chats owned by the caller, newest first.
func (s *ChatService) ListChats(ctx context.Context, ident model.Identity) ([]*model.Chat, error) {
	if !ident.Valid() {
		return nil, apperrors.ErrUnauthorized
	}
	return s.repo.GetChats(ctx, ident)
}

// GetFullChat retrieves a chat's metadata and all its messages. Tool call
// records are folded back into the parts of the assistant turns that own
// them, so a reloaded transcript carries the same structure a live one did.
func (s *ChatService) GetFullChat(ctx context.Context, ident model.Identity, chatID string) (*model.FullChat, error) {
	chat, err := s.ownedChat(ctx, ident, chatID)
	if err != nil {
		return nil, err
	}
	messages, err := s.repo.GetMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("could not get messages: %w", err)
	}
	calls, err := s.repo.GetToolCallsByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("could not get tool calls: %w", err)
	}
	byMessage := make(map[string][]model.Part)
	for _, call := range calls {
		byMessage[call.MessageID] = append(byMessage[call.MessageID], model.ToolPart(call))
	}
	for i := range messages {
		if toolParts, ok := byMessage[messages[i].ID]; ok {
			messages[i].Parts = model.MergeParts(messages[i].Parts, toolParts)
		}
	}
	return &model.FullChat{Chat: *chat, Messages: messages}, nil
}

// ownedChat loads a chat and checks it against the caller's identity.
func (s *ChatService) ownedChat(ctx context.Context, ident model.Identity, chatID string) (*model.Chat, error) {
	if !ident.Valid() {
		return nil, apperrors.ErrUnauthorized
	}
	chat, err := s.repo.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("could not get chat: %w", err)
	}
	if !chat.OwnedBy(ident) {
		return nil, apperrors.ErrPermission
	}
	return chat, nil
}

// HandleNewMessage is the core function that processes a new message,
// streams the model's answer, and persists every durable side effect: the
// user turn, the assistant turn with its structured payload, pending tool
// call records for a directive, and the completion of a prior record when
// the request carries a tool result.
func (s *ChatService) HandleNewMessage(
	ctx context.Context,
	ident model.Identity,
	req *CreateMessageRequest,
	streamChan chan<- model.StreamResponse,
) {
	defer close(streamChan)

	if !ident.Valid() {
		streamChan <- model.StreamResponse{Error: "No caller identity"}
		return
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		slog.Error("Could not load settings for message handling.", "error", err)
		streamChan <- model.StreamResponse{Error: "Could not load application settings"}
		return
	}

	// Step 1: Get or create the chat.
	isNewChat := req.ChatID == ""
	chatID := req.ChatID
	if isNewChat {
		chatID = shortuuid.New()
		chat := &model.Chat{ID: chatID, Title: truncate(req.Query, 50), CreatedAt: time.Now(), UpdatedAt: time.Now()}
		if ident.UserID != "" {
			chat.UserID = &ident.UserID
		} else {
			chat.SessionID = &ident.SessionID
		}
		if err := s.repo.CreateChat(ctx, chat); err != nil {
			slog.Error("Error creating chat.", "error", err)
			streamChan <- model.StreamResponse{Error: "Could not create chat"}
			return
		}
	} else {
		if _, err := s.ownedChat(ctx, ident, chatID); err != nil {
			slog.Warn("Rejecting message for chat.", "chat_id", chatID, "error", err)
			streamChan <- model.StreamResponse{Error: "Could not find chat"}
			return
		}
	}

	// Step 2: Save the user's turn. Continuation turns are stored like any
	// other user turn; visibility is the reader's concern, not storage's.
	userMessage := &model.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      model.RoleUser,
		Content:   req.Query,
		Parts:     []model.Part{model.TextPart(req.Query)},
		CreatedAt: time.Now(),
	}
	if err := s.repo.AddMessage(ctx, chatID, userMessage); err != nil {
		slog.Error("Error adding user message.", "chat_id", chatID, "error", err)
		streamChan <- model.StreamResponse{Error: "Could not save message"}
		return
	}

	// Step 3: Complete the pending tool call record when the request
	// carries a result, before the model sees the continuation.
	if res := req.FrontendToolCallRes; res != nil {
		s.settleToolCall(ctx, userMessage.ID, res)
	}

	// Step 4: Build the model context.
	history, err := s.repo.GetMessages(ctx, chatID)
	if err != nil {
		slog.Error("Error getting message history.", "chat_id", chatID, "error", err)
		streamChan <- model.StreamResponse{Error: "Could not load chat history"}
		return
	}
	llmMessages := s.buildContext(ident, settings, history, req.FrontendToolCallRes)

	llmReq := &llm.GenerateRequest{
		Model:    settings.MainModel,
		Messages: llmMessages,
		Stream:   true,
		Format:   protocol.PayloadSchema,
	}

	// Step 5: Process the stream from the model. GenerateStream closes the
	// channel before returning, so the range always terminates and the error
	// is available right after it.
	var fullResponse strings.Builder
	llmStreamChan := make(chan llm.StreamResponse)
	genErr := make(chan error, 1)
	go func() {
		genErr <- s.llm.GenerateStream(ctx, llmReq, llmStreamChan)
	}()

	streamFailed := false
	for chunk := range llmStreamChan {
		if chunk.Error != "" {
			streamChan <- model.StreamResponse{Error: chunk.Error}
			streamFailed = true
			break
		}
		fullResponse.WriteString(chunk.Content)
		if !chunk.Done {
			streamChan <- model.StreamResponse{Content: chunk.Content}
		}
	}
	if streamFailed {
		return
	}
	if err := <-genErr; err != nil {
		slog.Error("Model stream failed.", "chat_id", chatID, "error", err)
		streamChan <- model.StreamResponse{Error: "Model generation failed"}
		return
	}

	// Step 6: Finalize the structured payload and persist the assistant
	// turn. The raw text is extracted defensively: transports without a
	// schema mode may wrap the object in prose.
	raw := fullResponse.String()
	payload := protocol.ExtractPayload(raw)
	display := raw
	var payloadRaw json.RawMessage
	if payload != nil {
		display = payload.Result
		if encoded, err := json.Marshal(payload); err == nil {
			payloadRaw = encoded
		}
	}

	parts := []model.Part{model.TextPart(display)}
	if payload != nil && payload.FrontendToolCall != nil && payloadRaw != nil {
		parts = append(parts, model.ObjectPart(payloadRaw))
	}
	assistantMessage := &model.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		ParentID:  &userMessage.ID,
		Role:      model.RoleAssistant,
		Content:   display,
		Parts:     parts,
		CreatedAt: time.Now(),
	}
	if err := s.repo.AddMessage(ctx, chatID, assistantMessage); err != nil {
		slog.Error("CRITICAL: failed to save assistant message.", "chat_id", chatID, "error", err)
		streamChan <- model.StreamResponse{Error: "Could not save response"}
		return
	}

	// Step 7: Record a pending tool call for a directive. The record's
	// existence is what stops a replay after reload.
	if payload != nil && payload.FrontendToolCall != nil {
		call := payload.FrontendToolCall
		input, _ := json.Marshal(call.ToolArgs)
		record := &model.ToolCall{
			ID:        protocol.NewToolCallID(toolCallIDPrefix, call.ToolName, assistantMessage.ID),
			MessageID: assistantMessage.ID,
			ToolName:  call.ToolName,
			Input:     input,
			Status:    model.ToolCallPending,
			CreatedAt: time.Now(),
		}
		if err := s.repo.CreateToolCall(ctx, record); err != nil {
			slog.Error("Error recording pending tool call.", "chat_id", chatID, "tool", call.ToolName, "error", err)
		}
	}

	streamChan <- model.StreamResponse{
		Done:      true,
		ChatID:    chatID,
		MessageID: assistantMessage.ID,
		Payload:   payloadRaw,
	}

	// Step 8: Post-generation actions.
	if isNewChat && !protocol.IsSentinel(req.Query) {
		go s.generateTitle(context.Background(), chatID, settings.SupportModel, req.Query, display)
	}
}

// settleToolCall marks the pending record for a returned tool result as
// finished. A missing record (the directive never got one, or the caller
// minted its own id) degrades to inserting a completed record owned by the
// continuation turn, so the transcript still accounts for the execution.
func (s *ChatService) settleToolCall(ctx context.Context, fallbackMessageID string, res *protocol.ToolResultContent) {
	output, err := json.Marshal(res.Output.Value)
	if err != nil {
		slog.Error("Could not encode tool result output.", "tool_call_id", res.ToolCallID, "error", err)
		return
	}
	status := model.ToolCallSuccess
	var errDetail *string
	if res.Output.IsError() {
		status = model.ToolCallError
		detail := string(output)
		errDetail = &detail
	}
	updated, err := s.repo.UpdateToolCallResult(ctx, res.ToolCallID, output, status, errDetail)
	if err != nil {
		slog.Error("Error updating tool call result.", "tool_call_id", res.ToolCallID, "error", err)
		return
	}
	if updated {
		return
	}
	slog.Warn("No pending tool call matched result, inserting completed record.", "tool_call_id", res.ToolCallID)
	record := &model.ToolCall{
		ID:        protocol.ValidateToolCallID(res.ToolCallID),
		MessageID: fallbackMessageID,
		ToolName:  res.ToolName,
		Output:    output,
		Status:    status,
		Error:     errDetail,
		CreatedAt: time.Now(),
	}
	if err := s.repo.CreateToolCall(ctx, record); err != nil {
		slog.Error("Error inserting completed tool call.", "tool_call_id", res.ToolCallID, "error", err)
	}
}

// buildContext assembles the model-facing message list: the extended system
// prompt, the stored history, the tool result of a continuation turn, and
// the authentication marker once an anonymous caller exhausts the free
// turns.
func (s *ChatService) buildContext(ident model.Identity, settings *Settings, history []model.Message, res *protocol.ToolResultContent) []llm.Message {
	llmMessages := []llm.Message{{Role: model.RoleSystem, Content: buildSystemPrompt(settings.SystemPrompt, s.tools)}}

	realUserTurns := 0
	for _, msg := range history {
		if msg.Role == model.RoleUser && !protocol.IsSentinel(msg.Content) {
			realUserTurns++
		}
		llmMessages = append(llmMessages, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	if res != nil {
		if encoded, err := json.Marshal(res); err == nil {
			llmMessages = append(llmMessages, llm.Message{
				Role:    model.RoleUser,
				Content: fmt.Sprintf("The frontend tool %q finished. Result:\n%s\nContinue the conversation accordingly.", res.ToolName, encoded),
			})
		}
	}

	if !ident.Authenticated() && realUserTurns >= AuthMarkerAfterUserTurns {
		for i := len(llmMessages) - 1; i > 0; i-- {
			if llmMessages[i].Role == model.RoleUser {
				llmMessages[i].Content += "\n\n" + authRequiredMarker
				break
			}
		}
	}
	return llmMessages
}

// generateTitle creates a title for a new chat based on the initial exchange.
func (s *ChatService) generateTitle(ctx context.Context, chatID, supportModel, userQuery, assistantResponse string) {
	if supportModel == "" {
		return
	}
	messages := []llm.Message{
		{
			Role:    model.RoleSystem,
			Content: "You are an expert at creating short, concise titles for conversations. Respond with only the title, and nothing else.",
		},
		{
			Role: model.RoleUser,
			Content: fmt.Sprintf("Based on the following conversation, what would be a good title?\n\n---\nUser: %s\n\nAssistant: %s\n---",
				truncate(userQuery, 150),
				truncate(assistantResponse, 200),
			),
		},
	}
	resp, err := s.llm.Generate(ctx, &llm.GenerateRequest{Model: supportModel, Messages: messages})
	if err != nil {
		slog.Warn("Failed to generate chat title.", "chat_id", chatID, "error", err)
		return
	}

	newTitle := strings.TrimSpace(resp.Response)
	newTitle = strings.Trim(newTitle, `"'`)
	if newTitle == "" {
		slog.Warn("Generated title was empty after cleaning, keeping the default.", "chat_id", chatID)
		return
	}
	if err := s.repo.UpdateChatTitle(ctx, chatID, newTitle); err != nil {
		slog.Warn("Failed to store generated title.", "chat_id", chatID, "error", err)
	}
}

// truncate shortens a string to a specified number of runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
