package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	app_errors "loopchat/backend/internal/errors"
	"loopchat/backend/internal/interfaces"
	"loopchat/backend/internal/model"
	"loopchat/backend/internal/protocol"
	"loopchat/backend/internal/service"
)

// ChatHandler bundles the HTTP handlers for chats, messaging, and settings.
type ChatHandler struct {
	chats    interfaces.ChatService
	settings interfaces.SettingsService
}

func NewChatHandler(chats interfaces.ChatService, settings interfaces.SettingsService) *ChatHandler {
	return &ChatHandler{chats: chats, settings: settings}
}

// GetSettings returns the current application settings.
func (h *ChatHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, settings)
}

// UpdateSettings replaces the stored application settings.
func (h *ChatHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings service.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request payload", app_errors.ErrValidation))
		return
	}
	if err := h.settings.Save(r.Context(), &settings); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// GetChats lists the chats owned by the caller.
func (h *ChatHandler) GetChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.chats.ListChats(r.Context(), identityFromContext(r.Context()))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, chats)
}

// GetChat returns a full chat transcript, tool call records folded in.
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	fullChat, err := h.chats.GetFullChat(r.Context(), identityFromContext(r.Context()), chatID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, fullChat)
}

// UpdateChatTitle manually renames a chat.
func (h *ChatHandler) UpdateChatTitle(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	var req UpdateTitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request payload", app_errors.ErrValidation))
		return
	}
	if err := validateRequest(req); err != nil {
		respondWithError(w, err)
		return
	}

	if err := h.chats.UpdateChatTitle(r.Context(), identityFromContext(r.Context()), chatID, req.Title); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// HandleDeleteChat removes a chat and everything attached to it.
func (h *ChatHandler) HandleDeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	if err := h.chats.DeleteChat(r.Context(), identityFromContext(r.Context()), chatID); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// HandleStreamMessage accepts a new user turn (or a continuation carrying a
// frontend tool result) and streams the model's answer back over SSE.
func (h *ChatHandler) HandleStreamMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var req service.CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendStreamError(w, "Invalid request body")
		return
	}
	if err := validateRequest(req); err != nil {
		sendStreamError(w, err.Error())
		return
	}
	if res := req.FrontendToolCallRes; res != nil && res.Type != protocol.ToolResultContentType {
		sendStreamError(w, "Unsupported tool result type")
		return
	}

	streamChan := make(chan model.StreamResponse)
	go h.chats.HandleNewMessage(r.Context(), identityFromContext(r.Context()), &req, streamChan)

	for chunk := range streamChan {
		if r.Context().Err() != nil {
			slog.Info("Client disconnected, draining stream.")
			break
		}
		if err := writeStreamEvent(w, chunk); err != nil {
			slog.Warn("Stopping stream after write failure.", "error", err)
			break
		}
	}
	// Drain whatever the service still has to say so it never blocks on a
	// channel nobody reads.
	for range streamChan {
	}
}
