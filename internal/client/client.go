// Package client is the caller-side consumer of the chat backend: an HTTP
// client for the JSON endpoints plus an SSE reader for the streaming message
// endpoint. The Conversation controller in this package owns the live
// transcript and the tool dispatch guard.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"loopchat/backend/internal/model"
	"loopchat/backend/internal/service"
)

// Client talks to one chat backend on behalf of one caller identity.
type Client struct {
	baseURL string
	ident   model.Identity
	http    *http.Client
}

// NewClient builds a client for the given base URL (no trailing slash) and
// caller identity. The HTTP client has no overall timeout because message
// streams are long-lived.
func NewClient(baseURL string, ident model.Identity) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		ident:   ident,
		http:    &http.Client{},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.ident.UserID != "" {
		req.Header.Set("X-User-ID", c.ident.UserID)
	}
	if c.ident.SessionID != "" {
		req.Header.Set("X-Session-ID", c.ident.SessionID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// GetChat fetches a full transcript with tool call records folded in.
func (c *Client) GetChat(ctx context.Context, chatID string) (*model.FullChat, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/chats/"+chatID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	var fullChat model.FullChat
	if err := json.NewDecoder(resp.Body).Decode(&fullChat); err != nil {
		return nil, fmt.Errorf("could not decode chat: %w", err)
	}
	return &fullChat, nil
}

// ListChats fetches the caller's chats, newest first.
func (c *Client) ListChats(ctx context.Context) ([]*model.Chat, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/chats", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	var chats []*model.Chat
	if err := json.NewDecoder(resp.Body).Decode(&chats); err != nil {
		return nil, fmt.Errorf("could not decode chats: %w", err)
	}
	return chats, nil
}

// SendMessage posts a new turn and consumes the SSE answer. Every chunk is
// handed to onChunk in arrival order; the final chunk (Done set) is also
// returned. A server-side stream error surfaces as a non-nil error after
// the chunks seen so far.
func (c *Client) SendMessage(ctx context.Context, msg *service.CreateMessageRequest, onChunk func(model.StreamResponse)) (*model.StreamResponse, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("could not encode message: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/chats/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var final *model.StreamResponse
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	errorEvent := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "event: ") {
			errorEvent = strings.TrimPrefix(line, "event: ") == "error"
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if errorEvent {
			var apiErr struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal([]byte(data), &apiErr); err == nil && apiErr.Error != "" {
				return final, fmt.Errorf("stream error: %s", apiErr.Error)
			}
			return final, fmt.Errorf("stream error: %s", data)
		}
		var chunk model.StreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return final, fmt.Errorf("could not decode stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return final, fmt.Errorf("stream error: %s", chunk.Error)
		}
		if onChunk != nil {
			onChunk(chunk)
		}
		if chunk.Done {
			chunkCopy := chunk
			final = &chunkCopy
		}
	}
	if err := scanner.Err(); err != nil {
		return final, fmt.Errorf("stream read failed: %w", err)
	}
	if final == nil {
		return nil, fmt.Errorf("stream ended without a final chunk")
	}
	return final, nil
}

func decodeAPIError(resp *http.Response) error {
	var apiErr struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}

// now is stubbed in tests.
var now = time.Now
