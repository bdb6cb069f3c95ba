package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPayload(t *testing.T) {
	t.Run("Plain payload without directive", func(t *testing.T) {
		payload := ExtractPayload(`{"result": "hello", "frontend_tool_call": null}`)
		require.NotNil(t, payload)
		assert.Equal(t, "hello", payload.Result)
		assert.Nil(t, payload.FrontendToolCall)
	})

	t.Run("Payload embedded in surrounding prose", func(t *testing.T) {
		text := "Sure, here is the response:\n" +
			`{"result": "ok", "frontend_tool_call": null}` + "\nthanks"
		payload := ExtractPayload(text)
		require.NotNil(t, payload)
		assert.Equal(t, "ok", payload.Result)
	})

	t.Run("Prefers the candidate carrying a tool directive", func(t *testing.T) {
		text := `{"result": "first", "frontend_tool_call": null}` +
			` {"result": "second", "frontend_tool_call": {"tool_name": "login_user_start", "tool_args": {"email": "a@b.c", "code": null}}}`
		payload := ExtractPayload(text)
		require.NotNil(t, payload)
		require.NotNil(t, payload.FrontendToolCall)
		assert.Equal(t, "second", payload.Result)
		assert.Equal(t, "login_user_start", payload.FrontendToolCall.ToolName)
		require.NotNil(t, payload.FrontendToolCall.ToolArgs.Email)
		assert.Equal(t, "a@b.c", *payload.FrontendToolCall.ToolArgs.Email)
	})

	t.Run("Skips a malformed span and finds a later candidate", func(t *testing.T) {
		text := `{"result": broken} {"result": "good", "frontend_tool_call": null}`
		payload := ExtractPayload(text)
		require.NotNil(t, payload)
		assert.Equal(t, "good", payload.Result)
	})

	t.Run("Braces inside string literals do not confuse the scan", func(t *testing.T) {
		text := `{"result": "code sample: func() { return \"}\" }", "frontend_tool_call": null}`
		payload := ExtractPayload(text)
		require.NotNil(t, payload)
		assert.Contains(t, payload.Result, "func()")
	})

	t.Run("Returns nil on streaming fragments", func(t *testing.T) {
		fragments := []string{
			"",
			"{",
			`{"result`,
			`{"result": "par`,
			`{"result": "partial", "frontend_tool_call": {"tool_na`,
		}
		for _, fragment := range fragments {
			assert.Nil(t, ExtractPayload(fragment), "fragment: %q", fragment)
		}
	})

	t.Run("Idempotent on the final complete text", func(t *testing.T) {
		text := `noise {"result": "done", "frontend_tool_call": null} noise`
		first := ExtractPayload(text)
		second := ExtractPayload(text)
		require.NotNil(t, first)
		assert.Equal(t, first, second)
	})
}
