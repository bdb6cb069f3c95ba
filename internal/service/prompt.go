package service

import (
	"fmt"
	"strings"
)

// AuthMarkerAfterUserTurns is the number of user turns an anonymous caller
// may send before the authentication-required marker is injected into model
// context. It is the single shared threshold; every call site reads it from
// here.
const AuthMarkerAfterUserTurns = 3

// authRequiredMarker is appended to the model-facing user content (never
// persisted, never echoed to the user) once the anonymous turn threshold is
// reached. It is the sole signal the agent uses to start the login flow.
const authRequiredMarker = "[AUTH_REQUIRED] The user has reached the anonymous conversation limit. " +
	"Guide them through logging in using the frontend tools before continuing."

// WaitingForLoginMessage is the fixed user-facing text the agent emits while
// a login action is pending on the caller's side.
const WaitingForLoginMessage = "One moment while I wait for you to finish logging in."

// buildSystemPrompt extends the configured system prompt with the
// structured-output contract and the declared frontend tool names.
func buildSystemPrompt(base string, toolNames []string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")
	b.WriteString("Every reply must be a single JSON object with exactly two keys: ")
	b.WriteString(`"result" (the text shown to the user) and "frontend_tool_call" `)
	b.WriteString("(null, or one action the user's browser must perform before the conversation can continue). ")
	b.WriteString("Never wrap the object in markdown and never add extra keys.\n")
	if len(toolNames) > 0 {
		fmt.Fprintf(&b, "Available frontend tools: %s. ", strings.Join(toolNames, ", "))
		b.WriteString("Request at most one per reply, only when the user must authenticate. ")
		fmt.Fprintf(&b, "While a tool is pending, set result to %q.\n", WaitingForLoginMessage)
	}
	b.WriteString("A [AUTH_REQUIRED] marker in the user content means the login flow must be started; " +
		"never repeat the marker back to the user.")
	return b.String()
}
