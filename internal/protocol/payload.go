// Package protocol defines the structured-output contract between the model
// and the rest of the system: the per-turn payload schema, the tool-call
// identifier codec, and the fallback extractor for transports that embed the
// payload inside plain text.
package protocol

import "encoding/json"

// AgentPayload is the JSON object every model turn must conform to.
// FrontendToolCall is non-nil if and only if the caller must execute exactly
// one named action before the conversation can usefully continue.
type AgentPayload struct {
	Result           string            `json:"result"`
	FrontendToolCall *FrontendToolCall `json:"frontend_tool_call"`
}

// FrontendToolCall is the single tool directive a turn may carry.
type FrontendToolCall struct {
	ToolName string   `json:"tool_name"`
	ToolArgs ToolArgs `json:"tool_args"`
}

// ToolArgs is the argument envelope shared by all frontend tools. Tools
// validate the subset they need.
type ToolArgs struct {
	Email *string `json:"email"`
	Code  *string `json:"code"`
}

// ToolResultContent is produced by the caller after executing a frontend
// tool and travels back to the orchestrator as request metadata. It is never
// stored as a first-class tool turn in the visible transcript.
type ToolResultContent struct {
	Type       string           `json:"type"` // Always "tool-result".
	ToolCallID string           `json:"toolCallId"`
	ToolName   string           `json:"toolName"`
	Output     ToolResultOutput `json:"output"`
}

// Tool result output types. The error-prefixed forms mark an error-typed
// output, which turns into a tool call record with status "error".
const (
	ToolOutputText      = "text"
	ToolOutputJSON      = "json"
	ToolOutputErrorText = "error-text"
	ToolOutputErrorJSON = "error-json"
)

// ToolResultOutput is the typed value a tool execution produced.
type ToolResultOutput struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// IsError reports whether the output is error-typed.
func (o ToolResultOutput) IsError() bool {
	return o.Type == ToolOutputErrorText || o.Type == ToolOutputErrorJSON
}

// ToolResultContentType is the only accepted value for ToolResultContent.Type.
const ToolResultContentType = "tool-result"

// ContinuationSentinel is the fixed text of the hidden user turn that
// re-invokes the orchestrator after a frontend tool finishes. It is
// deliberately distinct from any plausible real user input; the tool result
// itself travels alongside as request metadata, not as a stored turn.
const ContinuationSentinel = "__frontend_tool_continue__"

// IsSentinel reports whether a user turn's text is the continuation marker.
func IsSentinel(text string) bool {
	return text == ContinuationSentinel
}

// NewToolResult builds a success-typed tool result keyed by a codec id.
func NewToolResult(callID, toolName string, value any) ToolResultContent {
	return ToolResultContent{
		Type:       ToolResultContentType,
		ToolCallID: ValidateToolCallID(callID),
		ToolName:   toolName,
		Output:     ToolResultOutput{Type: ToolOutputJSON, Value: value},
	}
}

// NewToolErrorResult builds an error-typed tool result keyed by a codec id.
func NewToolErrorResult(callID, toolName string, value any) ToolResultContent {
	return ToolResultContent{
		Type:       ToolResultContentType,
		ToolCallID: ValidateToolCallID(callID),
		ToolName:   toolName,
		Output:     ToolResultOutput{Type: ToolOutputErrorJSON, Value: value},
	}
}

// PayloadSchema is the JSON schema handed to the model transport's
// schema-constrained output mode. Strictly no extra keys, no markdown
// wrapping.
var PayloadSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"result": {"type": "string"},
		"frontend_tool_call": {
			"type": ["object", "null"],
			"properties": {
				"tool_name": {"type": "string", "enum": ["login_user_start", "login_user_verify", "login_user_resend"]},
				"tool_args": {
					"type": "object",
					"properties": {
						"email": {"type": ["string", "null"]},
						"code": {"type": ["string", "null"]}
					},
					"required": ["email", "code"],
					"additionalProperties": false
				}
			},
			"required": ["tool_name", "tool_args"],
			"additionalProperties": false
		}
	},
	"required": ["result", "frontend_tool_call"],
	"additionalProperties": false
}`)
