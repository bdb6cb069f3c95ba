package model

import (
	"encoding/json"
	"strings"
)

// Part types. Tool parts use the "tool-<name>" form so the raw-parts payload
// stays self-describing without a separate name field lookup.
const (
	PartTypeText       = "text"
	PartTypeObject     = "object"
	toolPartTypePrefix = "tool-"
)

// Part is one element of a turn's heterogeneous display payload: plain text,
// a tool invocation with its recorded input/output, or a structured object.
type Part struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Status     string          `json:"status,omitempty"`
	Object     json.RawMessage `json:"object,omitempty"`
}

// IsTool reports whether the part records a tool invocation.
func (p Part) IsTool() bool {
	return strings.HasPrefix(p.Type, toolPartTypePrefix)
}

// TextPart builds a plain text part.
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// ObjectPart builds a structured-object part.
func ObjectPart(object json.RawMessage) Part {
	return Part{Type: PartTypeObject, Object: object}
}

// ToolPart builds a tool part from a durable tool call record.
func ToolPart(call ToolCall) Part {
	return Part{
		Type:       toolPartTypePrefix + call.ToolName,
		ToolCallID: call.ID,
		ToolName:   call.ToolName,
		Input:      call.Input,
		Output:     call.Output,
		Status:     call.Status,
	}
}

// MergeParts folds tool parts into an existing part sequence.
//
// Invariant: tool parts precede the first text part; when no text part
// exists, tool parts come first. Relative order within each group is kept.
func MergeParts(existing, toolParts []Part) []Part {
	if len(toolParts) == 0 {
		return existing
	}
	firstText := -1
	for i, p := range existing {
		if p.Type == PartTypeText {
			firstText = i
			break
		}
	}
	if firstText == -1 {
		firstText = 0
	}
	merged := make([]Part, 0, len(existing)+len(toolParts))
	merged = append(merged, existing[:firstText]...)
	merged = append(merged, toolParts...)
	merged = append(merged, existing[firstText:]...)
	return merged
}

// rawParts is the persisted shape of a turn's part sequence.
type rawParts struct {
	Parts []Part `json:"parts"`
}

// EncodeParts serializes a part sequence into the persisted raw-parts payload.
func EncodeParts(parts []Part) ([]byte, error) {
	return json.Marshal(rawParts{Parts: parts})
}

// DecodeParts restores a part sequence from the persisted raw-parts payload.
// An empty payload decodes to no parts.
func DecodeParts(data []byte) ([]Part, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw rawParts
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw.Parts, nil
}
