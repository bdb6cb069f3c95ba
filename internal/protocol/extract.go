package protocol

import "encoding/json"

// ExtractPayload scans text for an embedded AgentPayload JSON object.
//
// This is the fallback path for transports that cannot deliver a native
// structured part and instead embed the payload inside a plain text block.
// Streamed fragments are transiently invalid JSON, so the scan is total and
// restartable: it never fails, returning nil until a complete candidate
// appears, and re-running it on the same final text yields the same result.
//
// Candidates are balanced `{...}` spans. The first candidate carrying a
// non-nil frontend_tool_call wins; otherwise the first syntactically valid
// candidate is returned.
func ExtractPayload(text string) *AgentPayload {
	var first *AgentPayload
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end, ok := matchBrace(text, i)
		if !ok {
			// No balanced close for this open brace; nothing later can be
			// balanced either once the remainder is exhausted, but a later
			// open brace may still close earlier, so keep scanning.
			continue
		}
		var payload AgentPayload
		if err := json.Unmarshal([]byte(text[i:end+1]), &payload); err != nil {
			// Malformed span: advance past its opening brace and look for
			// another candidate object.
			continue
		}
		if payload.FrontendToolCall != nil {
			return &payload
		}
		if first == nil {
			p := payload
			first = &p
		}
		// Do not jump past end: a nested object inside this candidate may
		// still carry the tool directive.
	}
	return first
}

// matchBrace returns the index of the brace closing the object opened at
// start, tracking nesting depth and skipping string literals with escapes.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
