package dispatch

import (
	"context"

	"loopchat/backend/internal/protocol"
)

// ContinuationSentinel mirrors the protocol-level marker so dispatch
// callers don't need a second import for the common case.
const ContinuationSentinel = protocol.ContinuationSentinel

// Sender delivers a continuation round trip: it appends a user turn with
// the sentinel text and attaches the tool result to the request. The send
// must only return once the continuation is observably enqueued.
type Sender interface {
	SendContinuation(ctx context.Context, result protocol.ToolResultContent) error
}

// IsSentinel reports whether a user turn's text is the continuation marker.
func IsSentinel(text string) bool {
	return protocol.IsSentinel(text)
}
