package protocol

import (
	"hash/fnv"
	"strconv"
)

// MaxToolCallIDLen is a hard limit imposed by the model-invocation
// transport on tool call identifiers.
const MaxToolCallIDLen = 64

// NewToolCallID builds a deterministic identifier of the form
// "prefix-toolName-hash", guaranteed to be at most MaxToolCallIDLen bytes.
//
// The hash segment is a base-36 FNV-1a digest of the seed, sized to exactly
// fill the remaining budget: left-padded with zeros when short, truncated
// when the budget is smaller than the digest. Distinct seeds give distinct
// ids with high probability; seeds are turn ids, which are already unique.
func NewToolCallID(prefix, toolName, seed string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	digest := strconv.FormatUint(h.Sum64(), 36)

	budget := MaxToolCallIDLen - len(prefix) - len(toolName) - 2
	if budget <= 0 {
		// Degenerate prefix/name combination: fall back to truncating the
		// whole id instead of producing an empty hash segment.
		return ValidateToolCallID(prefix + "-" + toolName + "-" + digest)
	}
	if len(digest) > budget {
		digest = digest[:budget]
	}
	for len(digest) < budget {
		digest = "0" + digest
	}
	return prefix + "-" + toolName + "-" + digest
}

// ValidateToolCallID truncates an externally supplied id exceeding the
// transport limit rather than rejecting it. Lossy but non-fatal.
func ValidateToolCallID(id string) string {
	if len(id) > MaxToolCallIDLen {
		return id[:MaxToolCallIDLen]
	}
	return id
}
