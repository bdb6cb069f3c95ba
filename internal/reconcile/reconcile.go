// Package reconcile merges the live streaming transcript with persisted
// history into one displayable sequence, dropping hidden continuation turns
// and duplicates both by id and by content fingerprint.
package reconcile

import "loopchat/backend/internal/model"

// fingerprintRunes bounds how much text participates in the content
// fingerprint. Long turns differ early or not at all in practice.
const fingerprintRunes = 80

// Fingerprint builds a cheap content-based key (role + truncated text
// prefix) used to catch duplicate turns that lack matching identifiers,
// e.g. near-duplicates produced across a stream restart.
func Fingerprint(role, text string) string {
	runes := []rune(text)
	if len(runes) > fingerprintRunes {
		runes = runes[:fingerprintRunes]
	}
	return role + "\x00" + string(runes)
}

// MessageFingerprint fingerprints a turn.
func MessageFingerprint(msg model.Message) string {
	return Fingerprint(msg.Role, msg.Content)
}

// Reconcile merges persisted history with the live transcript, in that
// order, applying the hidden-id filter first and then removing duplicates.
//
// Duplicate classes: identical turn id (optimistic local turn plus
// server-echoed turn) keeps the first occurrence; two assistant turns with
// different ids but a matching fingerprint keep the first as well. The
// function is pure and idempotent: reconciling an already reconciled
// sequence yields the same sequence.
func Reconcile(persisted, live []model.Message, hidden map[string]struct{}) []model.Message {
	merged := make([]model.Message, 0, len(persisted)+len(live))
	merged = append(merged, persisted...)
	merged = append(merged, live...)

	seenIDs := make(map[string]struct{}, len(merged))
	seenPrints := make(map[string]struct{}, len(merged))
	out := make([]model.Message, 0, len(merged))
	for _, msg := range merged {
		if _, isHidden := hidden[msg.ID]; isHidden {
			continue
		}
		if _, dup := seenIDs[msg.ID]; dup {
			continue
		}
		if msg.Role == model.RoleAssistant {
			print := MessageFingerprint(msg)
			if _, dup := seenPrints[print]; dup {
				continue
			}
			seenPrints[print] = struct{}{}
		}
		seenIDs[msg.ID] = struct{}{}
		out = append(out, msg)
	}
	return out
}
