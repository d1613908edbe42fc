package types

import "github.com/google/uuid"

// LPID identifies a logical process within a single node. Uniqueness
// is enforced at construction time (types.ModelContract error on
// collision, see errors.go).
type LPID string

// NodeID identifies a participant in the distributed GVT / termination
// token rings. Node 0 is always the Mattern/termination initiator.
type NodeID uint32

// MessageID uniquely tags a wire message, giving at-most-one-deliver
// bookkeeping on top of an at-least-once transport (spec section 6) a
// key; core.Bridge itself keeps no such record and only uses the ID in
// error messages. Minted with google/uuid, matching the
// opaque-identifier shape the example pack reaches for throughout
// (zefrenchwan-perspectives, daviddao-clockmail, gravitational-teleport).
type MessageID string

// NewMessageID mints a fresh MessageID.
func NewMessageID() MessageID {
	return MessageID(uuid.NewString())
}
