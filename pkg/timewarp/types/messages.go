package types

// Colour is a Mattern's-algorithm node colour. Not to be confused with
// event Polarity.
type Colour uint8

const (
	White Colour = 0
	Red   Colour = 1
)

func (c Colour) String() string {
	if c == Red {
		return "red"
	}
	return "white"
}

// TerminationState is a node's passive/active state in the
// termination-detection token ring (section 4.I).
type TerminationState uint8

const (
	Active  TerminationState = 0
	Passive TerminationState = 1
)

// WireMessage is implemented by every message the kernel hands to, or
// receives from, the communication bridge. It carries only routing
// metadata; serialization format is opaque to the core (section 6).
type WireMessage interface {
	MessageID() MessageID
	From() NodeID
	To() NodeID
}

type envelope struct {
	ID   MessageID
	Src  NodeID
	Dst  NodeID
}

func (e envelope) MessageID() MessageID { return e.ID }
func (e envelope) From() NodeID         { return e.Src }
func (e envelope) To() NodeID           { return e.Dst }

func newEnvelope(src, dst NodeID) envelope {
	return envelope{ID: NewMessageID(), Src: src, Dst: dst}
}

// EventMessage carries a single simulation Event between nodes, tagged
// with the sender's Mattern colour at send time (section 4.H).
type EventMessage struct {
	envelope
	Event  Event
	Colour Colour
}

func NewEventMessage(src, dst NodeID, event Event, colour Colour) EventMessage {
	return EventMessage{envelope: newEnvelope(src, dst), Event: event, Colour: colour}
}

// MatternToken circulates the coloured-token GVT ring.
type MatternToken struct {
	envelope
	MClock uint32
	MSend  uint32
	Count  int64
}

func NewMatternToken(src, dst NodeID, mClock, mSend uint32, count int64) MatternToken {
	return MatternToken{envelope: newEnvelope(src, dst), MClock: mClock, MSend: mSend, Count: count}
}

// GVTUpdate broadcasts a newly-computed GVT to every node.
type GVTUpdate struct {
	envelope
	NewGVT uint32
}

func NewGVTUpdate(src, dst NodeID, newGVT uint32) GVTUpdate {
	return GVTUpdate{envelope: newEnvelope(src, dst), NewGVT: newGVT}
}

// TerminationToken circulates the passive-state detection ring.
type TerminationToken struct {
	envelope
	State         TerminationState
	InitiatorNode NodeID
	Count         int
}

func NewTerminationToken(src, dst, initiator NodeID, state TerminationState, count int) TerminationToken {
	return TerminationToken{envelope: newEnvelope(src, dst), State: state, InitiatorNode: initiator, Count: count}
}

// Terminator is broadcast once termination has been detected.
type Terminator struct {
	envelope
}

func NewTerminator(src, dst NodeID) Terminator {
	return Terminator{envelope: newEnvelope(src, dst)}
}
