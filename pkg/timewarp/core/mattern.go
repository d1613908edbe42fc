package core

import (
	"sync"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
)

// MatternGVT implements the coloured-token distributed GVT algorithm
// of section 4.H. One instance lives on each node; node 0 additionally
// plays the initiator role (it alone starts new rounds and decides
// when a round's token has returned with count == 0).
type MatternGVT struct {
	mu sync.Mutex

	self      types.NodeID
	next      types.NodeID // ring successor this node forwards tokens to
	initiator bool

	colour         types.Colour
	whiteSendCount int64
	minRedSendTS   uint32

	gvt uint32

	// roundsSeen counts rounds started by this initiator; the first
	// token to return with count == 0 is not conclusive (it may be the
	// same round's own start echoing back before any in-flight event
	// could have been counted), so section 4.H requires "at least the
	// second round" before trusting count == 0.
	roundsSeen int

	log types.Logger
}

// NewMatternGVT constructs the per-node coloured-token state. self is
// this node's id; next is the node this one forwards tokens to around
// the ring; initiator marks node 0.
func NewMatternGVT(self, next types.NodeID, initiator bool, log types.Logger) *MatternGVT {
	return &MatternGVT{
		self:         self,
		next:         next,
		initiator:    initiator,
		colour:       types.White,
		minRedSendTS: maxVirtualTime,
		log:          log,
	}
}

// OnSend is called whenever this node sends an event to another node
// (never for purely local, same-node delivery, which carries no
// colour and cannot race the token). On a White node it increments the
// in-flight counter; on a Red node it tracks the minimum receive_time
// among Red sends, per section 4.H.
func (m *MatternGVT) OnSend(eventReceiveTime uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.colour == types.White {
		m.whiteSendCount++
	} else {
		m.minRedSendTS = minU32(m.minRedSendTS, eventReceiveTime)
	}
}

// OnReceive is called whenever this node accepts an inbound event sent
// while this node itself was White: it decrements the counter so a
// White-sent, already-arrived event is not double counted by the
// initiator waiting for count to reach zero.
func (m *MatternGVT) OnReceive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.colour == types.White {
		m.whiteSendCount--
	}
}

// StartRound is called by the initiator when its GVT period elapses.
// It flips to Red, samples localGVT, and returns the token to forward
// to m.next.
func (m *MatternGVT) StartRound(localGVT uint32) types.MatternToken {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.colour = types.Red
	m.minRedSendTS = maxVirtualTime
	m.roundsSeen++

	return types.NewMatternToken(m.self, m.next, localGVT, maxVirtualTime, m.whiteSendCount)
}

// MatternResult is returned by HandleToken: either the token continues
// around the ring (Forward is set) or the round has converged and a
// new GVT is ready to broadcast (Done is set).
type MatternResult struct {
	Forward *types.MatternToken
	Done    bool
	NewGVT  uint32
}

// HandleToken implements the non-initiator and initiator receive rules
// of section 4.H in one place, branching on m.initiator.
func (m *MatternGVT) HandleToken(token types.MatternToken, localGVT uint32) MatternResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initiator {
		if m.colour == types.White {
			m.colour = types.Red
			m.minRedSendTS = maxVirtualTime
		}
		mClock := minU32(token.MClock, localGVT)
		mSend := minU32(token.MSend, m.minRedSendTS)
		count := token.Count + m.whiteSendCount
		m.whiteSendCount = 0

		fwd := types.NewMatternToken(m.self, m.next, mClock, mSend, count)
		return MatternResult{Forward: &fwd}
	}

	// Initiator branch: fold this arriving token into running totals
	// exactly like a non-initiator would, then decide.
	mClock := minU32(token.MClock, localGVT)
	mSend := minU32(token.MSend, m.minRedSendTS)
	count := token.Count + m.whiteSendCount
	m.whiteSendCount = 0

	if count == 0 && m.roundsSeen >= 2 {
		newGVT := minU32(mClock, mSend)
		m.gvt = newGVT
		return MatternResult{Done: true, NewGVT: newGVT}
	}

	m.roundsSeen++
	m.colour = types.Red
	m.minRedSendTS = maxVirtualTime
	fwd := types.NewMatternToken(m.self, m.next, mClock, mSend, count)
	return MatternResult{Forward: &fwd}
}

// OnGVTUpdate implements the broadcast-receipt rule: every node,
// including the initiator, resets to White for the next round once a
// new GVT has been agreed.
func (m *MatternGVT) OnGVTUpdate(newGVT uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gvt = newGVT
	m.colour = types.White
	m.roundsSeen = 0
}

// GVT returns the most recently agreed Global Virtual Time.
func (m *MatternGVT) GVT() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gvt
}

// Colour reports this node's current Mattern colour, for tests and the
// bridge's dispatch logic (an EventMessage sent out must be tagged with
// the colour in effect at send time).
func (m *MatternGVT) Colour() types.Colour {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.colour
}
