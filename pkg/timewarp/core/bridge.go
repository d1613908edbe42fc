package core

import (
	"sync"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
)

// Transport is the kernel's only contract with the outside world for
// inter-node communication (section 4.J / section 6): it does not
// care how bytes cross the wire, only that sends preserve per-pair
// ordering and deliveries are at-least-once with at-most-one-deliver
// semantics enforced below the interface. This mirrors the teacher's
// own core.Transport interface (Broadcast/Unicast/Listen/Close)
// trimmed to point-to-point send, since spec.md's node topology is a
// ring rather than teacher's partition broadcast groups.
type Transport interface {
	// Send delivers msg to msg.To(). Errors are TransportTransient
	// (section 7): the caller may retry.
	Send(msg types.WireMessage) error

	// Listen returns the channel inbound messages arrive on.
	Listen() <-chan types.WireMessage

	// Close releases the transport's resources.
	Close()
}

// dispatchFlag is a bitset returned by Bridge.Dispatch, matching
// section 4.J's "dispatch(inbound) -> flags" contract: the manager
// loop checks which flags are set rather than type-switching itself.
type dispatchFlag uint8

const (
	FlagEvent dispatchFlag = 1 << iota
	FlagMatternToken
	FlagGVTUpdate
	FlagTerminationToken
	FlagTerminator
)

// Bridge presents the typed message surface of section 4.J: an insert
// queue for outbound messages, flush() to drain them to the Transport,
// and dispatch() to route an inbound message to its registered
// handler. One Bridge serves one node.
type Bridge struct {
	mu sync.Mutex

	transport Transport
	outbound  []types.WireMessage

	onEvent            func(types.EventMessage)
	onMatternToken     func(types.MatternToken)
	onGVTUpdate        func(types.GVTUpdate)
	onTerminationToken func(types.TerminationToken)
	onTerminator       func(types.Terminator)

	log types.Logger
}

// NewBridge constructs a Bridge over the given Transport.
func NewBridge(transport Transport, log types.Logger) *Bridge {
	return &Bridge{transport: transport, log: log}
}

// OnEvent etc. register the manager loop's handlers for each wire
// message type; Dispatch calls whichever is registered.
func (b *Bridge) OnEvent(f func(types.EventMessage))                { b.onEvent = f }
func (b *Bridge) OnMatternToken(f func(types.MatternToken))         { b.onMatternToken = f }
func (b *Bridge) OnGVTUpdate(f func(types.GVTUpdate))               { b.onGVTUpdate = f }
func (b *Bridge) OnTerminationToken(f func(types.TerminationToken)) { b.onTerminationToken = f }
func (b *Bridge) OnTerminator(f func(types.Terminator))             { b.onTerminator = f }

// Insert enqueues msg for the next Flush, per section 4.J's FIFO send
// queue (the design note's "ticket lock" ordering guarantee from
// section 5 is provided by this single mutex serializing Insert).
func (b *Bridge) Insert(msg types.WireMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outbound = append(b.outbound, msg)
}

// Flush drains the outbound queue to the transport, returning the
// first TransportTransient error encountered (section 7); messages
// already sent are not requeued, while the failed message and every
// message after it go back to the front of the queue, in order, for
// the next Flush to retry.
func (b *Bridge) Flush() error {
	b.mu.Lock()
	pending := b.outbound
	b.outbound = nil
	b.mu.Unlock()

	for i, msg := range pending {
		if err := b.transport.Send(msg); err != nil {
			b.mu.Lock()
			b.outbound = append(pending[i:], b.outbound...)
			b.mu.Unlock()
			return types.NewKernelError(types.TransportTransient, "", nil,
				"failed sending message %s: %v", msg.MessageID(), err)
		}
	}
	return nil
}

// Dispatch routes a single inbound message to its registered handler
// and returns the flag bitset the manager loop polls, per section
// 4.J. An inbound message of a type with no registered handler is
// silently dropped (the flag is still returned so the manager can
// observe the dispatch kind in tests).
func (b *Bridge) Dispatch(msg types.WireMessage) dispatchFlag {
	switch m := msg.(type) {
	case types.EventMessage:
		if b.onEvent != nil {
			b.onEvent(m)
		}
		return FlagEvent
	case types.MatternToken:
		if b.onMatternToken != nil {
			b.onMatternToken(m)
		}
		return FlagMatternToken
	case types.GVTUpdate:
		if b.onGVTUpdate != nil {
			b.onGVTUpdate(m)
		}
		return FlagGVTUpdate
	case types.TerminationToken:
		if b.onTerminationToken != nil {
			b.onTerminationToken(m)
		}
		return FlagTerminationToken
	case types.Terminator:
		if b.onTerminator != nil {
			b.onTerminator(m)
		}
		return FlagTerminator
	default:
		if b.log != nil {
			b.log.Warnf("bridge: dropped unrecognized message type %T", msg)
		}
		return 0
	}
}

// PumpInbound drains the transport's Listen channel, calling Dispatch
// on each message, until the channel is closed. Intended to run in its
// own goroutine, mirroring teacher's ReliableTransport.poll/consume
// split (poll reads off the wire, consume hands to listeners).
func (b *Bridge) PumpInbound() {
	for msg := range b.transport.Listen() {
		b.Dispatch(msg)
	}
}

// LoopbackBridge is the in-process reference Transport (section 1's
// "external collaborators via interfaces only" plus DESIGN.md's note
// that teacher's relt-backed transport cannot be fetched): an
// in-memory channel fabric connecting every node id registered with
// it, used for single-process simulations and tests.
type LoopbackBridge struct {
	mu      sync.Mutex
	inboxes map[types.NodeID]chan types.WireMessage
	closed  bool
}

// NewLoopbackBridge constructs an empty loopback fabric.
func NewLoopbackBridge() *LoopbackBridge {
	return &LoopbackBridge{inboxes: make(map[types.NodeID]chan types.WireMessage)}
}

// Register adds node id to the fabric and returns the Transport handle
// that node should use.
func (l *LoopbackBridge) Register(id types.NodeID) Transport {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan types.WireMessage, 256)
	l.inboxes[id] = ch
	return &loopbackTransport{fabric: l, self: id, inbox: ch}
}

type loopbackTransport struct {
	fabric *LoopbackBridge
	self   types.NodeID
	inbox  chan types.WireMessage
}

func (t *loopbackTransport) Send(msg types.WireMessage) error {
	t.fabric.mu.Lock()
	defer t.fabric.mu.Unlock()
	if t.fabric.closed {
		return types.NewKernelError(types.TransportTransient, "", nil, "loopback bridge closed")
	}
	dst, ok := t.fabric.inboxes[msg.To()]
	if !ok {
		return types.NewKernelError(types.TransportTransient, "", nil, "unknown destination node %d", msg.To())
	}
	select {
	case dst <- msg:
		return nil
	default:
		return types.NewKernelError(types.TransportTransient, "", nil, "inbox full for node %d", msg.To())
	}
}

func (t *loopbackTransport) Listen() <-chan types.WireMessage { return t.inbox }

func (t *loopbackTransport) Close() {
	t.fabric.mu.Lock()
	defer t.fabric.mu.Unlock()
	delete(t.fabric.inboxes, t.self)
}

var (
	_ Transport = (*loopbackTransport)(nil)
)
