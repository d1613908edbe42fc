package types

import "fmt"

// ErrorKind classifies kernel errors per the error handling design
// (spec section 7). No error bubbles out of a worker.
// ProtocolViolation and ModelContract are the fatal kinds (see Fatal),
// but the core package does not abort on them: the worker and manager
// loops log errors of every kind and keep running.
// TransportTransient is confined to the communication bridge.
type ErrorKind int

const (
	// ProtocolViolation: a negative event arrives without a preceding
	// positive, the state queue becomes empty on restore, or the
	// schedule queue dequeues an event whose receiver is unknown
	// locally. Fatal.
	ProtocolViolation ErrorKind = iota

	// ModelContract: an LP emits an event with receive_time earlier
	// than the event it is handling, or LP names collide on
	// construction. Fatal.
	ModelContract

	// TransportTransient: a send failed but the backing buffer is
	// still valid; the bridge may retry. Never fatal.
	TransportTransient

	// Overflow: an inbound ring is saturated. Never fatal. Nothing in
	// the core package produces this kind, and the manager loop has no
	// backpressure handling for it.
	Overflow
)

func (k ErrorKind) String() string {
	switch k {
	case ProtocolViolation:
		return "ProtocolViolation"
	case ModelContract:
		return "ModelContract"
	case TransportTransient:
		return "TransportTransient"
	case Overflow:
		return "Overflow"
	default:
		return "Unknown"
	}
}

// Fatal reports whether errors of this kind must abort the process.
func (k ErrorKind) Fatal() bool {
	return k == ProtocolViolation || k == ModelContract
}

// KernelError is the concrete error type carried through the kernel.
// It keeps teacher's flat-sentinel style (errors.Is-compatible via Is)
// while attaching the diagnostic context (offending LP, event
// identity, queue sizes) that fatal errors must report per section 7.
type KernelError struct {
	Kind    ErrorKind
	LP      LPID
	Event   *Event
	Message string
}

func (e *KernelError) Error() string {
	if e.Event != nil {
		return fmt.Sprintf("%s: lp=%s event=%s: %s", e.Kind, e.LP, e.Event, e.Message)
	}
	return fmt.Sprintf("%s: lp=%s: %s", e.Kind, e.LP, e.Message)
}

// Is makes KernelError comparable by Kind through errors.Is, so
// callers can write errors.Is(err, types.ErrProtocolViolation) without
// needing to know about KernelError at all.
func (e *KernelError) Is(target error) bool {
	sentinel, ok := target.(*kindSentinel)
	return ok && sentinel.kind == e.Kind
}

type kindSentinel struct{ kind ErrorKind }

func (s *kindSentinel) Error() string { return s.kind.String() }

var (
	ErrProtocolViolation   error = &kindSentinel{ProtocolViolation}
	ErrModelContract       error = &kindSentinel{ModelContract}
	ErrTransportTransient  error = &kindSentinel{TransportTransient}
	ErrOverflow            error = &kindSentinel{Overflow}
)

// NewKernelError builds a KernelError with optional event context.
func NewKernelError(kind ErrorKind, lp LPID, event *Event, format string, args ...any) *KernelError {
	return &KernelError{
		Kind:    kind,
		LP:      lp,
		Event:   event,
		Message: fmt.Sprintf(format, args...),
	}
}
