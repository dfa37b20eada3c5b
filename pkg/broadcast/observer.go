package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Sender delivers one serialized message to a remote observer. Send must
// honour ctx; the broadcaster bounds every call with its send timeout.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

type State int32

const (
	StateJoining State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Observer is one subscribed client. It owns a single-slot mailbox: a newer
// snapshot replaces one that has not been written yet, so a slow client
// always receives the latest state and never blocks the others.
type Observer struct {
	id      uuid.UUID
	sender  Sender
	mailbox chan []byte
	state   atomic.Int32
	done    chan struct{}
	once    sync.Once
}

func newObserver(sender Sender) *Observer {
	o := &Observer{
		id:      uuid.New(),
		sender:  sender,
		mailbox: make(chan []byte, 1),
		done:    make(chan struct{}),
	}
	o.state.Store(int32(StateJoining))
	return o
}

func (o *Observer) ID() uuid.UUID {
	return o.id
}

func (o *Observer) State() State {
	return State(o.state.Load())
}

// Done is closed once the observer has left the set.
func (o *Observer) Done() <-chan struct{} {
	return o.done
}

func (o *Observer) offer(payload []byte) {
	select {
	case o.mailbox <- payload:
		return
	default:
	}
	select {
	case <-o.mailbox:
	default:
	}
	select {
	case o.mailbox <- payload:
	default:
	}
}

func (o *Observer) offerIfEmpty(payload []byte) {
	select {
	case o.mailbox <- payload:
	default:
	}
}

// close is idempotent and reports whether this call performed the transition.
func (o *Observer) close() bool {
	closed := false
	o.once.Do(func() {
		o.state.Store(int32(StateClosed))
		close(o.done)
		_ = o.sender.Close()
		closed = true
	})
	return closed
}
