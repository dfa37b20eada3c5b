// Package broadcast pushes periodic status snapshots to every live observer.
//
// Each observer gets its own writer goroutine so a stalled client cannot
// delay delivery to the rest of the set. A failed or timed-out send removes
// the observer.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	MessageTypeStatusUpdate = "status_update"

	DefaultInterval    = 30 * time.Second
	DefaultSendTimeout = 5 * time.Second
)

// Message is the envelope written to observers.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Source returns the value broadcast as Message.Data.
type Source func() interface{}

type Broadcaster struct {
	source      Source
	interval    time.Duration
	sendTimeout time.Duration
	now         func() time.Time

	mu        sync.Mutex
	observers map[uuid.UUID]*Observer
	closed    bool

	notify chan struct{}
}

type Option func(*Broadcaster)

func WithInterval(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.interval = d
		}
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.sendTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Broadcaster) {
		b.now = now
	}
}

func New(source Source, options ...Option) *Broadcaster {
	b := &Broadcaster{
		source:      source,
		interval:    DefaultInterval,
		sendTimeout: DefaultSendTimeout,
		now:         time.Now,
		observers:   map[uuid.UUID]*Observer{},
		notify:      make(chan struct{}, 1),
	}
	for _, o := range options {
		o(b)
	}
	return b
}

// Subscribe adds sender to the observer set and queues the current snapshot
// for it right away. The observer joins the set before that snapshot is
// taken, so a broadcast racing with the join either reaches it or is already
// reflected in the initial snapshot.
func (b *Broadcaster) Subscribe(sender Sender) (*Observer, error) {
	if sender == nil {
		return nil, errors.New("sender cannot be nil")
	}

	o := newObserver(sender)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.New("broadcaster is closed")
	}
	b.observers[o.id] = o
	count := len(b.observers)
	b.mu.Unlock()

	payload, err := b.snapshot()
	if err != nil {
		b.mu.Lock()
		delete(b.observers, o.id)
		b.mu.Unlock()
		return nil, err
	}

	// A broadcast that already filled the mailbox was snapshotted after the
	// join and is at least as new as payload.
	o.offerIfEmpty(payload)
	o.state.CompareAndSwap(int32(StateJoining), int32(StateActive))
	go b.write(o)

	log.Debug().Str("observer", o.id.String()).Int("observers", count).Msg("observer joined")
	return o, nil
}

// Unsubscribe removes the observer. Unknown ids are ignored.
func (b *Broadcaster) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	o, ok := b.observers[id]
	delete(b.observers, id)
	count := len(b.observers)
	b.mu.Unlock()

	if ok && o.close() {
		log.Debug().Str("observer", id.String()).Int("observers", count).Msg("observer left")
	}
}

func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}

// Notify asks the running broadcaster for an out-of-cycle push. Calls made
// while a push is already pending are merged.
func (b *Broadcaster) Notify() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Run pushes a snapshot every interval and on every Notify until ctx is
// done. All remaining observers are closed on return.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	defer b.closeAll()

	log.Info().Dur("interval", b.interval).Dur("send_timeout", b.sendTimeout).Msg("status broadcaster started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("status broadcaster stopped")
			return nil
		case <-ticker.C:
			b.Broadcast()
		case <-b.notify:
			b.Broadcast()
		}
	}
}

// Broadcast queues the current snapshot for every active observer.
func (b *Broadcaster) Broadcast() {
	b.mu.Lock()
	targets := make([]*Observer, 0, len(b.observers))
	for _, o := range b.observers {
		targets = append(targets, o)
	}
	b.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	payload, err := b.snapshot()
	if err != nil {
		log.Error().Err(err).Msg("could not build status snapshot")
		return
	}
	for _, o := range targets {
		o.offer(payload)
	}
	log.Trace().Int("observers", len(targets)).Msg("status broadcast queued")
}

func (b *Broadcaster) snapshot() ([]byte, error) {
	var data interface{}
	if b.source != nil {
		data = b.source()
	}
	payload, err := json.Marshal(Message{
		Type:      MessageTypeStatusUpdate,
		Data:      data,
		Timestamp: b.now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal status update")
	}
	return payload, nil
}

func (b *Broadcaster) write(o *Observer) {
	for {
		select {
		case <-o.done:
			return
		case payload := <-o.mailbox:
			ctx, cancel := context.WithTimeout(context.Background(), b.sendTimeout)
			err := o.sender.Send(ctx, payload)
			cancel()
			if err != nil {
				log.Warn().Err(err).Str("observer", o.id.String()).Msg("dropping observer after failed send")
				b.Unsubscribe(o.id)
				return
			}
		}
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	b.closed = true
	observers := b.observers
	b.observers = map[uuid.UUID]*Observer{}
	b.mu.Unlock()

	for _, o := range observers {
		o.close()
	}
}
