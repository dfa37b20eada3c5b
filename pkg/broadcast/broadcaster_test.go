package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []Message
	received chan struct{}
	fail     bool
	block    bool
	closed   atomic.Bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{received: make(chan struct{}, 64)}
}

func (f *fakeSender) Send(ctx context.Context, payload []byte) error {
	f.mu.Lock()
	fail, block := f.fail, f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return errors.New("broken pipe")
	}
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	f.mu.Lock()
	f.messages = append(f.messages, m)
	f.mu.Unlock()
	f.received <- struct{}{}
	return nil
}

func (f *fakeSender) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeSender) setFail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = true
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeSender) last() Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[len(f.messages)-1]
}

func waitReceived(t *testing.T, f *fakeSender) {
	t.Helper()
	select {
	case <-f.received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a status update")
	}
}

func counterSource() (Source, *atomic.Int64) {
	var n atomic.Int64
	return func() interface{} {
		return map[string]interface{}{"n": n.Load()}
	}, &n
}

func TestSubscribe_SendsImmediateSnapshot(t *testing.T) {
	source, _ := counterSource()
	b := New(source, WithInterval(time.Hour))
	s := newFakeSender()

	o, err := b.Subscribe(s)
	require.NoError(t, err)
	defer b.Unsubscribe(o.ID())

	waitReceived(t, s)
	m := s.last()
	assert.Equal(t, MessageTypeStatusUpdate, m.Type)
	assert.Equal(t, map[string]interface{}{"n": float64(0)}, m.Data)
	assert.False(t, m.Timestamp.IsZero())
	assert.Equal(t, StateActive, o.State())
	assert.Equal(t, 1, b.Count())
}

func TestRun_PushesOnNotify(t *testing.T) {
	source, n := counterSource()
	b := New(source, WithInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.Run(ctx) }()

	s := newFakeSender()
	_, err := b.Subscribe(s)
	require.NoError(t, err)
	waitReceived(t, s)

	n.Store(7)
	b.Notify()
	waitReceived(t, s)

	assert.Equal(t, map[string]interface{}{"n": float64(7)}, s.last().Data)
}

func TestRun_PushesOnTicker(t *testing.T) {
	source, _ := counterSource()
	b := New(source, WithInterval(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.Run(ctx) }()

	s := newFakeSender()
	_, err := b.Subscribe(s)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		waitReceived(t, s)
	}
	assert.GreaterOrEqual(t, s.count(), 3)
}

func TestFailedSendRemovesOnlyThatObserver(t *testing.T) {
	source, _ := counterSource()
	b := New(source, WithInterval(time.Hour))

	good := newFakeSender()
	bad := newFakeSender()
	_, err := b.Subscribe(good)
	require.NoError(t, err)
	waitReceived(t, good)
	ob, err := b.Subscribe(bad)
	require.NoError(t, err)
	waitReceived(t, bad)

	bad.setFail()
	b.Broadcast()

	select {
	case <-ob.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("failing observer was not removed")
	}
	waitReceived(t, good)

	assert.Equal(t, StateClosed, ob.State())
	assert.True(t, bad.closed.Load())
	assert.Equal(t, 1, b.Count())
}

func TestSlowObserverDoesNotDelayOthers(t *testing.T) {
	source, _ := counterSource()
	b := New(source, WithInterval(time.Hour), WithSendTimeout(200*time.Millisecond))

	slow := newFakeSender()
	slow.block = true
	so, err := b.Subscribe(slow)
	require.NoError(t, err)

	fast := newFakeSender()
	_, err = b.Subscribe(fast)
	require.NoError(t, err)
	waitReceived(t, fast)

	start := time.Now()
	b.Broadcast()
	waitReceived(t, fast)
	assert.Less(t, time.Since(start), 150*time.Millisecond)

	select {
	case <-so.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed-out observer was not removed")
	}
	assert.Equal(t, 1, b.Count())
}

func TestUnsubscribe(t *testing.T) {
	source, _ := counterSource()
	b := New(source)
	s := newFakeSender()

	o, err := b.Subscribe(s)
	require.NoError(t, err)
	b.Unsubscribe(o.ID())
	b.Unsubscribe(o.ID())

	assert.Equal(t, 0, b.Count())
	assert.Equal(t, StateClosed, o.State())
	assert.True(t, s.closed.Load())
}

func TestRun_ClosesObserversOnShutdown(t *testing.T) {
	source, _ := counterSource()
	b := New(source, WithInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	s := newFakeSender()
	o, err := b.Subscribe(s)
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-done)
	<-o.Done()
	assert.Equal(t, 0, b.Count())

	_, err = b.Subscribe(newFakeSender())
	assert.Error(t, err)
}

func TestObserverMailboxKeepsLatest(t *testing.T) {
	o := newObserver(newFakeSender())
	o.offer([]byte("1"))
	o.offer([]byte("2"))
	o.offer([]byte("3"))

	assert.Equal(t, []byte("3"), <-o.mailbox)
	select {
	case <-o.mailbox:
		t.Fatal("mailbox should hold one message")
	default:
	}
}

func TestSubscribe_JoinSnapshotNeverOverwritesNewerBroadcast(t *testing.T) {
	var (
		b     *Broadcaster
		calls atomic.Int64
	)
	// The first snapshot races with a commit: the commit's broadcast runs
	// while the join snapshot is still being built and carries the newer state.
	source := func() interface{} {
		if calls.Add(1) == 1 {
			b.Broadcast()
			return map[string]interface{}{"version": 1}
		}
		return map[string]interface{}{"version": 2}
	}
	b = New(source, WithInterval(time.Hour))
	s := newFakeSender()

	o, err := b.Subscribe(s)
	require.NoError(t, err)
	defer b.Unsubscribe(o.ID())

	waitReceived(t, s)
	assert.Equal(t, map[string]interface{}{"version": float64(2)}, s.last().Data)
	assert.Equal(t, int64(2), calls.Load())

	select {
	case <-s.received:
		t.Fatal("stale join snapshot was delivered after the newer broadcast")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, s.count())
}

func TestObserverOfferIfEmptyKeepsQueued(t *testing.T) {
	o := newObserver(newFakeSender())
	o.offer([]byte("new"))
	o.offerIfEmpty([]byte("old"))

	assert.Equal(t, []byte("new"), <-o.mailbox)

	o.offerIfEmpty([]byte("only"))
	assert.Equal(t, []byte("only"), <-o.mailbox)
}
