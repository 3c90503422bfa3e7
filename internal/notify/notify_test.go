package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0xSifu/ioh-stories/internal/model"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, event model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) all() []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Event(nil), p.events...)
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	pub := &capturePublisher{}
	d := NewDispatcher(pub, zap.NewNop())

	userID := uuid.Must(uuid.NewV4())
	d.Emit(model.Event{Kind: model.EventStoryCreated, UserID: userID, Message: "first"})
	d.Emit(model.Event{Kind: model.EventStoryUpdated, UserID: userID, Message: "second"})
	d.Close()

	got := pub.all()
	require.Len(t, got, 2)
	require.Equal(t, "first", got[0].Message)
	require.Equal(t, "second", got[1].Message)
	require.False(t, got[0].Timestamp.IsZero())
}

func TestDispatcher_PublishFailureIsSwallowed(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	d := NewDispatcher(pub, zap.NewNop())

	d.Emit(model.Event{Kind: model.EventStoryCreated, Message: "doomed"})
	d.Close() // must not panic or surface the error
	require.Empty(t, pub.all())
}

func TestDispatcher_FullMailboxDrops(t *testing.T) {
	pub := &blockingPublisher{
		block:   make(chan struct{}),
		started: make(chan struct{}, 3),
	}
	d := NewDispatcher(pub, zap.NewNop(), WithQueueSize(1))

	// First event occupies the worker, second fills the mailbox,
	// third has nowhere to go.
	d.Emit(model.Event{Kind: model.EventStoryCreated})
	select {
	case <-pub.started:
	case <-time.After(time.Second):
		t.Fatal("worker never picked up the first event")
	}
	d.Emit(model.Event{Kind: model.EventStoryCreated})
	d.Emit(model.Event{Kind: model.EventStoryCreated})

	require.Equal(t, uint64(1), d.Dropped())
	close(pub.block)
	d.Close()
}

type blockingPublisher struct {
	block   chan struct{}
	started chan struct{}
}

func (p *blockingPublisher) Publish(context.Context, model.Event) error {
	p.started <- struct{}{}
	<-p.block
	return nil
}

func TestDispatcher_EmitAfterCloseDrops(t *testing.T) {
	pub := &capturePublisher{}
	d := NewDispatcher(pub, zap.NewNop())
	d.Close()

	d.Emit(model.Event{Kind: model.EventStoryDeleted})
	require.Equal(t, uint64(1), d.Dropped())
	require.Empty(t, pub.all())
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(&capturePublisher{}, zap.NewNop())
	d.Close()
	d.Close()
}
