package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logger "github.com/Gopher0727/TaskRoom/middleware/log"
)

type fakeSender struct {
	mu   sync.Mutex
	keys []string
	sent []Event
	err  error
}

func (f *fakeSender) Send(_ context.Context, key string, payload []byte) error {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.sent = append(f.sent, ev)
	return f.err
}

func TestBrokerPublisherKeepsOrderAndFlushes(t *testing.T) {
	sender := &fakeSender{}
	p := NewBrokerPublisher(sender, logger.NewNop(), 16)
	ctx, cancel := context.WithCancel(context.Background())

	for i, typ := range []EventType{EventThreadCreated, EventMessageCreated, EventMessageDeleted} {
		p.Publish(ctx, Event{Type: typ, RoomID: "r1", ChatID: "c1", OccurredAt: time.Unix(int64(i), 0)})
	}
	go p.Run(ctx)
	cancel()
	p.Wait()

	require.Len(t, sender.sent, 3)
	assert.Equal(t, EventThreadCreated, sender.sent[0].Type)
	assert.Equal(t, EventMessageDeleted, sender.sent[2].Type)
	assert.Equal(t, []string{"r1", "r1", "r1"}, sender.keys)
}

func TestBrokerPublisherDropsWhenFull(t *testing.T) {
	sender := &fakeSender{err: errors.New("broker down")}
	p := NewBrokerPublisher(sender, logger.NewNop(), 1)
	ctx, cancel := context.WithCancel(context.Background())

	p.Publish(ctx, Event{Type: EventTaskCreated, RoomID: "r1"})
	p.Publish(ctx, Event{Type: EventTaskDeleted, RoomID: "r1"})

	go p.Run(ctx)
	cancel()
	p.Wait()

	require.Len(t, sender.sent, 1, "second event exceeded the buffer")
	assert.Equal(t, EventTaskCreated, sender.sent[0].Type)
}

func TestEventBusFanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	bus := NewEventBus(a, NopPublisher{})
	bus.Publish(context.Background(), Event{Type: EventRoomCreated})
	bus.Subscribe(b)
	bus.Publish(context.Background(), Event{Type: EventTaskCreated})

	assert.Equal(t, []EventType{EventRoomCreated, EventTaskCreated}, a.types())
	assert.Equal(t, []EventType{EventTaskCreated}, b.types())
}
