package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/TaskRoom/internal/model"
	logger "github.com/Gopher0727/TaskRoom/middleware/log"
)

type EventType string

const (
	EventRoomCreated      EventType = "room.created"
	EventParticipantAdded EventType = "room.participant_added"
	EventRoomDeleted      EventType = "room.deleted"
	EventTaskCreated      EventType = "task.created"
	EventTaskUpdated      EventType = "task.updated"
	EventTaskDeleted      EventType = "task.deleted"
	EventThreadCreated    EventType = "thread.created"
	EventThreadUpdated    EventType = "thread.updated"
	EventThreadDeleted    EventType = "thread.deleted"
	EventMessageCreated   EventType = "message.created"
	EventMessageUpdated   EventType = "message.updated"
	EventMessageDeleted   EventType = "message.deleted"
)

// Event describes one committed graph mutation.
type Event struct {
	Type       EventType      `json:"type"`
	RoomID     string         `json:"room_id"`
	TaskID     string         `json:"task_id,omitempty"`
	ChatID     string         `json:"chat_id,omitempty"`
	ThreadID   string         `json:"thread_id,omitempty"`
	Actor      string         `json:"actor"`
	Room       *model.Room    `json:"room,omitempty"`
	Task       *model.Task    `json:"task,omitempty"`
	Thread     *model.Thread  `json:"thread,omitempty"`
	Message    *model.Message `json:"message,omitempty"`
	Report     *CascadeReport `json:"report,omitempty"`
	// Removed 本次变更中失去访问权的用户
	Removed    []string       `json:"removed,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// EventPublisher receives events after their transaction committed.
// Publish must not block on slow consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event)
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

// EventBus fans an event out to its subscribers in subscription order.
// Subscribers may be added after the bus has been handed to the services.
type EventBus struct {
	mu   sync.RWMutex
	subs []EventPublisher
}

func NewEventBus(subs ...EventPublisher) *EventBus {
	return &EventBus{subs: subs}
}

func (b *EventBus) Subscribe(p EventPublisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, p)
}

func (b *EventBus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.subs {
		p.Publish(ctx, ev)
	}
}

// Sender delivers an encoded event to a broker.
type Sender interface {
	Send(ctx context.Context, key string, payload []byte) error
}

// BrokerPublisher forwards events to a Sender from a single goroutine so
// per-room order is kept. When the buffer is full events are dropped.
type BrokerPublisher struct {
	sender  Sender
	logger  *logger.Logger
	queue   chan Event
	timeout time.Duration
	done    chan struct{}
}

func NewBrokerPublisher(sender Sender, l *logger.Logger, buffer int) *BrokerPublisher {
	return &BrokerPublisher{
		sender:  sender,
		logger:  l.Named("events"),
		queue:   make(chan Event, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
}

func (p *BrokerPublisher) Publish(ctx context.Context, ev Event) {
	select {
	case p.queue <- ev:
	default:
		p.logger.For(ctx).Warn("event buffer full, dropping event", zap.String("type", string(ev.Type)))
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (p *BrokerPublisher) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case ev := <-p.queue:
			p.send(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-p.queue:
					p.send(ev)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (p *BrokerPublisher) Wait() {
	<-p.done
}

func (p *BrokerPublisher) send(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to encode event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.sender.Send(ctx, ev.RoomID, payload); err != nil {
		p.logger.Warn("failed to publish event", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
