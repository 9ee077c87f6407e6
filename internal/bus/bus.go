package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tabsync/server/internal/repository/session"
)

const DefaultQueueSize = 64

type iEventRepo interface {
	AppendEvent(ctx context.Context, sessionId string, data []byte) (int64, error)
	GetEventsFrom(ctx context.Context, sessionId string, from int64) ([]session.EventRecord, error)
	GetLastSequence(ctx context.Context, sessionId string) (int64, error)
}

type Bus struct {
	repo      iEventRepo
	logger    *slog.Logger
	queueSize int

	mu   sync.RWMutex
	subs map[string]map[string]*Subscription
}

func New(repo iEventRepo, logger *slog.Logger, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Bus{
		repo:      repo,
		logger:    logger,
		queueSize: queueSize,
		subs:      make(map[string]map[string]*Subscription),
	}
}

// Publish persists the event under the next sequence number and fans it
// out to every subscriber of the session. A subscriber whose queue is full
// is dropped instead of blocking delivery to the others; its channel is
// closed so its consumer can run the disconnect path.
func (b *Bus) Publish(ctx context.Context, event Event) (int64, error) {
	if event.Id == "" {
		event.Id = uuid.NewString()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	seq, err := b.repo.AppendEvent(ctx, event.SessionId, data)
	if err != nil {
		return 0, fmt.Errorf("failed to append event: %w", err)
	}
	event.Sequence = seq

	var dropped []*Subscription
	b.mu.RLock()
	for _, sub := range b.subs[event.SessionId] {
		select {
		case sub.live <- event:
		default:
			dropped = append(dropped, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range dropped {
		b.logger.WarnContext(ctx, "dropping slow subscriber",
			"session_id", event.SessionId,
			"subscription_id", sub.id,
		)
		b.drop(sub)
	}

	return seq, nil
}

// Subscribe returns a subscription whose channel first replays the
// persisted events with sequence >= fromSeq and then delivers live events,
// gap-free and strictly increasing. Pass fromSeq = 1 for full history, or
// a cursor obtained from a session state snapshot for catch-up.
func (b *Bus) Subscribe(ctx context.Context, sessionId string, fromSeq int64) (*Subscription, error) {
	sub := &Subscription{
		id:        uuid.NewString(),
		sessionId: sessionId,
		live:      make(chan Event, b.queueSize),
		out:       make(chan Event, b.queueSize),
		done:      make(chan struct{}),
	}
	sub.C = sub.out

	b.mu.Lock()
	if b.subs[sessionId] == nil {
		b.subs[sessionId] = make(map[string]*Subscription)
	}
	b.subs[sessionId][sub.id] = sub
	b.mu.Unlock()

	// registered before the replay read, so no event published in between
	// can be missed; duplicates across the boundary are filtered by run.
	records, err := b.repo.GetEventsFrom(ctx, sessionId, fromSeq)
	if err != nil {
		b.unsubscribe(sub)
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}

	go sub.run(records, fromSeq)

	return sub, nil
}

// Unsubscribe detaches the subscription. Safe to call twice.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.unsubscribe(sub)
}

// CloseSession drops every subscriber of a destroyed session.
func (b *Bus) CloseSession(sessionId string) {
	b.mu.Lock()
	subs := b.subs[sessionId]
	delete(b.subs, sessionId)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.live)
	}
}

func (b *Bus) drop(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sessionSubs, ok := b.subs[sub.sessionId]; ok {
		if _, ok := sessionSubs[sub.id]; ok {
			delete(sessionSubs, sub.id)
			if len(sessionSubs) == 0 {
				delete(b.subs, sub.sessionId)
			}
			close(sub.live)
		}
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if sessionSubs, ok := b.subs[sub.sessionId]; ok {
		delete(sessionSubs, sub.id)
		if len(sessionSubs) == 0 {
			delete(b.subs, sub.sessionId)
		}
	}
	b.mu.Unlock()

	sub.close()
}
