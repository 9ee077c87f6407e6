package session

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
)

// actor serializes every mutation of one session. All registry, clock,
// comment and drift state transitions run on its goroutine, so host
// reassignment, sequence publishing and role changes need no locks.
type actor struct {
	sessionId string
	inputCh   chan func()
	closeCh   chan struct{}

	// owned by the actor goroutine
	destroyTimer clockwork.Timer
	drift        map[string]*driftWindow
}

type actorSet struct {
	svc    *service
	mu     sync.Mutex
	actors map[string]*actor
}

func newActorSet(svc *service) *actorSet {
	return &actorSet{
		svc:    svc,
		actors: make(map[string]*actor),
	}
}

func (as *actorSet) get(sessionId string) *actor {
	as.mu.Lock()
	defer as.mu.Unlock()

	a, ok := as.actors[sessionId]
	if !ok {
		a = &actor{
			sessionId: sessionId,
			inputCh:   make(chan func()),
			closeCh:   make(chan struct{}),
			drift:     make(map[string]*driftWindow),
		}
		as.actors[sessionId] = a
		go as.svc.runActor(a)
	}

	return a
}

func (as *actorSet) remove(a *actor) {
	as.mu.Lock()
	defer as.mu.Unlock()

	if current, ok := as.actors[a.sessionId]; ok && current == a {
		delete(as.actors, a.sessionId)
	}
}

// do runs fn on the session's actor and waits for its result. Operations
// crossing the actor boundary are fast state transitions, so waits are
// bounded; the context still cancels the wait on caller timeout.
func (s *service) do(ctx context.Context, sessionId string, fn func(a *actor) error) error {
	a := s.actors.get(sessionId)

	errCh := make(chan error, 1)
	select {
	case a.inputCh <- func() { errCh <- fn(a) }:
	case <-a.closeCh:
		return ErrSessionNotFound
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *service) runActor(a *actor) {
	ticker := s.clock.NewTicker(s.cfg.StaleReportTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-a.closeCh:
			return
		case fn := <-a.inputCh:
			fn()
		case <-ticker.Chan():
			s.sweepStale(a)
		}
	}
}

// stopActor is called from within an actor fn after the session has been
// destroyed. The run loop exits once the current fn returns.
func (s *service) stopActor(a *actor) {
	s.actors.remove(a)
	close(a.closeCh)
}
