package bus

import (
	"encoding/json"
	"sync"

	"github.com/tabsync/server/internal/repository/session"
)

// Subscription delivers a session's events in order on C. The channel is
// closed when the subscriber is dropped for falling behind or the session
// is destroyed; consumers should treat a closed channel as a disconnect.
type Subscription struct {
	C <-chan Event

	id        string
	sessionId string
	live      chan Event
	out       chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// run forwards the replayed records and then the live feed, dropping any
// live event at or below the last replayed sequence. That makes the
// replay/live boundary exactly-once even though delivery upstream is
// at-least-once.
func (s *Subscription) run(records []session.EventRecord, fromSeq int64) {
	last := fromSeq - 1

	for _, record := range records {
		var event Event
		if err := json.Unmarshal(record.Data, &event); err != nil {
			continue
		}
		event.Sequence = record.Sequence

		select {
		case s.out <- event:
			last = record.Sequence
		case <-s.done:
			return
		}
	}

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.live:
			if !ok {
				close(s.out)
				return
			}
			if event.Sequence <= last {
				continue
			}

			select {
			case s.out <- event:
				last = event.Sequence
			case <-s.done:
				return
			}
		}
	}
}
