package pvserver

import (
	"sync"

	"github.com/slaclab/acclive/pkg/pvdb"
	"github.com/slaclab/acclive/pkg/transport"
	"github.com/slaclab/acclive/pkg/wire"
)

// subscription is one monitor on one record. Changes that arrive before
// the priming response is queued are held in pending.
type subscription struct {
	id     uint32
	name   string
	cancel func()

	mu      sync.Mutex
	primed  bool
	pending *pvdb.Change
}

// session is the per-connection state.
type session struct {
	conn  *transport.ServerConn
	queue *outQueue
	done  chan struct{}

	mu        sync.Mutex
	subs      map[uint32]*subscription
	nextSubID uint32
}

func newSession(conn *transport.ServerConn, queueSize int) *session {
	return &session{
		conn:      conn,
		queue:     newOutQueue(queueSize),
		done:      make(chan struct{}),
		subs:      make(map[uint32]*subscription),
		nextSubID: 1,
	}
}

// sendLoop writes queued frames until the session closes.
func (s *session) sendLoop(onError func(error)) {
	for {
		select {
		case <-s.done:
			return
		case <-s.queue.signal:
		}
		for _, item := range s.queue.drain() {
			if err := s.conn.Send(item.data); err != nil {
				onError(err)
				return
			}
		}
	}
}

func (s *session) addSubscription(name string) *subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscription{id: s.nextSubID, name: name}
	s.nextSubID++
	s.subs[sub.id] = sub
	return sub
}

func (s *session) removeSubscription(id uint32) *subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil
	}
	delete(s.subs, id)
	return sub
}

// close cancels every subscription and stops the sender. It returns the
// number of subscriptions cancelled.
func (s *session) close() int {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[uint32]*subscription)
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	s.queue.close()
	close(s.done)
	return len(subs)
}

func notification(subID uint32, c pvdb.Change) *wire.Notification {
	return &wire.Notification{
		SubscriptionID: subID,
		Name:           c.Name,
		Value:          c.Value,
		Timestamp:      c.Timestamp,
		Severity:       c.Severity,
	}
}
