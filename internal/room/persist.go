package room

import (
	"context"
	"sync"
	"time"

	"gridlink/relay/internal/logging"
	"gridlink/relay/internal/state"
	"gridlink/relay/internal/store"
)

const persistTimeout = 10 * time.Second

// persister writes room state to the durable store off the coordinator
// goroutine. Queued snapshots coalesce to the most recent one, so a burst of
// mutations costs a single write. Close drains the last pending snapshot
// before returning, which is what lets the reaper guarantee the durable copy
// is current before releasing the room from memory.
type persister struct {
	store  store.Store
	roomID string
	log    *logging.Logger

	mu      sync.Mutex
	pending *state.RoomState

	kick   chan struct{}
	stop   chan struct{}
	doneCh chan struct{}
}

func newPersister(s store.Store, roomID string, log *logging.Logger) *persister {
	p := &persister{
		store:  s,
		roomID: roomID,
		log:    log,
		kick:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *persister) loop() {
	defer close(p.doneCh)
	for {
		select {
		case <-p.kick:
			p.flush()
		case <-p.stop:
			p.flush()
			return
		}
	}
}

// queue schedules the snapshot for persistence. The caller must hand over a
// clone it no longer mutates.
func (p *persister) queue(st *state.RoomState) {
	p.mu.Lock()
	p.pending = st
	p.mu.Unlock()
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *persister) flush() {
	p.mu.Lock()
	st := p.pending
	p.pending = nil
	p.mu.Unlock()
	if st == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := p.store.Save(ctx, p.roomID, st); err != nil {
		// The in-memory mutation and its broadcast already happened; a failed
		// write is a bounded data-loss window, not a rollback.
		p.log.Error("room state persist failed",
			logging.String("room_id", p.roomID), logging.Error(err))
	}
}

// close flushes any pending snapshot and stops the write loop.
func (p *persister) close() {
	close(p.stop)
	<-p.doneCh
}
