package realtime

import (
	"log"
	"sync"
)

type itemKind int

const (
	itemEvent itemKind = iota
	itemJoin
	itemLeave
)

type item struct {
	kind    itemKind
	payload []byte
	exclude string
	client  *Client
}

// topic is the broadcast group of one showtime.  Events and membership
// changes go through a single ordered queue drained by one dispatcher
// goroutine, so a joining client receives its snapshot before any event
// enqueued after the join.  members is owned by the dispatcher.
type topic struct {
	id  uint64
	hub *Hub

	queueMu sync.Mutex
	queue   []item
	wake    chan struct{}

	members map[*Client]struct{}
}

func newTopic(id uint64, h *Hub) *topic {
	return &topic{
		id:      id,
		hub:     h,
		wake:    make(chan struct{}, 1),
		members: make(map[*Client]struct{}),
	}
}

// enqueue never blocks.  Callers hold hub.mu (read or write).
func (t *topic) enqueue(it item) {
	t.queueMu.Lock()
	t.queue = append(t.queue, it)
	t.queueMu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *topic) drain() []item {
	t.queueMu.Lock()
	defer t.queueMu.Unlock()
	items := t.queue
	t.queue = nil
	return items
}

func (t *topic) run() {
	for {
		select {
		case <-t.wake:
		case <-t.hub.quit:
			return
		}
		for {
			items := t.drain()
			if len(items) == 0 {
				break
			}
			for _, it := range items {
				t.process(it)
			}
		}
		if len(t.members) == 0 && t.hub.retire(t) {
			return
		}
	}
}

func (t *topic) process(it item) {
	switch it.kind {
	case itemJoin:
		t.members[it.client] = struct{}{}
		snap := t.hub.registry.Snapshot(t.id)
		if !it.client.trySend(encodeSnapshot(snap, it.client.id)) {
			t.kick(it.client)
		}
	case itemLeave:
		delete(t.members, it.client)
	case itemEvent:
		for c := range t.members {
			if c.id == it.exclude {
				continue
			}
			if !c.trySend(it.payload) {
				t.kick(c)
			}
		}
	}
}

// kick drops a client whose send buffer is full.  The client has to
// re-join and receives a fresh snapshot.
func (t *topic) kick(c *Client) {
	delete(t.members, c)
	if c.close() {
		log.Printf("realtime: kicked slow client %s from showtime %d", c.id, t.id)
		t.hub.slowKicked()
	}
}
