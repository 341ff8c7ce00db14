package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// dispatcher fans changes out to per-actor subscriber channels. Sends never
// block: a full subscriber drops the change, which is fine because any change
// only means "recompute".
type dispatcher struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan Change]struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{subs: make(map[uuid.UUID]map[chan Change]struct{})}
}

func (d *dispatcher) add(actorID uuid.UUID) chan Change {
	ch := make(chan Change, subscriberBuffer)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subs[actorID] == nil {
		d.subs[actorID] = make(map[chan Change]struct{})
	}
	d.subs[actorID][ch] = struct{}{}
	return ch
}

func (d *dispatcher) remove(actorID uuid.UUID, ch chan Change) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.subs[actorID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(d.subs, actorID)
	}
}

func (d *dispatcher) dispatch(c Change) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ch := range d.subs[c.ActorID] {
		select {
		case ch <- c:
		default:
		}
	}
}

// resync tells every subscriber to recompute.
func (d *dispatcher) resync() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for actorID, set := range d.subs {
		for ch := range set {
			select {
			case ch <- Change{Op: OpResync, ActorID: actorID}:
			default:
			}
		}
	}
}

func (d *dispatcher) actors() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}
