package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"snusstats/internal/eventbus"
	"snusstats/internal/transport"
	"snusstats/pkg/logx"
)

const deliverTimeout = 30 * time.Second

// Timers is the in-process dispatcher implementation.
//
// Every scheduled notification gets its own time.Timer. When one fires,
// the entry leaves the pending set, the payload goes out through the
// sink, and a delivered event is published. User actions reported by the
// sink are republished as actioned events. Both event types carry the
// notification id.
type Timers struct {
	log  logx.Logger
	bus  eventbus.Bus
	sink transport.Sink
	now  func() time.Time

	mu      sync.Mutex
	pending map[int]*entry
	closed  bool
}

type entry struct {
	n     Notification
	timer *time.Timer
}

func NewTimers(sink transport.Sink, bus eventbus.Bus, log logx.Logger) *Timers {
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Timers{
		log:     log,
		bus:     bus,
		sink:    sink,
		now:     time.Now,
		pending: map[int]*entry{},
	}
	sink.OnAction(t.handleAction)
	return t
}

// RequestPermission asks the sink whether it can reach the user. There is
// no separate consent dialog in a headless daemon; requesting and checking
// both resolve to sink reachability.
func (t *Timers) RequestPermission(ctx context.Context) (bool, error) {
	err := t.sink.CheckReachable(ctx)
	if err != nil {
		t.log.Warn("sink unreachable", logx.Err(err))
		return false, nil
	}
	return true, nil
}

func (t *Timers) CheckPermission(ctx context.Context) (bool, error) {
	return t.RequestPermission(ctx)
}

func (t *Timers) Schedule(ctx context.Context, batch []Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return context.Canceled
	}
	now := t.now()
	for _, n := range batch {
		n := n
		// Re-scheduling an already-pending id replaces the old entry.
		if old, ok := t.pending[n.ID]; ok {
			old.timer.Stop()
		}
		d := n.FireAt.Sub(now)
		if d < 0 {
			d = 0
		}
		id := n.ID
		t.pending[id] = &entry{
			n:     n,
			timer: time.AfterFunc(d, func() { t.fire(id) }),
		}
	}
	return nil
}

func (t *Timers) Pending(ctx context.Context) ([]Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	out := make([]Notification, 0, len(t.pending))
	for _, e := range t.pending {
		out = append(out, e.n)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}

func (t *Timers) Cancel(ctx context.Context, ids []int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	for _, id := range ids {
		if e, ok := t.pending[id]; ok {
			e.timer.Stop()
			delete(t.pending, id)
		}
	}
	t.mu.Unlock()
	return nil
}

// Close stops all armed timers. Already-fired deliveries finish on their own.
func (t *Timers) Close() {
	t.mu.Lock()
	t.closed = true
	for id, e := range t.pending {
		e.timer.Stop()
		delete(t.pending, id)
	}
	t.mu.Unlock()
}

func (t *Timers) fire(id int) {
	t.mu.Lock()
	e, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	closed := t.closed
	t.mu.Unlock()
	if !ok || closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	d := transport.Delivery{ID: e.n.ID, Title: e.n.Title, Body: e.n.Body, Icon: e.n.Icon}
	if err := t.sink.Deliver(ctx, d); err != nil {
		t.log.Error("deliver failed", logx.Int("id", id), logx.Err(err))
		t.publish(eventbus.TypeNotifyFailed, id, "delivered")
		return
	}
	t.log.Debug("reminder delivered", logx.Int("id", id), logx.Time("fire_at", e.n.FireAt))
	t.publish(eventbus.TypeNotifyDelivered, id, "delivered")
}

func (t *Timers) handleAction(id int) {
	t.log.Debug("reminder actioned", logx.Int("id", id))
	t.publish(eventbus.TypeNotifyActioned, id, "actioned")
}

func (t *Timers) publish(typ string, id int, reason string) {
	if t.bus == nil {
		return
	}
	now := t.now()
	t.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: FiredEvent{ID: id, At: now, Reason: reason}})
}
