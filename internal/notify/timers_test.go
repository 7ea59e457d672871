package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"snusstats/internal/eventbus"
	"snusstats/internal/transport"
	"snusstats/pkg/logx"
)

type stubSink struct {
	reachErr   error
	deliverErr error

	delivered chan transport.Delivery
	action    transport.ActionFunc
}

func newStubSink() *stubSink {
	return &stubSink{delivered: make(chan transport.Delivery, 16)}
}

func (s *stubSink) Start(context.Context) error { return nil }
func (s *stubSink) Stop(context.Context) error  { return nil }

func (s *stubSink) Deliver(_ context.Context, d transport.Delivery) error {
	if s.deliverErr != nil {
		return s.deliverErr
	}
	s.delivered <- d
	return nil
}

func (s *stubSink) CheckReachable(context.Context) error { return s.reachErr }
func (s *stubSink) OnAction(fn transport.ActionFunc)     { s.action = fn }

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func TestTimersFireAndDeliver(t *testing.T) {
	t.Parallel()
	sink := newStubSink()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	d := NewTimers(sink, bus, logx.Nop())
	defer d.Close()

	err := d.Schedule(context.Background(), []Notification{{
		ID:     101,
		Title:  "Snus Reminder",
		Body:   "Time for your snus!",
		FireAt: time.Now().Add(10 * time.Millisecond),
	}})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	select {
	case got := <-sink.delivered:
		if got.ID != 101 || got.Title != "Snus Reminder" {
			t.Fatalf("delivered = %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("notification never reached the sink")
	}

	e := waitEvent(t, events, eventbus.TypeNotifyDelivered)
	fe, ok := e.Data.(FiredEvent)
	if !ok || fe.ID != 101 {
		t.Fatalf("delivered event data = %#v", e.Data)
	}

	if pending, _ := d.Pending(context.Background()); len(pending) != 0 {
		t.Fatalf("pending after fire = %d, want 0", len(pending))
	}
}

func TestTimersPastFireAtFiresImmediately(t *testing.T) {
	t.Parallel()
	sink := newStubSink()
	d := NewTimers(sink, eventbus.New(), logx.Nop())
	defer d.Close()

	err := d.Schedule(context.Background(), []Notification{{ID: 1, FireAt: time.Now().Add(-time.Hour)}})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	select {
	case <-sink.delivered:
	case <-time.After(3 * time.Second):
		t.Fatal("past-due notification never fired")
	}
}

func TestTimersCancelAndPending(t *testing.T) {
	t.Parallel()
	sink := newStubSink()
	d := NewTimers(sink, eventbus.New(), logx.Nop())
	defer d.Close()

	base := time.Now().Add(time.Hour)
	batch := []Notification{
		{ID: 101, FireAt: base},
		{ID: 102, FireAt: base.Add(time.Hour)},
		{ID: 103, FireAt: base.Add(2 * time.Hour)},
	}
	if err := d.Schedule(context.Background(), batch); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	pending, err := d.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 3 || pending[0].ID != 101 || pending[2].ID != 103 {
		t.Fatalf("pending = %+v, want ids 101..103 by fire time", pending)
	}

	// Cancel covers a missing id without error.
	if err := d.Cancel(context.Background(), []int{102, 999}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	pending, _ = d.Pending(context.Background())
	if len(pending) != 2 {
		t.Fatalf("pending after cancel = %d, want 2", len(pending))
	}
	for _, n := range pending {
		if n.ID == 102 {
			t.Fatal("cancelled id still pending")
		}
	}
}

func TestTimersRescheduleReplaces(t *testing.T) {
	t.Parallel()
	sink := newStubSink()
	d := NewTimers(sink, eventbus.New(), logx.Nop())
	defer d.Close()

	if err := d.Schedule(context.Background(), []Notification{{ID: 1, FireAt: time.Now().Add(time.Hour)}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	later := time.Now().Add(2 * time.Hour)
	if err := d.Schedule(context.Background(), []Notification{{ID: 1, FireAt: later}}); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	pending, _ := d.Pending(context.Background())
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1 after same-id reschedule", len(pending))
	}
	if !pending[0].FireAt.Equal(later) {
		t.Fatalf("pending fires at %v, want %v", pending[0].FireAt, later)
	}
}

func TestTimersDeliverFailurePublishesFailed(t *testing.T) {
	t.Parallel()
	sink := newStubSink()
	sink.deliverErr = errors.New("chat unreachable")
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	d := NewTimers(sink, bus, logx.Nop())
	defer d.Close()

	if err := d.Schedule(context.Background(), []Notification{{ID: 7, FireAt: time.Now()}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	e := waitEvent(t, events, eventbus.TypeNotifyFailed)
	if fe := e.Data.(FiredEvent); fe.ID != 7 {
		t.Fatalf("failed event id = %d, want 7", fe.ID)
	}
}

func TestTimersActionRepublished(t *testing.T) {
	t.Parallel()
	sink := newStubSink()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	d := NewTimers(sink, bus, logx.Nop())
	defer d.Close()

	if sink.action == nil {
		t.Fatal("dispatcher never registered an action handler")
	}
	sink.action(42)

	e := waitEvent(t, events, eventbus.TypeNotifyActioned)
	if fe := e.Data.(FiredEvent); fe.ID != 42 || fe.Reason != "actioned" {
		t.Fatalf("actioned event = %+v", fe)
	}
}

func TestTimersPermissionTracksReachability(t *testing.T) {
	t.Parallel()
	sink := newStubSink()
	d := NewTimers(sink, eventbus.New(), logx.Nop())
	defer d.Close()

	ok, err := d.RequestPermission(context.Background())
	if err != nil || !ok {
		t.Fatalf("RequestPermission = %v, %v; want granted", ok, err)
	}

	sink.reachErr = errors.New("bot token rejected")
	ok, err = d.CheckPermission(context.Background())
	if err != nil || ok {
		t.Fatalf("CheckPermission with unreachable sink = %v, %v; want denied, nil", ok, err)
	}
}

func TestTimersCloseStopsScheduling(t *testing.T) {
	t.Parallel()
	sink := newStubSink()
	d := NewTimers(sink, eventbus.New(), logx.Nop())
	d.Close()

	if err := d.Schedule(context.Background(), []Notification{{ID: 1, FireAt: time.Now()}}); err == nil {
		t.Fatal("Schedule after Close succeeded")
	}
}
