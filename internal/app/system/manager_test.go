package system

import (
	"context"
	"errors"
	"testing"
)

type recordingService struct {
	name    string
	events  *[]string
	failure error
}

func (r *recordingService) Name() string { return r.name }

func (r *recordingService) Start(ctx context.Context) error {
	if r.failure != nil {
		return r.failure
	}
	*r.events = append(*r.events, "start:"+r.name)
	return nil
}

func (r *recordingService) Stop(ctx context.Context) error {
	*r.events = append(*r.events, "stop:"+r.name)
	return nil
}

func TestManagerStartStopOrder(t *testing.T) {
	var events []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&recordingService{name: name, events: &events}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestManagerRollsBackFailedStart(t *testing.T) {
	var events []string
	m := NewManager()
	boom := errors.New("boom")
	_ = m.Register(&recordingService{name: "ok", events: &events})
	_ = m.Register(&recordingService{name: "bad", events: &events, failure: boom})

	if err := m.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("start err = %v, want %v", err, boom)
	}
	if len(events) != 2 || events[1] != "stop:ok" {
		t.Fatalf("events = %v, want started service rolled back", events)
	}
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	m := NewManager()
	if err := m.Register(NoopService{ServiceName: "dup"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "dup"}); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestManagerClosedAfterStart(t *testing.T) {
	m := NewManager()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "late"}); err == nil {
		t.Fatal("expected registration error after start")
	}
}
