package channel

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tradeberg/tradeberg/schedule"
)

type stubChannel struct {
	name string

	mu      sync.Mutex
	started bool
	stopped bool
	startAt int
	order   *int
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	*s.order++
	s.startAt = *s.order
	return nil
}

func (s *stubChannel) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func TestManagerStartsWebFirstAndCLILast(t *testing.T) {
	var order int
	web := &stubChannel{name: "web", order: &order}
	cli := &stubChannel{name: "cli", order: &order}
	other := &stubChannel{name: "feed", order: &order}

	m := NewManager()
	m.Register(cli)
	m.Register(other)
	m.Register(web)
	m.Register(nil)

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	if web.startAt != 1 {
		t.Errorf("web started at position %d, want 1", web.startAt)
	}
	if cli.startAt != 3 {
		t.Errorf("cli started at position %d, want 3", cli.startAt)
	}
	if other.startAt != 2 {
		t.Errorf("feed started at position %d, want 2", other.startAt)
	}

	m.StopAll()
	for _, ch := range []*stubChannel{web, cli, other} {
		if !ch.stopped {
			t.Errorf("channel %s not stopped", ch.name)
		}
	}
}

func TestScheduleChannelSeedsOnStart(t *testing.T) {
	scheduler := schedule.NewScheduler(filepath.Join(t.TempDir(), "snapshots.yaml"), nil)
	seeds := []schedule.Job{
		{ID: "aapl-open", Expr: "30 9 * * 1-5", Symbol: "NASDAQ:AAPL"},
	}

	ch := NewScheduleChannel(scheduler, seeds)
	if got := ch.Name(); got != "schedule" {
		t.Errorf("Name() = %q, want schedule", got)
	}
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if scheduler.Count() != 1 {
		t.Errorf("Count() = %d after seed, want 1", scheduler.Count())
	}

	if err := ch.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestManagerGet(t *testing.T) {
	var order int
	web := &stubChannel{name: "web", order: &order}

	m := NewManager()
	m.Register(web)

	if got, ok := m.Get("web"); !ok || got != Channel(web) {
		t.Errorf("Get(web) = %v, %v, want registered channel", got, ok)
	}
	if _, ok := m.Get("telegram"); ok {
		t.Error("Get(telegram) = ok for unregistered channel")
	}
}
