package schedule

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestSchedulerAddLoadRemove(t *testing.T) {
	t.Parallel()

	storePath := filepath.Join(t.TempDir(), "snapshots.yaml")

	s := NewScheduler(storePath, nil)
	if err := s.Add(Job{ID: "aapl-open", Expr: "30 9 * * 1-5", Symbol: "NASDAQ:AAPL", Interval: "D"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	list := s.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 job, got %d", len(list))
	}
	if list[0].ID != "aapl-open" || list[0].Symbol != "NASDAQ:AAPL" {
		t.Fatalf("unexpected job: %+v", list[0])
	}

	loaded := NewScheduler(storePath, nil)
	if err := loaded.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	loadedList := loaded.List()
	if len(loadedList) != 1 {
		t.Fatalf("expected 1 loaded job, got %d", len(loadedList))
	}
	if loadedList[0].Expr != "30 9 * * 1-5" {
		t.Fatalf("unexpected expr: %s", loadedList[0].Expr)
	}

	if err := loaded.Remove("aapl-open"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if got := len(loaded.List()); got != 0 {
		t.Fatalf("expected 0 jobs after remove, got %d", got)
	}
}

func TestSchedulerRejectsInvalidJobs(t *testing.T) {
	t.Parallel()

	s := NewScheduler("", nil)

	cases := []struct {
		name string
		job  Job
	}{
		{"missing id", Job{Expr: "@daily", Symbol: "NASDAQ:AAPL"}},
		{"missing symbol", Job{ID: "x", Expr: "@daily"}},
		{"missing expr", Job{ID: "x", Symbol: "NASDAQ:AAPL"}},
		{"bad expr", Job{ID: "x", Expr: "every tuesday", Symbol: "NASDAQ:AAPL"}},
	}
	for _, tc := range cases {
		if err := s.Add(tc.job); err == nil {
			t.Errorf("%s: Add() accepted invalid job", tc.name)
		}
	}

	if err := s.Add(Job{ID: "dup", Expr: "@daily", Symbol: "NASDAQ:AAPL"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := s.Add(Job{ID: "dup", Expr: "@hourly", Symbol: "NASDAQ:TSLA"}); err == nil {
		t.Error("Add() accepted duplicate id")
	}
}

func TestSchedulerSeedPrefersStore(t *testing.T) {
	t.Parallel()

	storePath := filepath.Join(t.TempDir(), "snapshots.yaml")

	s := NewScheduler(storePath, nil)
	if err := s.Add(Job{ID: "aapl-open", Expr: "@daily", Symbol: "NASDAQ:AAPL", Conversation: "conv-pinned"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	seeds := []Job{
		{ID: "aapl-open", Expr: "@hourly", Symbol: "NASDAQ:MSFT"},
		{ID: "tsla-hour", Expr: "@hourly", Symbol: "NASDAQ:TSLA"},
	}
	if err := s.Seed(seeds); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 jobs after seed, got %d", len(list))
	}
	if list[0].Symbol != "NASDAQ:AAPL" || list[0].Conversation != "conv-pinned" {
		t.Errorf("seed overwrote stored job: %+v", list[0])
	}

	if err := s.Seed([]Job{{ID: "bad", Expr: "nonsense", Symbol: "NASDAQ:AAPL"}}); err == nil {
		t.Error("Seed() accepted invalid expr")
	}
}

func TestSchedulerFirePinsConversation(t *testing.T) {
	t.Parallel()

	storePath := filepath.Join(t.TempDir(), "snapshots.yaml")

	var ran []string
	runner := func(job *Job) (string, error) {
		ran = append(ran, job.ID)
		return "conv-42", nil
	}

	s := NewScheduler(storePath, runner)
	if err := s.Add(Job{ID: "aapl-open", Expr: "@daily", Symbol: "NASDAQ:AAPL"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	s.fire("aapl-open")
	if len(ran) != 1 {
		t.Fatalf("runner ran %d times, want 1", len(ran))
	}
	if got := s.List()[0].Conversation; got != "conv-42" {
		t.Errorf("conversation = %q, want conv-42", got)
	}

	loaded := NewScheduler(storePath, nil)
	if err := loaded.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := loaded.List()[0].Conversation; got != "conv-42" {
		t.Errorf("persisted conversation = %q, want conv-42", got)
	}
}

func TestSchedulerFireKeepsJobOnRunnerError(t *testing.T) {
	t.Parallel()

	runner := func(job *Job) (string, error) {
		return "", fmt.Errorf("capture busy")
	}

	s := NewScheduler("", runner)
	if err := s.Add(Job{ID: "aapl-open", Expr: "@daily", Symbol: "NASDAQ:AAPL"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	s.fire("aapl-open")
	list := s.List()
	if len(list) != 1 || list[0].Conversation != "" {
		t.Errorf("failed run mutated job: %+v", list[0])
	}
}

func TestSchedulerLoadSkipsInvalidEntries(t *testing.T) {
	t.Parallel()

	storePath := filepath.Join(t.TempDir(), "snapshots.yaml")
	raw := "- id: good\n  expr: \"@daily\"\n  symbol: NASDAQ:AAPL\n- id: broken\n  expr: \"@daily\"\n"
	if err := os.WriteFile(storePath, []byte(raw), 0o644); err != nil {
		t.Fatalf("write store: %v", err)
	}

	s := NewScheduler(storePath, nil)
	if err := s.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	list := s.List()
	if len(list) != 1 || list[0].ID != "good" {
		t.Fatalf("expected only the valid job, got %+v", list)
	}
}

func TestSchedulerDisabledJobNotScheduled(t *testing.T) {
	t.Parallel()

	s := NewScheduler("", nil)
	if err := s.Add(Job{ID: "paused", Expr: "@daily", Symbol: "NASDAQ:AAPL", Disabled: true}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	s.mu.Lock()
	_, scheduled := s.cancels["paused"]
	s.mu.Unlock()
	if scheduled {
		t.Error("disabled job was scheduled")
	}
	if s.Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Count())
	}
}
