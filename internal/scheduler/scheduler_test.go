package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"

	"github.com/shaiso/piper/internal/agent"
	"github.com/shaiso/piper/internal/domain"
)

// fakeRunner запоминает запросы на выполнение.
type fakeRunner struct {
	mu       sync.Mutex
	requests []agent.RunRequest
	err      error
}

func (f *fakeRunner) Run(_ context.Context, req agent.RunRequest) (*agent.RunResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &agent.RunResponse{RunID: uuid.NewString(), Status: "SUCCEEDED"}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func writePipeline(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name+Extension)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestCalculateNextDue(t *testing.T) {
	from := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		sched     domain.Schedule
		expected  time.Time
		expectErr bool
	}{
		{
			name:     "interval",
			sched:    domain.Schedule{IntervalSec: 300, Timezone: "UTC"},
			expected: from.Add(5 * time.Minute),
		},
		{
			name:     "cron utc",
			sched:    domain.Schedule{CronExpr: "0 9 * * *", Timezone: "UTC"},
			expected: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		},
		{
			// 09:00 в Москве (UTC+3) уже прошло, следующий запуск завтра в 06:00 UTC
			name:     "cron in timezone",
			sched:    domain.Schedule{CronExpr: "0 9 * * *", Timezone: "Europe/Moscow"},
			expected: time.Date(2025, 3, 11, 6, 0, 0, 0, time.UTC),
		},
		{
			name:     "descriptor",
			sched:    domain.Schedule{CronExpr: "@hourly", Timezone: "UTC"},
			expected: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		},
		{
			name:      "invalid cron",
			sched:     domain.Schedule{CronExpr: "not a cron", Timezone: "UTC"},
			expectErr: true,
		},
		{
			name:      "invalid timezone",
			sched:     domain.Schedule{IntervalSec: 60, Timezone: "Mars/Olympus"},
			expectErr: true,
		},
		{
			name:      "empty schedule",
			sched:     domain.Schedule{Timezone: "UTC"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateNextDue(&tt.sched, from)
			if tt.expectErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestValidateCronExpr(t *testing.T) {
	if err := ValidateCronExpr("*/5 * * * *"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateCronExpr("* * *"); err == nil {
		t.Error("expected error for three fields")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writePipeline(t, dir, "every", `
pipeline every {
    meta { interval_sec: 60 }
    a = cmd(command = "echo every")
}`)
	writePipeline(t, dir, "nightly", `
pipeline nightly {
    meta { schedule: "0 3 * * *" }
    a = cmd(command = "echo nightly")
}`)
	writePipeline(t, dir, "manual", `pipeline manual { a = cmd(command = "echo manual") }`)
	writePipeline(t, dir, "broken", `pipeline {`)
	writePipeline(t, dir, "badcron", `
pipeline badcron {
    meta { schedule: "whenever" }
    a = cmd(command = "echo")
}`)

	s := New(Config{Dir: dir, Runner: &fakeRunner{}})
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := s.Load(now); err != nil {
		t.Fatalf("load: %v", err)
	}

	schedules := s.Schedules()
	if len(schedules) != 2 {
		t.Fatalf("expected 2 schedules, got %+v", schedules)
	}
	if schedules[0].PipelineName != "every" || schedules[1].PipelineName != "nightly" {
		t.Errorf("unexpected schedules: %s, %s", schedules[0].PipelineName, schedules[1].PipelineName)
	}
	if !schedules[0].NextDueAt.Equal(now.Add(time.Minute)) {
		t.Errorf("unexpected next due %v", schedules[0].NextDueAt)
	}
}

func TestLoad_KeepsNextDue(t *testing.T) {
	dir := t.TempDir()
	path := writePipeline(t, dir, "every", `
pipeline every {
    meta { interval_sec: 60 }
    a = cmd(command = "echo one")
}`)

	s := New(Config{Dir: dir, Runner: &fakeRunner{}})
	first := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := s.Load(first); err != nil {
		t.Fatalf("load: %v", err)
	}

	// Изменение тела без изменения расписания не сдвигает NextDueAt
	if err := os.WriteFile(path, []byte(`
pipeline every {
    meta { interval_sec: 60 }
    a = cmd(command = "echo two")
}`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := s.Load(first.Add(30 * time.Second)); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := s.Schedules()[0].NextDueAt; !got.Equal(first.Add(time.Minute)) {
		t.Errorf("next due should be kept, got %v", got)
	}

	// Новый интервал пересчитывается
	if err := os.WriteFile(path, []byte(`
pipeline every {
    meta { interval_sec: 10 }
    a = cmd(command = "echo two")
}`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	reload := first.Add(30 * time.Second)
	if err := s.Load(reload); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := s.Schedules()[0].NextDueAt; !got.Equal(reload.Add(10 * time.Second)) {
		t.Errorf("next due should be recalculated, got %v", got)
	}
}

func TestTick(t *testing.T) {
	dir := t.TempDir()
	writePipeline(t, dir, "every", `
pipeline every {
    meta { interval_sec: 60 }
    a = cmd(command = "echo every")
}`)

	runner := &fakeRunner{}
	s := New(Config{Dir: dir, Runner: runner})
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := s.Load(now); err != nil {
		t.Fatalf("load: %v", err)
	}

	if n := s.Tick(context.Background(), now.Add(30*time.Second)); n != 0 {
		t.Errorf("nothing should be due yet, started %d", n)
	}

	due := now.Add(61 * time.Second)
	if n := s.Tick(context.Background(), due); n != 1 {
		t.Fatalf("expected 1 run, got %d", n)
	}
	if !strings.Contains(runner.requests[0].Source, "echo every") {
		t.Errorf("runner should get the file source, got %q", runner.requests[0].Source)
	}

	sched := s.Schedules()[0]
	if sched.LastRunID == nil || sched.LastRunAt == nil {
		t.Error("run should be recorded")
	}
	if !sched.NextDueAt.Equal(due.Add(time.Minute)) {
		t.Errorf("next due should move forward, got %v", sched.NextDueAt)
	}

	// Тот же момент не запускает pipeline повторно
	if n := s.Tick(context.Background(), due); n != 0 {
		t.Errorf("schedule should not run twice, started %d", n)
	}
}

func TestTick_RunnerError(t *testing.T) {
	dir := t.TempDir()
	writePipeline(t, dir, "every", `
pipeline every {
    meta { interval_sec: 60 }
    a = cmd(command = "echo")
}`)

	runner := &fakeRunner{err: errors.New("invalid pipeline")}
	s := New(Config{Dir: dir, Runner: runner})
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := s.Load(now); err != nil {
		t.Fatalf("load: %v", err)
	}

	due := now.Add(time.Minute)
	if n := s.Tick(context.Background(), due); n != 0 {
		t.Errorf("failed start should not count, got %d", n)
	}

	// NextDueAt сдвинут, чтобы ошибка не повторялась каждый тик
	if got := s.Schedules()[0].NextDueAt; !got.Equal(due.Add(time.Minute)) {
		t.Errorf("next due should move forward, got %v", got)
	}
}

// fakeLocker — блокировка, которой управляет тест.
type fakeLocker struct {
	mu       sync.Mutex
	leader   bool
	released bool
}

func (f *fakeLocker) TryAcquire(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leader, nil
}

func (f *fakeLocker) Release(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
	return nil
}

func TestStart_Leader(t *testing.T) {
	dir := t.TempDir()
	writePipeline(t, dir, "fast", `
pipeline fast {
    meta { interval_sec: 1 }
    a = cmd(command = "echo")
}`)

	tests := []struct {
		name     string
		leader   bool
		expected bool
	}{
		{name: "leader runs", leader: true, expected: true},
		{name: "follower skips", leader: false, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			locker := &fakeLocker{leader: tt.leader}
			s := New(Config{Dir: dir, Runner: runner, Locker: locker, Interval: 50 * time.Millisecond})

			ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
			defer cancel()
			if err := s.Start(ctx); err != nil {
				t.Fatalf("start: %v", err)
			}

			if got := runner.count() > 0; got != tt.expected {
				t.Errorf("expected ran=%v, got %d runs", tt.expected, runner.count())
			}
			if !locker.released {
				t.Error("lock should be released on stop")
			}
		})
	}
}
