package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/piper/internal/agent"
	"github.com/shaiso/piper/internal/domain"
	"github.com/shaiso/piper/internal/dsl"
	"github.com/shaiso/piper/internal/orchestrator"
	"github.com/shaiso/piper/internal/watch"
)

const (
	defaultInterval = time.Second

	// Extension — расширение файлов pipeline.
	Extension = ".piper"
)

// Runner выполняет pipeline. Реализуется agent.Service.
type Runner interface {
	Run(ctx context.Context, req agent.RunRequest) (*agent.RunResponse, error)
}

// Locker — блокировка лидера. Реализуется repo.AdvisoryLock.
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Scheduler запускает pipeline по расписанию из их блока meta.
type Scheduler struct {
	dir      string
	runner   Runner
	locker   Locker
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	schedules map[string]*domain.Schedule // путь → расписание
}

// Config — конфигурация Scheduler.
type Config struct {
	// Dir — каталог с файлами *.piper.
	Dir string

	Runner Runner

	// Locker (опционально). Без него каждый экземпляр считает себя лидером.
	Locker Locker

	// Interval — период тика (default: 1s).
	Interval time.Duration

	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		dir:       cfg.Dir,
		runner:    cfg.Runner,
		locker:    cfg.Locker,
		interval:  interval,
		logger:    logger,
		schedules: make(map[string]*domain.Schedule),
	}
}

// Load перечитывает каталог и обновляет набор расписаний.
//
// Для неизменённого расписания сохраняется NextDueAt, новое получает
// первое время запуска после now. Файлы, которые не разбираются или
// содержат некорректное расписание, пропускаются с предупреждением.
func (s *Scheduler) Load(now time.Time) error {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*"+Extension))
	if err != nil {
		return fmt.Errorf("list pipelines: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := make(map[string]*domain.Schedule, len(paths))
	for _, path := range paths {
		p, err := dsl.ParseFile(path)
		if err != nil {
			s.logger.Warn("skipping pipeline", "path", path, "error", err)
			continue
		}

		sched := domain.ScheduleFromPipeline(p, path)
		if sched == nil {
			continue
		}

		if prev, ok := s.schedules[path]; ok && sameSchedule(prev, sched) {
			loaded[path] = prev
			continue
		}

		next, err := CalculateNextDue(sched, now)
		if err != nil {
			s.logger.Warn("invalid schedule", "path", path, "error", err)
			continue
		}
		sched.NextDueAt = &next
		loaded[path] = sched

		s.logger.Info("schedule loaded",
			"pipeline", sched.PipelineName,
			"cron", sched.CronExpr,
			"interval_sec", sched.IntervalSec,
			"next_due_at", next,
		)
	}

	s.schedules = loaded
	return nil
}

// Schedules возвращает копию текущих расписаний, отсортированную по имени.
func (s *Scheduler) Schedules() []domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, *sched)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PipelineName != out[j].PipelineName {
			return out[i].PipelineName < out[j].PipelineName
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// Tick запускает расписания, время которых подошло к now.
//
// NextDueAt сдвигается до запуска, поэтому долгий run не запускается
// повторно следующим тиком. Ошибка одного pipeline не мешает остальным.
// Возвращает число запусков.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	due := s.takeDue(now)
	if len(due) == 0 {
		return 0
	}

	s.logger.Debug("found due schedules", "count", len(due))

	var started int
	for _, sched := range due {
		if ctx.Err() != nil {
			break
		}
		if s.runSchedule(ctx, sched) {
			started++
		}
	}

	s.logger.Info("scheduler tick completed", "due", len(due), "started", started)
	return started
}

// takeDue отбирает расписания к запуску и сдвигает их NextDueAt.
func (s *Scheduler) takeDue(now time.Time) []*domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.Schedule
	for _, sched := range s.schedules {
		if !sched.IsDue(now) {
			continue
		}

		next, err := CalculateNextDue(sched, now)
		if err != nil {
			s.logger.Error("failed to calculate next due, disabling schedule",
				"pipeline", sched.PipelineName,
				"error", err,
			)
			sched.Enabled = false
			continue
		}
		sched.NextDueAt = &next
		due = append(due, sched)
	}

	sort.Slice(due, func(i, j int) bool { return due[i].Path < due[j].Path })
	return due
}

// runSchedule выполняет один pipeline. Файл перечитывается перед запуском.
func (s *Scheduler) runSchedule(ctx context.Context, sched *domain.Schedule) bool {
	logger := s.logger.With("pipeline", sched.PipelineName, "path", sched.Path)

	source, err := os.ReadFile(sched.Path)
	if err != nil {
		logger.Error("failed to read pipeline", "error", err)
		return false
	}

	resp, err := s.runner.Run(orchestrator.WithTrigger(ctx, "schedule"), agent.RunRequest{
		Source: string(source),
		Params: sched.Params,
	})
	if err != nil {
		logger.Error("scheduled run not started", "error", err)
		return false
	}

	runID, _ := uuid.Parse(resp.RunID)

	s.mu.Lock()
	sched.RecordRun(runID, *sched.NextDueAt)
	s.mu.Unlock()

	logger.Info("scheduled run finished",
		"run_id", resp.RunID,
		"status", resp.Status,
		"next_due_at", sched.NextDueAt,
	)
	return true
}

// Start загружает расписания и выполняет тики до отмены ctx.
//
// Если задан Locker, тик выполняет только лидер. Изменения файлов
// в каталоге подхватываются без перезапуска.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Load(time.Now()); err != nil {
		return err
	}

	w, err := watch.New(watch.Config{
		Paths: []string{s.dir},
		Match: func(path string) bool { return filepath.Ext(path) == Extension },
		OnChange: func(string) {
			if err := s.Load(time.Now()); err != nil {
				s.logger.Error("failed to reload schedules", "error", err)
			}
		},
		Logger: s.logger,
	})
	if err != nil {
		s.logger.Warn("pipeline directory is not watched", "dir", s.dir, "error", err)
	} else {
		defer w.Close()
		go w.Run(ctx)
	}

	s.logger.Info("scheduler started", "dir", s.dir, "schedules", len(s.Schedules()))

	tk := time.NewTicker(s.interval)
	defer tk.Stop()

	defer func() {
		if s.locker != nil {
			if err := s.locker.Release(context.Background()); err != nil {
				s.logger.Warn("failed to release scheduler lock", "error", err)
			}
		}
	}()

	for {
		select {
		case t := <-tk.C:
			if !s.isLeader(ctx) {
				continue
			}
			s.Tick(ctx, t)

		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		}
	}
}

// isLeader пытается стать лидером или подтверждает лидерство.
func (s *Scheduler) isLeader(ctx context.Context) bool {
	if s.locker == nil {
		return true
	}
	ok, err := s.locker.TryAcquire(ctx)
	if err != nil {
		s.logger.Warn("scheduler lock error", "error", err)
		return false
	}
	return ok
}

func sameSchedule(a, b *domain.Schedule) bool {
	return a.PipelineName == b.PipelineName &&
		a.CronExpr == b.CronExpr &&
		a.IntervalSec == b.IntervalSec &&
		a.Timezone == b.Timezone
}
