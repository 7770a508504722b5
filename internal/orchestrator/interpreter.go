package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/piper/internal/domain"
	"github.com/shaiso/piper/internal/engine"
	"github.com/shaiso/piper/internal/tasks"
	"github.com/shaiso/piper/internal/telemetry"
)

// Значения по умолчанию.
const (
	defaultTrigger = "cli"

	// MetaVar — переменная, в которой доступен блок meta pipeline.
	MetaVar = "meta"
)

// Interpreter выполняет pipeline по его flow.
//
// Interpreter:
//   - Заполняет контекст run параметрами, данными и meta
//   - Обходит flow: Sequential по порядку, Parallel конкурентно,
//     Conditional по результату условия
//   - Для каждой ссылки на задачу вычисляет аргументы, создаёт
//     задачу через Registry, валидирует и выполняет её
//   - Сохраняет поля результата под именем задачи и основной
//     результат в переменную из аргумента output
//
// Interpreter не хранит состояние между запусками и безопасен
// для конкурентного использования.
type Interpreter struct {
	registry    *tasks.Registry
	evaluator   *engine.Evaluator
	recorder    Recorder
	logger      *slog.Logger
	trigger     string
	maxParallel int
}

// Config — конфигурация Interpreter.
type Config struct {
	// Registry — реализации задач. Nil — tasks.DefaultRegistry.
	Registry *tasks.Registry

	// Evaluator — вычислитель значений. Nil — с функциями по умолчанию.
	Evaluator *engine.Evaluator

	// Recorder — получатель событий выполнения (опционально).
	Recorder Recorder

	// Trigger — источник запусков: "cli", "http", "mq", "schedule".
	Trigger string

	// MaxParallel ограничивает число одновременно выполняемых элементов
	// одного Parallel. 0 — без ограничения.
	MaxParallel int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Interpreter.
func New(cfg Config) *Interpreter {
	registry := cfg.Registry
	if registry == nil {
		registry = tasks.DefaultRegistry(tasks.Options{})
	}

	evaluator := cfg.Evaluator
	if evaluator == nil {
		evaluator = engine.NewEvaluator(nil)
	}

	trigger := cfg.Trigger
	if trigger == "" {
		trigger = defaultTrigger
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Interpreter{
		registry:    registry,
		evaluator:   evaluator,
		recorder:    cfg.Recorder,
		logger:      logger,
		trigger:     trigger,
		maxParallel: cfg.MaxParallel,
	}
}

type triggerKey struct{}

// WithTrigger задаёт источник запуска для Run вместо Config.Trigger.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// runState — состояние одного запуска.
type runState struct {
	pipeline *domain.Pipeline
	run      *domain.Run
	result   *RunResult
	logger   *slog.Logger
}

// Run выполняет pipeline с параметрами params.
//
// Возвращает RunResult всегда, кроме ошибки до создания run
// (мета-пайплайн). Ошибка выполнения дублируется в RunResult.Err.
func (i *Interpreter) Run(ctx context.Context, p *domain.Pipeline, params map[string]any) (*RunResult, error) {
	if p.IsMeta() {
		return nil, fmt.Errorf("%w: %s", ErrMetaPipeline, p.Name)
	}

	trigger := i.trigger
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		trigger = t
	}

	run := domain.NewRun(p.Name, params, trigger)
	st := &runState{
		pipeline: p,
		run:      run,
		result:   newRunResult(run),
		logger:   telemetry.RunLogger(i.logger, p.Name, run.ID.String()),
	}

	ctx, span := telemetry.StartRunSpan(ctx, p.Name, run.ID.String())
	ctx = telemetry.WithLogger(ctx, st.logger)

	st.logger.Info("run started", "trigger", trigger)
	run.MarkRunning()
	i.record(ctx, st, func(r Recorder) error { return r.RunStarted(ctx, run) })

	vars, err := i.seed(p, params)
	if err == nil {
		err = i.execFlow(ctx, st, p.EffectiveFlow(), vars)
	}

	switch {
	case err == nil:
		run.MarkSucceeded()
	case errors.Is(err, ErrCancelled):
		run.MarkCancelled()
		run.Error = err.Error()
	default:
		run.MarkFailed(err.Error())
	}

	if vars != nil {
		st.result.Vars = vars.Snapshot()
	}
	st.result.Err = err

	telemetry.RecordRun(p.Name, string(run.Status), run.Duration())
	// Отменённый ctx не должен мешать сохранению итогового статуса
	i.record(context.WithoutCancel(ctx), st, func(r Recorder) error {
		return r.RunFinished(context.WithoutCancel(ctx), run)
	})
	telemetry.EndSpan(span, err)

	if err != nil {
		st.logger.Error("run failed", "status", run.Status, "duration", run.Duration(), "error", err)
	} else {
		st.logger.Info("run succeeded", "duration", run.Duration(), "tasks", len(st.result.Tasks))
	}

	return st.result, err
}

// seed создаёт контекст run.
//
// Порядок: значения параметров по умолчанию, переданные параметры,
// данные pipeline в порядке объявления, блок meta.
func (i *Interpreter) seed(p *domain.Pipeline, params map[string]any) (*engine.Context, error) {
	vars := engine.NewContext(nil)

	for _, param := range p.Parameters {
		if param.Default == nil {
			continue
		}
		value, err := i.evaluator.Resolve(param.Default, vars)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", param.Name, err)
		}
		vars.Set(param.Name, value)
	}

	vars.SetMany(params)

	for _, name := range p.DataOrder {
		value, err := i.evaluator.Resolve(p.DataLiterals[name], vars)
		if err != nil {
			return nil, fmt.Errorf("data %s: %w", name, err)
		}
		vars.Set(name, value)
	}

	if len(p.Metadata) > 0 {
		meta := make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			value, err := i.evaluator.Resolve(v, vars)
			if err != nil {
				return nil, fmt.Errorf("meta %s: %w", k, err)
			}
			meta[k] = value
		}
		vars.Set(MetaVar, meta)
	}

	return vars, nil
}

// execFlow выполняет flow.
func (i *Interpreter) execFlow(ctx context.Context, st *runState, f domain.Flow, vars *engine.Context) error {
	switch flow := f.(type) {
	case nil:
		return nil

	case domain.Sequential:
		for _, item := range flow.Items {
			if err := checkCancelled(ctx); err != nil {
				return err
			}
			if err := i.execItem(ctx, st, item, vars); err != nil {
				return err
			}
		}
		return nil

	case domain.Parallel:
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		return i.execParallel(ctx, st, flow, vars)

	case domain.Conditional:
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		ok, err := i.evaluator.Condition(flow.Condition, vars)
		if err != nil {
			return fmt.Errorf("condition: %w", err)
		}
		st.logger.Debug("condition evaluated", "result", ok)

		switch {
		case ok:
			return i.execItem(ctx, st, *flow.Then, vars)
		case flow.Else != nil:
			return i.execItem(ctx, st, *flow.Else, vars)
		default:
			return nil
		}

	default:
		return fmt.Errorf("unsupported flow %T", f)
	}
}

// execParallel выполняет элементы Parallel конкурентно.
//
// Каждый элемент работает со своей копией контекста (Fork).
// Ошибка элемента не отменяет остальные. После завершения всех
// элементов их записи применяются к контексту в порядке объявления,
// поэтому при конфликте побеждает элемент, объявленный позже.
func (i *Interpreter) execParallel(ctx context.Context, st *runState, flow domain.Parallel, vars *engine.Context) error {
	forks := make([]*engine.Context, len(flow.Items))
	errs := make([]error, len(flow.Items))

	var g errgroup.Group
	if i.maxParallel > 0 {
		g.SetLimit(i.maxParallel)
	}

	for idx, item := range flow.Items {
		forks[idx] = vars.Fork()
		g.Go(func() error {
			errs[idx] = i.execItem(ctx, st, item, forks[idx])
			return nil
		})
	}
	_ = g.Wait()

	var failed []ItemError
	for idx, item := range flow.Items {
		vars.Merge(forks[idx])
		if errs[idx] != nil {
			failed = append(failed, ItemError{Index: idx, Item: describeItem(item), Err: errs[idx]})
		}
	}

	if len(failed) > 0 {
		return &ParallelError{Total: len(flow.Items), Errors: failed}
	}
	return nil
}

// execItem выполняет элемент flow.
func (i *Interpreter) execItem(ctx context.Context, st *runState, item domain.FlowItem, vars *engine.Context) error {
	if item.IsTask() {
		return i.dispatch(ctx, st, item.Task, vars)
	}
	return i.execFlow(ctx, st, item.Flow, vars)
}

// dispatch выполняет задачу по имени.
func (i *Interpreter) dispatch(ctx context.Context, st *runState, name string, vars *engine.Context) error {
	decl, ok := st.pipeline.Task(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}

	tr := domain.NewTaskRun(st.run.ID, name, decl.Type)
	st.result.addTask(tr)

	logger := telemetry.TaskLogger(st.logger, name)
	ctx, span := telemetry.StartTaskSpan(ctx, name, string(decl.Type))
	ctx = telemetry.WithLogger(ctx, logger)

	err := i.execTask(ctx, st, tr, decl, vars)

	telemetry.RecordTask(string(decl.Type), string(tr.Status), tr.Duration())
	i.record(ctx, st, func(r Recorder) error { return r.TaskFinished(ctx, tr) })
	telemetry.EndSpan(span, err)

	if err != nil {
		logger.Warn("task failed", "type", decl.Type, "error", err)
		return err
	}
	logger.Info("task succeeded", "type", decl.Type, "duration", tr.Duration())
	return nil
}

// execTask вычисляет аргументы, создаёт, валидирует и выполняет задачу.
// Статус tr обновляется в любом исходе.
func (i *Interpreter) execTask(ctx context.Context, st *runState, tr *domain.TaskRun, decl *domain.Task, vars *engine.Context) error {
	spec, err := i.buildSpec(tr.TaskName, decl, vars)
	if err != nil {
		tr.MarkFailed(nil, err.Error())
		return fmt.Errorf("task %s: %w", tr.TaskName, err)
	}

	task, err := i.registry.Build(spec)
	if err != nil {
		tr.MarkFailed(nil, err.Error())
		return err
	}

	if err := task.Validate(); err != nil {
		tr.MarkFailed(nil, err.Error())
		return err
	}

	tr.MarkRunning()
	i.record(ctx, st, func(r Recorder) error { return r.TaskStarted(ctx, tr) })

	sink := tasks.NewResultSink()
	execErr := task.Execute(ctx, vars, sink)

	// Поля результата доступны как <задача>.<поле>, основной результат —
	// в переменной output. Обе записи применяются одной операцией.
	fields := sink.Fields()
	updates := map[string]any{tr.TaskName: fields}
	if execErr == nil {
		if out := decl.Output(); out != "" {
			if value, ok := sink.Output(); ok {
				updates[out] = value
			}
		}
	}
	vars.SetMany(updates)

	if execErr != nil {
		tr.MarkFailed(fields, execErr.Error())
		return execErr
	}
	tr.MarkSucceeded(fields)
	return nil
}

// buildSpec вычисляет аргументы задачи в текущем контексте.
// Аргумент output — имя переменной и не вычисляется.
func (i *Interpreter) buildSpec(name string, decl *domain.Task, vars *engine.Context) (tasks.Spec, error) {
	named := make(map[string]domain.Value, len(decl.NamedArguments))
	for k, v := range decl.NamedArguments {
		if k == domain.OutputKey {
			continue
		}
		named[k] = v
	}

	args, err := i.evaluator.ResolveArgs(named, vars)
	if err != nil {
		return tasks.Spec{}, err
	}
	if out := decl.Output(); out != "" {
		args[domain.OutputKey] = out
	}

	var positional []any
	for idx, arg := range decl.Arguments {
		if arg.Name != "" {
			continue
		}
		value, err := i.evaluator.Resolve(arg.Value, vars)
		if err != nil {
			return tasks.Spec{}, fmt.Errorf("argument %d: %w", idx, err)
		}
		positional = append(positional, value)
	}

	return tasks.NewSpec(name, decl.Type, args, positional), nil
}

// record вызывает Recorder, если он задан. Ошибки только логируются.
func (i *Interpreter) record(ctx context.Context, st *runState, fn func(Recorder) error) {
	if i.recorder == nil {
		return
	}
	if err := fn(i.recorder); err != nil {
		st.logger.Warn("recorder failed", "error", err)
	}
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return nil
}

// describeItem возвращает имя задачи или вид вложенного flow.
func describeItem(item domain.FlowItem) string {
	if item.IsTask() {
		return item.Task
	}
	switch item.Flow.(type) {
	case domain.Sequential:
		return "sequential"
	case domain.Parallel:
		return "parallel"
	case domain.Conditional:
		return "conditional"
	default:
		return fmt.Sprintf("%T", item.Flow)
	}
}
