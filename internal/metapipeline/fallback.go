package metapipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaiso/piper/internal/domain"
	"github.com/shaiso/piper/internal/dsl"
)

// HeaderPrefix — начало первой строки сгенерированного файла.
const HeaderPrefix = "// Generated from meta-pipeline: "

// Header возвращает заголовок сгенерированного файла.
func Header(name string) string {
	return HeaderPrefix + name + "\n" +
		"// This pipeline was automatically generated from meta-tasks and constraints\n\n"
}

// FallbackGenerator генерирует заготовку без обращения к внешним сервисам.
//
// Параметры, meta и данные переносятся без изменений. Каждая задача
// генерации заменяется на
//
//	name = cmd(command = "echo 'Implementing: <описание>'", description = "<описание>")
//
// Flow сохраняется, а при его отсутствии задачи выполняются
// последовательно в порядке объявления.
type FallbackGenerator struct{}

// Generate реализует Generator. Результат детерминирован.
func (FallbackGenerator) Generate(_ context.Context, p *domain.Pipeline) (string, error) {
	return Header(p.Name) + dsl.Format(Concretize(p)), nil
}

// Concretize возвращает копию p, в которой задачи генерации заменены
// задачами cmd, а неявный flow записан явно.
func Concretize(p *domain.Pipeline) *domain.Pipeline {
	out := domain.NewPipeline(p.Name)
	out.Parameters = append(out.Parameters, p.Parameters...)
	for k, v := range p.Metadata {
		out.Metadata[k] = v
	}
	for _, name := range p.DataOrder {
		out.SetData(name, p.DataLiterals[name])
	}

	for _, name := range p.TaskOrder {
		task := p.Tasks[name]
		if task.Type.IsMeta() {
			task = placeholder(task.Describe())
		}
		out.AddTask(name, task)
	}

	switch {
	case p.Flow != nil:
		out.Flow = p.Flow
	case len(p.TaskOrder) > 0:
		out.Flow = p.ImplicitFlow()
	}
	return out
}

// placeholder создаёт задачу cmd, печатающую описание.
func placeholder(description string) *domain.Task {
	// Одинарная кавычка закрыла бы аргумент echo.
	text := strings.ReplaceAll(description, "'", "")
	args := []domain.Argument{
		{Name: "command", Value: domain.String(fmt.Sprintf("echo 'Implementing: %s'", text))},
		{Name: "description", Value: domain.String(description)},
	}
	return &domain.Task{
		Type:      domain.TaskTypeCmd,
		Arguments: args,
		NamedArguments: map[string]domain.Value{
			"command":     args[0].Value,
			"description": args[1].Value,
		},
	}
}
