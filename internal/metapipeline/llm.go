package metapipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shaiso/piper/internal/domain"
	"github.com/shaiso/piper/internal/dsl"
	"github.com/shaiso/piper/internal/llm"
)

const generatorMaxTokens = 4096

const systemPrompt = `You write pipelines in the piper DSL.
Reply with the source of exactly one pipeline and nothing else.
Every task must use one of the types: %s.
Keep the pipeline name, parameters, meta block and data literals unchanged.
Syntax reference:

pipeline deploy(env = "staging") {
    meta { owner: "ops" }
    build = cmd(command = "make", output = "artifact")
    ping = http(url = "https://example.com/#{env}", method = "GET")
    flow: build > [ping, build] > (#{env} == "prod" ? ping)
}`

// LLMGenerator генерирует конкретный pipeline с помощью языковой модели.
//
// Ответ принимается, только если он разбирается, называется так же,
// как мета-пайплайн, и не содержит задач генерации. Некорректный ответ
// передаётся Fallback, если он задан, иначе возвращается ErrInvalidGeneration.
type LLMGenerator struct {
	Client llm.Client

	// Model — модель по умолчанию. Поле model задач generate_tasks
	// и generate_flow имеет приоритет.
	Model string

	// Fallback — генератор на случай ошибки модели (опционально).
	Fallback Generator

	Logger *slog.Logger
}

// NewLLMGenerator создаёт LLMGenerator с FallbackGenerator в качестве запасного.
func NewLLMGenerator(client llm.Client) *LLMGenerator {
	return &LLMGenerator{Client: client, Fallback: FallbackGenerator{}}
}

// Generate реализует Generator.
func (g *LLMGenerator) Generate(ctx context.Context, p *domain.Pipeline) (string, error) {
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resp, err := g.Client.Complete(ctx, &llm.Request{
		Model:     g.model(p),
		System:    fmt.Sprintf(systemPrompt, concreteTypes()),
		Prompt:    Prompt(p),
		MaxTokens: generatorMaxTokens,
	})
	if err == nil {
		var text string
		text, err = validate(p.Name, resp.Text)
		if err == nil {
			logger.Info("pipeline generated by model", "pipeline", p.Name, "model", resp.Model, "tokens", resp.TokensUsed())
			return Header(p.Name) + text, nil
		}
	}

	if g.Fallback == nil || ctx.Err() != nil {
		return "", err
	}
	logger.Warn("model generation failed, using fallback", "pipeline", p.Name, "error", err)
	return g.Fallback.Generate(ctx, p)
}

// model выбирает модель: из задач генерации или по умолчанию.
func (g *LLMGenerator) model(p *domain.Pipeline) string {
	for _, name := range p.TaskOrder {
		t := p.Tasks[name]
		switch {
		case t.GenerateTasks != nil && t.GenerateTasks.Model != "":
			return t.GenerateTasks.Model
		case t.GenerateFlow != nil && t.GenerateFlow.Model != "":
			return t.GenerateFlow.Model
		}
	}
	return g.Model
}

// Prompt описывает задачу генерации для модели.
func Prompt(p *domain.Pipeline) string {
	var b strings.Builder
	b.WriteString("Rewrite this meta-pipeline into a concrete pipeline.\n")
	b.WriteString("Replace every meta_task, generate_tasks and generate_flow task with concrete tasks.\n\n")

	for _, name := range p.TaskOrder {
		t := p.Tasks[name]
		switch {
		case t.MetaTask != nil:
			fmt.Fprintf(&b, "- %s: %s", name, t.MetaTask.Task)
			if t.MetaTask.DataShape != "" {
				fmt.Fprintf(&b, " (data shape: %s)", t.MetaTask.DataShape)
			}
			b.WriteString("\n")
		case t.GenerateTasks != nil:
			fmt.Fprintf(&b, "- %s: generate tasks for %s", name, strings.Join(t.GenerateTasks.MetaTasks, ", "))
			if len(t.GenerateTasks.CustomTasks) > 0 {
				fmt.Fprintf(&b, ", also use %s", strings.Join(t.GenerateTasks.CustomTasks, ", "))
			}
			if t.GenerateTasks.Style != nil {
				fmt.Fprintf(&b, ", style %s", *t.GenerateTasks.Style)
			}
			b.WriteString("\n")
		case t.GenerateFlow != nil:
			fmt.Fprintf(&b, "- %s: %s", name, t.Describe())
			if len(t.GenerateFlow.Constraints) > 0 {
				fmt.Fprintf(&b, "; constraints: %s", strings.Join(t.GenerateFlow.Constraints, "; "))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nSource:\n\n")
	b.WriteString(dsl.Format(p))
	return b.String()
}

// validate извлекает pipeline из ответа модели и проверяет его.
func validate(name, answer string) (string, error) {
	text := stripFences(answer)

	p, err := dsl.Parse(text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidGeneration, err)
	}
	if p.Name != name {
		return "", fmt.Errorf("%w: expected pipeline %s, got %s", ErrInvalidGeneration, name, p.Name)
	}
	if p.IsMeta() {
		return "", fmt.Errorf("%w: %v", ErrInvalidGeneration, ErrStillMeta)
	}
	return text, nil
}

// stripFences убирает обрамление ```...```, которое модели добавляют к коду.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s + "\n"
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s) + "\n"
}

// concreteTypes перечисляет исполняемые типы задач.
func concreteTypes() string {
	var names []string
	for _, t := range domain.TaskTypes {
		if !t.IsMeta() {
			names = append(names, string(t))
		}
	}
	return strings.Join(names, ", ")
}
