package metapipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shaiso/piper/internal/domain"
	"github.com/shaiso/piper/internal/dsl"
)

// DefaultDir — каталог кэша по умолчанию.
const DefaultDir = "generated"

// Extension — расширение файлов pipeline.
const Extension = ".piper"

// Generator превращает мета-пайплайн в текст конкретного pipeline.
type Generator interface {
	Generate(ctx context.Context, p *domain.Pipeline) (string, error)
}

// Cache хранит сгенерированные pipeline на диске.
//
// Ключ кэша — имя pipeline. Без регенерации сохранённый файл
// возвращается как есть, даже если он был изменён вручную.
type Cache struct {
	// Dir — каталог кэша. Пустой — DefaultDir.
	Dir string

	// Generator — генератор. Nil — FallbackGenerator.
	Generator Generator

	// Logger
	Logger *slog.Logger
}

// NewCache создаёт Cache.
func NewCache(dir string, gen Generator) *Cache {
	return &Cache{Dir: dir, Generator: gen}
}

// Path возвращает путь файла кэша для pipeline.
func (c *Cache) Path(name string) string {
	dir := c.Dir
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, name+Extension)
}

// Materialize возвращает текст конкретного pipeline для мета-пайплайна.
//
// Если regenerate == false и файл кэша существует, возвращается его
// содержимое. Иначе pipeline генерируется и записывается в кэш,
// недостающие каталоги создаются.
//
// Ошибки файловой системы возвращаются как dsl.BuildError с ErrInvalidValue,
// Field указывает операцию: file_read, directory_create, file_write.
func (c *Cache) Materialize(ctx context.Context, p *domain.Pipeline, regenerate bool) (string, error) {
	path := c.Path(p.Name)
	logger := c.logger().With("pipeline", p.Name, "path", path)

	if !regenerate {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			logger.Debug("using cached pipeline")
			return string(data), nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", dsl.NewInvalidValue("file_read", fmt.Sprintf("failed to read generated pipeline: %v", err))
		}
	}

	text, err := c.generator().Generate(ctx, p)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", p.Name, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", dsl.NewInvalidValue("directory_create", fmt.Sprintf("failed to create directory: %v", err))
	}
	if err := writeFile(path, text); err != nil {
		return "", dsl.NewInvalidValue("file_write", fmt.Sprintf("failed to write generated pipeline: %v", err))
	}

	logger.Info("pipeline generated", "regenerate", regenerate)
	return text, nil
}

// Resolve возвращает pipeline, готовый к выполнению.
//
// Обычный pipeline возвращается без изменений. Мета-пайплайн
// материализуется и разбирается заново.
func (c *Cache) Resolve(ctx context.Context, p *domain.Pipeline, regenerate bool) (*domain.Pipeline, error) {
	if !p.IsMeta() {
		return p, nil
	}

	text, err := c.Materialize(ctx, p, regenerate)
	if err != nil {
		return nil, err
	}

	concrete, err := dsl.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.Path(p.Name), err)
	}
	if concrete.IsMeta() {
		return nil, fmt.Errorf("%w: %s", ErrStillMeta, c.Path(p.Name))
	}
	return concrete, nil
}

func (c *Cache) generator() Generator {
	if c.Generator == nil {
		return FallbackGenerator{}
	}
	return c.Generator
}

func (c *Cache) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// writeFile заменяет файл целиком: читатель видит либо старый, либо новый текст.
func writeFile(path, text string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
