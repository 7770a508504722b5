// Package watch следит за файлами pipeline и сообщает об изменениях
// с задержкой, чтобы серия записей редактора давала один вызов.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce — задержка между последним событием и вызовом OnChange.
const DefaultDebounce = 300 * time.Millisecond

// Watcher следит за набором файлов или каталогов.
//
// Следит за каталогами, а не за файлами: редакторы часто сохраняют
// через временный файл и rename, после чего наблюдение за исходным
// inode теряется.
type Watcher struct {
	watcher  *fsnotify.Watcher
	match    func(path string) bool
	onChange func(path string)
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// Config — конфигурация Watcher.
type Config struct {
	// Paths — файлы и каталоги. Для файла отслеживается его каталог.
	Paths []string

	// Match отбирает события по пути. Nil — файлы из Paths и все
	// файлы каталогов из Paths.
	Match func(path string) bool

	// OnChange вызывается с путём последнего изменённого файла.
	OnChange func(path string)

	// Debounce (default: DefaultDebounce)
	Debounce time.Duration

	Logger *slog.Logger
}

// New создаёт Watcher и подписывается на Paths.
func New(cfg Config) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	match := cfg.Match
	files := make(map[string]bool)
	dirs := make(map[string]bool)

	for _, p := range cfg.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, err
		}

		dir := abs
		if !isDir(abs) {
			files[abs] = true
			dir = filepath.Dir(abs)
		} else {
			dirs[abs] = true
		}

		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}

	if match == nil {
		match = func(path string) bool {
			abs, err := filepath.Abs(path)
			if err != nil {
				return false
			}
			return files[abs] || dirs[filepath.Dir(abs)]
		}
	}

	return &Watcher{
		watcher:  fw,
		match:    match,
		onChange: cfg.OnChange,
		debounce: debounce,
		logger:   logger,
	}, nil
}

// Run обрабатывает события до отмены ctx или Close.
func (w *Watcher) Run(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) || !w.match(event.Name) {
				continue
			}

			w.logger.Debug("file event", "op", event.Op.String(), "file", event.Name)

			name := event.Name
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				w.onChange(name)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

// Close прекращает наблюдение.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func relevant(event fsnotify.Event) bool {
	return event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Rename) ||
		event.Has(fsnotify.Remove)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
