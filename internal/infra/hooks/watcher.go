package hooks

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/telemetry"
)

const reloadDebounce = 200 * time.Millisecond

// Watcher hot-reloads the rules file on change. A file that fails to parse
// leaves the previous rule set in place.
type Watcher struct {
	path   string
	rules  *Rules
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWatcher(path string, rules *Rules, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		path:   path,
		rules:  rules,
		logger: logger.Named("hooks"),
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start hooks watcher: %w", err)
	}
	// Watch the directory so atomic replace-by-rename is still observed.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	go w.run(runCtx, fw, done)
	return nil
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	defer fw.Close()

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-fw.Errors:
			if err != nil {
				w.logger.Warn("hooks watcher error", zap.Error(err))
			}
		case event := <-fw.Events:
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(reloadDebounce)
		case <-timerChan(timer):
			timer = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	rules, err := LoadRules(w.path)
	if err != nil {
		w.logger.Warn("hooks reload failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.rules.Replace(rules)
	w.logger.Info("hook rules reloaded",
		telemetry.EventField(telemetry.EventHooksReload),
		zap.String("path", w.path),
		zap.Int("rules", len(rules)),
	)
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}
