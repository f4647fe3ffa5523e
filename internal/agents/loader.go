package agents

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	builtinDir = "_builtin"
	customDir  = "custom"
)

// Loader reads agent templates from <dir>/_builtin and <dir>/custom. Custom
// templates override builtin ones by name. The template map is replaced
// atomically on reload, so readers never observe a partial set.
type Loader struct {
	dir    string
	logger *slog.Logger

	mu        sync.RWMutex
	templates map[string]*Template
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default().With(slog.String("component", "agents"))
	}
	return &Loader{
		dir:       dir,
		logger:    logger,
		templates: map[string]*Template{},
	}
}

// Load reads both directories and swaps the template map. Unreadable files
// are logged and skipped; a missing custom directory is fine.
func (l *Loader) Load() error {
	loaded := map[string]*Template{}

	if err := l.loadDir(filepath.Join(l.dir, builtinDir), true, loaded); err != nil {
		return err
	}
	if err := l.loadDir(filepath.Join(l.dir, customDir), false, loaded); err != nil {
		return err
	}

	l.mu.Lock()
	l.templates = loaded
	l.mu.Unlock()
	l.logger.Info("agent templates loaded", "count", len(loaded))
	return nil
}

func (l *Loader) loadDir(dir string, builtin bool, into map[string]*Template) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read template dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			l.logger.Warn("skipping unreadable template", "file", name, "error", err)
			continue
		}
		tpl, err := parseTemplate(data)
		if err != nil {
			l.logger.Warn("skipping invalid template", "file", name, "error", err)
			continue
		}
		tpl.Builtin = builtin
		into[tpl.Name] = tpl
	}
	return nil
}

// Get returns a template by name.
func (l *Loader) Get(name string) (*Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.templates[name]
	return t, ok
}

// All returns every template, sorted by name.
func (l *Loader) All() []*Template {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Template, 0, len(l.templates))
	for _, t := range l.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Save writes a custom template and reloads. Builtin names cannot be saved
// over; the custom file shadows them instead, which is exactly what Save
// produces.
func (l *Loader) Save(t *Template) error {
	if t.Name == "" {
		return fmt.Errorf("template needs a name")
	}
	if t.Name == GeneralAgent {
		return fmt.Errorf("agent '%s' is reserved", GeneralAgent)
	}
	data, err := t.encode()
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	dir := filepath.Join(l.dir, customDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create custom dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, t.Name+".yaml"), data, 0o644); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return l.Load()
}

// Delete removes a custom template and reloads. Builtins are refused.
func (l *Loader) Delete(name string) error {
	tpl, ok := l.Get(name)
	if !ok {
		return fmt.Errorf("agent '%s' not found", name)
	}
	if tpl.Builtin {
		return fmt.Errorf("agent '%s' is builtin and cannot be deleted", name)
	}
	path := filepath.Join(l.dir, customDir, name+".yaml")
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return l.Load()
}

// Watch reloads on changes under the template directories until ctx ends.
// Events are debounced because editors fire several per save.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	for _, sub := range []string{builtinDir, customDir} {
		dir := filepath.Join(l.dir, sub)
		if err := watcher.Add(dir); err != nil {
			l.logger.Debug("not watching template dir", "dir", dir, "error", err)
		}
	}

	go func() {
		defer watcher.Close()
		var pending *time.Timer
		reload := func() {
			if err := l.Load(); err != nil {
				l.logger.Error("template reload failed", "error", err)
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(200*time.Millisecond, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Debug("watcher error", "error", err)
			}
		}
	}()
	return nil
}
