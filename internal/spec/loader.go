package spec

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader reads a spec file and watches it for changes.
type Loader struct {
	path     string
	log      *slog.Logger
	mu       sync.RWMutex
	current  *Spec
	onChange []func(*Spec)
}

// NewLoader creates a Loader and performs the initial load. The initial
// document must be valid.
func NewLoader(path string, log *slog.Logger) (*Loader, error) {
	if log == nil {
		log = slog.Default()
	}
	l := &Loader{path: path, log: log}
	s, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = s
	return l, nil
}

// Path returns the watched file.
func (l *Loader) Path() string { return l.path }

// Spec returns the latest valid document.
func (l *Loader) Spec() *Spec {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever a valid document is
// reloaded.
func (l *Loader) OnChange(fn func(*Spec)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the file on changes.
// Invalid documents are logged and ignored. Call stop to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("spec watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("spec watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						l.log.Warn("spec reload failed, keeping previous", "path", l.path, "err", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.log.Warn("spec watcher error", "path", l.path, "err", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the file.
func (l *Loader) Reload() (*Spec, error) {
	s, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = s
	callbacks := make([]func(*Spec), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	l.log.Info("spec loaded", "path", l.path, "name", s.Name, "marks", len(s.Marks))
	for _, fn := range callbacks {
		fn(s)
	}
	return s, nil
}

func (l *Loader) load() (*Spec, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read spec %s: %w", l.path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("spec %s: %w", l.path, err)
	}
	return s, nil
}

// Parse decodes a YAML or JSON document, applies defaults and validates it.
func Parse(data []byte) (*Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	ApplyDefaults(&s)
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyDefaults fills unset engine and layout settings.
func ApplyDefaults(s *Spec) {
	if s.Engine.QueueDepth == 0 {
		s.Engine.QueueDepth = 1024
	}
	if s.Engine.StimulusTimeoutMs == 0 {
		s.Engine.StimulusTimeoutMs = 5000
	}
	if s.Engine.LogLevel == "" {
		s.Engine.LogLevel = "info"
	}
	if s.Width == 0 {
		s.Width = 500
	}
	if s.Height == 0 {
		s.Height = 300
	}
	defaultAxes(s.Axes)
	for i := range s.Marks {
		defaultMark(&s.Marks[i])
	}
}

func defaultMark(m *Mark) {
	defaultAxes(m.Axes)
	for i := range m.Marks {
		defaultMark(&m.Marks[i])
	}
}

func defaultAxes(axes []Axis) {
	for i := range axes {
		if axes[i].Ticks == 0 {
			axes[i].Ticks = 5
		}
	}
}
