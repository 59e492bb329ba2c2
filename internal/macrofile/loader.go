package macrofile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/stormscript/internal/buffer"
	"github.com/dshills/stormscript/internal/script"
)

// Logger is the logging surface the loader needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

// Loader runs macro files and tracks the macros each one defined.
type Loader struct {
	ctl     *script.Controller
	ext     string
	log     Logger
	defined map[string][]string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithExtension sets the macro file extension, including the dot.
func WithExtension(ext string) LoaderOption {
	return func(l *Loader) {
		if ext != "" {
			l.ext = ext
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log Logger) LoaderOption {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLoader creates a loader defining macros through ctl.
func NewLoader(ctl *script.Controller, opts ...LoaderOption) *Loader {
	l := &Loader{
		ctl:     ctl,
		ext:     DefaultExtension,
		log:     nopLogger{},
		defined: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Extension returns the macro file extension.
func (l *Loader) Extension() string {
	return l.ext
}

// IsMacroFile reports whether path has the macro extension.
func (l *Loader) IsMacroFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), l.ext)
}

// LoadFile runs path and returns the names of the macros it defined or
// redefined.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]string, error) {
	if !l.IsMacroFile(path) {
		return nil, fmt.Errorf("%w: %s", ErrNotMacroFile, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	before := l.versions()
	_, runErr := ExecuteFile(ctx, l.ctl, abs, 1)

	var names []string
	for name, version := range l.versions() {
		if old, ok := before[name]; !ok || old != version {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	l.defined[abs] = names

	if runErr != nil {
		return names, runErr
	}
	l.log.Debug("loaded %s: %d macros", abs, len(names))
	return names, nil
}

func (l *Loader) versions() map[string]uint64 {
	reg := l.ctl.Buffers()
	out := make(map[string]uint64)
	for _, name := range reg.Names() {
		if b, ok := reg.Get(name); ok {
			out[name] = b.Version()
		}
	}
	return out
}

// LoadDir runs every macro file directly inside dir in name order. A
// failing file does not stop the others; all failures are returned joined.
// A missing directory is not an error.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var (
		names []string
		errs  []error
	)
	for _, entry := range entries {
		if entry.IsDir() || !l.IsMacroFile(entry.Name()) {
			continue
		}
		defined, err := l.LoadFile(ctx, filepath.Join(dir, entry.Name()))
		names = append(names, defined...)
		if err != nil {
			if script.IsAbort(err) {
				return names, err
			}
			l.log.Warn("%v", err)
			errs = append(errs, err)
		}
	}
	return names, errors.Join(errs...)
}

// Reload forgets the macros path defined and runs it again.
func (l *Loader) Reload(ctx context.Context, path string) ([]string, error) {
	if err := l.Forget(path); err != nil {
		return nil, err
	}
	return l.LoadFile(ctx, path)
}

// Forget removes the macros path defined. Macros that are running are kept
// and reported.
func (l *Loader) Forget(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range l.defined[abs] {
		if err := l.ctl.Buffers().Remove(name); err != nil && !errors.Is(err, buffer.ErrBufferNotFound) {
			errs = append(errs, err)
		}
	}
	delete(l.defined, abs)
	return errors.Join(errs...)
}

// Defined returns the macros path defined when it was last loaded.
func (l *Loader) Defined(path string) []string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil
	}
	return append([]string(nil), l.defined[abs]...)
}

// Files returns the loaded files in sorted order.
func (l *Loader) Files() []string {
	files := make([]string, 0, len(l.defined))
	for f := range l.defined {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}
