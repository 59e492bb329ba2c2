package macrofile

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a path must stay quiet before its change is
// reported.
const DefaultDebounce = 100 * time.Millisecond

// Op is a set of file operations.
type Op uint32

const (
	// OpCreate indicates a file was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file was removed.
	OpRemove
	// OpRename indicates a file was renamed away.
	OpRename
)

// Has reports whether op contains o.
func (op Op) Has(o Op) bool {
	return op&o != 0
}

func (op Op) String() string {
	var parts []string
	for _, p := range []struct {
		op   Op
		name string
	}{{OpCreate, "CREATE"}, {OpWrite, "WRITE"}, {OpRemove, "REMOVE"}, {OpRename, "RENAME"}} {
		if op.Has(p.op) {
			parts = append(parts, p.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Event is a coalesced change to one macro file.
type Event struct {
	Path string
	Op   Op
}

// Gone reports whether the file no longer exists under Path.
func (e Event) Gone() bool {
	return e.Op.Has(OpRemove|OpRename) && !e.Op.Has(OpCreate|OpWrite)
}

// Watcher reports changes to macro files in watched directories.
// Rapid changes to the same file are coalesced into one Event.
type Watcher struct {
	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	ext     string
	delay   time.Duration
	dirs    map[string]bool
	pending map[string]*pendingEvent

	events chan Event
	errors chan error

	closed  bool
	closeCh chan struct{}
	loopWg  sync.WaitGroup
	fireWg  sync.WaitGroup
}

type pendingEvent struct {
	event Event
	timer *time.Timer
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before an event is reported.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithWatchExtension sets the extension of files worth reporting.
func WithWatchExtension(ext string) WatcherOption {
	return func(w *Watcher) {
		if ext != "" {
			w.ext = ext
		}
	}
}

// NewWatcher creates a watcher. Call Add to watch directories.
func NewWatcher(opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:     fsw,
		ext:     DefaultExtension,
		delay:   DefaultDebounce,
		dirs:    make(map[string]bool),
		pending: make(map[string]*pendingEvent),
		events:  make(chan Event, 64),
		errors:  make(chan error, 16),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.loopWg.Add(1)
	go w.processLoop()
	return w, nil
}

// Add starts watching dir. Adding a directory twice is a no-op.
func (w *Watcher) Add(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if w.dirs[abs] {
		return nil
	}
	if err := w.fsw.Add(abs); err != nil {
		return err
	}
	w.dirs[abs] = true
	return nil
}

// Remove stops watching dir.
func (w *Watcher) Remove(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if !w.dirs[abs] {
		return nil
	}
	delete(w.dirs, abs)
	return w.fsw.Remove(abs)
}

// Dirs returns the watched directories in sorted order.
func (w *Watcher) Dirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	dirs := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// Events returns the channel of coalesced events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watch errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher and closes its channels.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.loopWg.Wait()
	w.fireWg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsw.Close()
}

func (w *Watcher) processLoop() {
	defer w.loopWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	return op
}

func (w *Watcher) handle(ev fsnotify.Event) {
	op := convertOp(ev.Op)
	if op == 0 || !strings.EqualFold(filepath.Ext(ev.Name), w.ext) {
		return
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if p, ok := w.pending[ev.Name]; ok {
		// A removal followed by a create is a save by rename.
		if op.Has(OpCreate|OpWrite) && p.event.Op.Has(OpRemove|OpRename) {
			p.event.Op = op
		} else {
			p.event.Op |= op
		}
		p.timer.Reset(w.delay)
		return
	}

	path := ev.Name
	p := &pendingEvent{event: Event{Path: path, Op: op}}
	p.timer = time.AfterFunc(w.delay, func() { w.fire(path) })
	w.pending[path] = p
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if !ok || w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.fireWg.Add(1)
	w.mu.Unlock()
	defer w.fireWg.Done()

	select {
	case w.events <- p.event:
	case <-w.closeCh:
	}
}
