// classifier/pkg/store/source.go

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"rgehrsitz/classifier/pkg/logging"
)

// Source supplies the current rule source text.
type Source interface {
	Name() string
	Read(ctx context.Context) ([]byte, error)
}

// ChangeFeed delivers "the source changed" signals. Changes never blocks
// the producer: signals that arrive while one is pending are merged.
type ChangeFeed interface {
	Changes() <-chan struct{}
	Errors() <-chan error
	Close() error
}

// Notifier is a Source that can announce its own changes.
type Notifier interface {
	Source
	Watch(ctx context.Context) (ChangeFeed, error)
}

// FileSource reads rules from a properties file on disk.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Name() string {
	return f.path
}

func (f *FileSource) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, logging.NewError(logging.ErrorTypeSourceUnreadable, "Failed to read rule file", err, map[string]interface{}{
			"path": f.path,
		})
	}
	return data, nil
}

// Watch watches the file's directory, so that editors replacing the file
// with a rename are noticed too, and signals writes and creations of the
// file itself.
func (f *FileSource) Watch(ctx context.Context) (ChangeFeed, error) {
	abs, err := filepath.Abs(f.path)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", f.path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("add %q to watcher: %w", dir, err)
	}

	feed := &fileFeed{
		watcher: watcher,
		target:  abs,
		changes: make(chan struct{}, 1),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
	}
	go feed.run(ctx)

	logging.Logger.Info().Str("path", abs).Msg("Watching rule file")
	return feed, nil
}

type fileFeed struct {
	watcher   *fsnotify.Watcher
	target    string
	changes   chan struct{}
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (ff *fileFeed) run(ctx context.Context) {
	defer close(ff.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ff.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != ff.target || (!ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create)) {
				continue
			}
			logging.Logger.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("Rule file changed")
			signal(ff.changes)
		case err, ok := <-ff.watcher.Errors:
			if !ok {
				return
			}
			select {
			case ff.errors <- err:
			default:
			}
		}
	}
}

func (ff *fileFeed) Changes() <-chan struct{} { return ff.changes }
func (ff *fileFeed) Errors() <-chan error     { return ff.errors }

// Close releases the fsnotify handle and waits for the event loop to exit.
func (ff *fileFeed) Close() error {
	ff.closeOnce.Do(func() {
		ff.closeErr = ff.watcher.Close()
		<-ff.done
	})
	return ff.closeErr
}

// signal does a non-blocking send, merging with any pending signal.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
