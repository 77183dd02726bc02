package suggestions

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher notices external edits to the suggestions file (a human editing
// it directly, or another process appending) and fires a callback. Events
// are debounced since editors produce bursts of writes.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func()

	mu      sync.Mutex
	pending bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Watch starts watching the file's directory. The callback runs on a
// background goroutine.
func Watch(path string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory, not the file: rename-based atomic writes replace
	// the inode and a file watch would silently die.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:     path,
		watcher:  fsw,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return w, nil
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.mu.Lock()
				w.pending = true
				w.mu.Unlock()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("suggestions watcher error")
		}
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			fire := w.pending
			w.pending = false
			w.mu.Unlock()
			if fire && w.onChange != nil {
				log.Debug().Str("path", w.path).Msg("suggestions file changed externally")
				w.onChange()
			}
		}
	}
}
