// Package watch notices edits to dprint configuration files in the
// workspace so the integration can re-query the engine's plugins.
package watch

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// ConfigFileNames are the files dprint discovers its configuration in.
var ConfigFileNames = []string{"dprint.json", ".dprint.json", "dprint.jsonc", ".dprint.jsonc"}

const defaultDebounce = 250 * time.Millisecond

// ConfigWatcher calls OnChange once per burst of changes to a dprint
// configuration file directly inside Dir.
type ConfigWatcher struct {
	dir      string
	debounce time.Duration
	onChange func()
	log      logr.Logger

	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New starts watching dir. A zero debounce uses the default.
func New(dir string, debounce time.Duration, onChange func(), log logr.Logger) (*ConfigWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	w := &ConfigWatcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		log:      log,
		watcher:  fsw,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Dir returns the watched directory.
func (w *ConfigWatcher) Dir() string {
	return w.dir
}

// Stop ends watching. Pending debounced callbacks are dropped; one that has
// already started is not waited for, so OnChange must tolerate running
// after Stop.
func (w *ConfigWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()
		<-w.done

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
}

func (w *ConfigWatcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if IsConfigFile(ev.Name) && ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.log.V(1).Info("dprint config changed", "file", ev.Name, "op", ev.Op.String())
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error(err, "config watcher error", "dir", w.dir)
		}
	}
}

func (w *ConfigWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.stop:
			return
		default:
		}
		w.onChange()
	})
}

// IsConfigFile reports whether path names a dprint configuration file.
func IsConfigFile(path string) bool {
	base := filepath.Base(path)
	for _, name := range ConfigFileNames {
		if base == name {
			return true
		}
	}
	return false
}
