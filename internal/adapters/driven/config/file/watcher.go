package file

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/deskhub-io/deskhub/internal/logger"
)

// Watcher reloads the configuration file when it changes on disk and
// hands the fresh config to a callback. Used to retune rate budgets
// without restarting the daemon.
type Watcher struct {
	store    *ConfigStore
	onChange func(Config)

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher over the store's config file.
func NewWatcher(store *ConfigStore, onChange func(Config)) *Watcher {
	return &Watcher{
		store:    store,
		onChange: onChange,
	}
}

// Start begins watching. Editors replace files rather than writing in
// place, so the parent directory is watched and events are filtered by
// name.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.store.Path())); err != nil {
		fsw.Close()
		return err
	}

	w.fsw = fsw
	w.stopCh = make(chan struct{})
	w.running = true

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	fsw := w.fsw
	w.mu.Unlock()

	err := fsw.Close()
	w.wg.Wait()
	return err
}

// loop consumes filesystem events, debouncing bursts into one reload.
func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.store.Path() {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerCh = timer.C
			} else {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher: %v", err)
		case <-timerCh:
			timer = nil
			timerCh = nil
			w.reload()
		}
	}
}

// reload re-reads the file and notifies the callback.
func (w *Watcher) reload() {
	if err := w.store.Load(); err != nil {
		// Keep serving the last good config.
		logger.Warn("config reload failed: %v", err)
		return
	}
	logger.Info("configuration reloaded from %s", w.store.Path())
	if w.onChange != nil {
		w.onChange(w.store.Config())
	}
}
