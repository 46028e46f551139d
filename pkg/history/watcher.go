package history

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ImportWatcher watches a drop directory and bulk-imports any *.jsonl file
// that lands in it. Imported files are renamed with a .done suffix (or
// .failed when the import stopped early) so restarts do not re-import them.
type ImportWatcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
	settle  time.Duration
	stopCh  chan struct{}
	doneCh  chan struct{}

	settleMu     sync.Mutex
	settleTimers map[string]*time.Timer
}

// NewImportWatcher starts watching dir for dropped JSONL files
func NewImportWatcher(store *Store, dir string, logger zerolog.Logger) (*ImportWatcher, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	iw := &ImportWatcher{
		store:        store,
		watcher:      watcher,
		logger:       logger,
		settle:       500 * time.Millisecond,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		settleTimers: make(map[string]*time.Timer),
	}

	go iw.run()

	logger.Info().Str("dir", dir).Msg("Import watcher started")
	return iw, nil
}

// Stop stops the watcher and waits for the event loop to exit
func (iw *ImportWatcher) Stop() error {
	close(iw.stopCh)
	err := iw.watcher.Close()
	<-iw.doneCh

	iw.settleMu.Lock()
	for _, timer := range iw.settleTimers {
		timer.Stop()
	}
	clear(iw.settleTimers)
	iw.settleMu.Unlock()

	return err
}

func (iw *ImportWatcher) run() {
	defer close(iw.doneCh)

	for {
		select {
		case event, ok := <-iw.watcher.Events:
			if !ok {
				return
			}

			if !strings.HasSuffix(strings.ToLower(event.Name), ".jsonl") {
				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				iw.scheduleImport(event.Name)
			}

		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
			iw.logger.Error().Err(err).Msg("Import watcher error")

		case <-iw.stopCh:
			return
		}
	}
}

// scheduleImport debounces per path: a producer writing the file in chunks
// resets the settle timer on every write, so the import runs once, after
// the file has been quiet for the settle window.
func (iw *ImportWatcher) scheduleImport(path string) {
	iw.settleMu.Lock()
	defer iw.settleMu.Unlock()

	if timer, ok := iw.settleTimers[path]; ok {
		timer.Reset(iw.settle)
		return
	}

	iw.settleTimers[path] = time.AfterFunc(iw.settle, func() {
		iw.settleMu.Lock()
		delete(iw.settleTimers, path)
		iw.settleMu.Unlock()

		select {
		case <-iw.stopCh:
			return
		default:
			iw.importFile(path)
		}
	})
}

func (iw *ImportWatcher) importFile(path string) {
	// Claim the file by renaming it first. A late write event can arm a
	// fresh timer after this import started; the rename makes that second
	// attempt fail to claim and back off.
	claimed := path + ".importing"
	if err := os.Rename(path, claimed); err != nil {
		return
	}

	count, err := iw.store.ImportJSONL(context.Background(), claimed)
	if err != nil {
		iw.logger.Error().
			Str("file", filepath.Base(path)).
			Int("imported", count).
			Err(err).
			Msg("Drop import stopped early")
		_ = os.Rename(claimed, path+".failed")
		return
	}

	iw.logger.Info().
		Str("file", filepath.Base(path)).
		Int("imported", count).
		Msg("Drop import completed")
	_ = os.Rename(claimed, path+".done")
}
