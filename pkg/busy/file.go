package busy

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"emperror.dev/errors"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// FileGuard reports busy while a lock file exists, so that another process can gate
// monitoring controls by creating and removing it.
type FileGuard struct {
	path string
	busy atomic.Bool
}

func NewFileGuard(path string) (*FileGuard, error) {
	if path == "" {
		return nil, errors.New("busy file path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.WrapIf(err, "resolving busy file path")
	}
	if _, err := os.Stat(filepath.Dir(abs)); err != nil {
		return nil, errors.WrapIf(err, "busy file directory does not exist")
	}

	g := &FileGuard{path: abs}
	g.refresh()
	return g, nil
}

func (g *FileGuard) Path() string {
	return g.path
}

func (g *FileGuard) Busy() bool {
	return g.busy.Load()
}

func (g *FileGuard) refresh() bool {
	_, err := os.Stat(g.path)
	busy := err == nil
	return g.busy.Swap(busy) != busy
}

// Watch follows changes to the lock file until ctx is cancelled. The parent directory is
// watched so that creation and removal are both observed.
func (g *FileGuard) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(g.path)); err != nil {
		return err
	}
	// catch up with anything that happened before the watch was armed
	g.refresh()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("could not retrieve event")
			}
			if filepath.Clean(event.Name) != g.path {
				continue
			}
			if g.refresh() {
				log.WithFields(log.Fields{
					"path": g.path,
					"busy": g.Busy(),
				}).Info("busy state changed")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("could not retrieve error")
			}
			return err
		}
	}
}
