package recordstore

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reports when the document is rewritten by another process, so a
// long-lived reader (e.g. a dashboard) can invalidate a cached Read instead
// of polling.
//
// Notifications are coalesced: the channel has capacity one and a pending
// notification absorbs further events until drained. The channel closes when
// ctx is done.
//
// The watch is placed on the document's directory rather than the file
// itself, because atomic writes rename a new inode over the path and a
// file-level watch would die with the old inode.
func (s *Store) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, storageErr("watch", s.path, err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return nil, storageErr("watch", filepath.Dir(s.path), err)
	}

	ch := make(chan struct{}, 1)

	go func() {
		defer close(ch)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != s.label {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case ch <- struct{}{}:
				default: // notification already pending
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("document watch error",
					zap.String("path", s.path),
					zap.Error(err))
			}
		}
	}()

	return ch, nil
}
