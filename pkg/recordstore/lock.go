package recordstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// lockMode distinguishes shared (read) from exclusive (write) acquisition.
type lockMode int

const (
	lockShared lockMode = iota
	lockExclusive
)

func (m lockMode) String() string {
	if m == lockShared {
		return "shared"
	}
	return "exclusive"
}

// acquire takes the advisory lock on the sidecar lock file, blocking until it
// is held, the configured timeout elapses, or ctx is done. The returned
// release function unlocks and closes the underlying handle.
//
// The sidecar is locked instead of the document because Write replaces the
// document inode via rename; a lock pinned to the old inode would no longer
// exclude the next writer.
func (s *Store) acquire(ctx context.Context, mode lockMode) (release func(), err error) {
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	fl := flock.New(s.lockPath)
	start := time.Now()

	var locked bool
	if mode == lockExclusive {
		locked, err = fl.TryLockContext(ctx, defaultLockRetry)
	} else {
		locked, err = fl.TryRLockContext(ctx, defaultLockRetry)
	}

	wait := time.Since(start)
	s.metrics.ObserveLockWait(s.label, mode.String(), wait)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %s lock on %s after %s", ErrLockTimeout, mode, s.path, wait.Round(time.Millisecond))
		}
		return nil, storageErr("lock", s.lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s lock on %s", ErrLockTimeout, mode, s.path)
	}

	return func() {
		// Unlock also closes the lock file handle.
		_ = fl.Unlock()
	}, nil
}
