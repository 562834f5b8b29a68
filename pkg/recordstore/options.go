package recordstore

import (
	"os"
	"time"

	"go.uber.org/zap"
)

// CorruptPolicy controls what Read does when the document holds invalid JSON.
type CorruptPolicy int

const (
	// CorruptReset treats invalid JSON as "start over": Read yields the
	// default document. The bad bytes are preserved in a sidecar backup
	// before being abandoned, and a warning is logged. This mirrors the
	// historical tracker behavior and is the default.
	CorruptReset CorruptPolicy = iota

	// CorruptFail makes Read return ErrCorruptDocument instead of
	// silently discarding history.
	CorruptFail
)

const (
	defaultLockTimeout   = 10 * time.Second
	defaultLockRetry     = 10 * time.Millisecond
	defaultFileMode      = os.FileMode(0600)
	defaultDirMode       = os.FileMode(0700)
	defaultCorruptBackup = true
)

// Option configures a Store at Open time.
type Option func(*Store)

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCorruptPolicy sets the invalid-JSON handling policy.
func WithCorruptPolicy(p CorruptPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithLockTimeout bounds advisory lock acquisition. Zero or negative means
// wait until the caller's context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithFileMode sets the permission bits for the document file.
// Defaults to 0600.
func WithFileMode(mode os.FileMode) Option {
	return func(s *Store) { s.fileMode = mode }
}

// WithoutCorruptBackup disables the sidecar backup written before a
// CorruptReset recovery discards invalid content.
func WithoutCorruptBackup() Option {
	return func(s *Store) { s.corruptBackup = false }
}
