package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store owns one JSON document on disk and serializes access to it with an
// OS advisory lock. Construct with Open and share the instance explicitly;
// there is no package-level singleton.
type Store struct {
	path     string
	lockPath string
	label    string

	defaultDoc    json.RawMessage
	policy        CorruptPolicy
	corruptBackup bool
	lockTimeout   time.Duration
	fileMode      os.FileMode
	logger        *zap.Logger
	metrics       *Metrics

	// idMu guards same-process identifier assignment so two appends in the
	// same wall-clock second never collide.
	idMu       sync.Mutex
	idSecond   string
	idSequence int
}

// Open prepares a store for the document at path. Parent directories are
// created if missing, and defaultDoc is materialized if the file is absent.
// Existing file contents are not validated at open time.
func Open(path string, defaultDoc any, opts ...Option) (*Store, error) {
	raw, err := marshalDocument(defaultDoc)
	if err != nil {
		return nil, storageErr("encode default", path, err)
	}

	s := &Store{
		path:          path,
		lockPath:      path + ".lock",
		label:         filepath.Base(path),
		defaultDoc:    raw,
		policy:        CorruptReset,
		corruptBackup: defaultCorruptBackup,
		lockTimeout:   defaultLockTimeout,
		fileMode:      defaultFileMode,
		logger:        zap.NewNop(),
		metrics:       NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, storageErr("mkdir", filepath.Dir(path), err)
	}

	// Materialize the default under the exclusive lock so two processes
	// opening the same path concurrently produce exactly one default write.
	release, err := s.acquire(context.Background(), lockExclusive)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, storageErr("stat", path, err)
		}
		if err := s.writeLocked(raw); err != nil {
			return nil, err
		}
		s.logger.Debug("materialized default document", zap.String("path", path))
	}

	return s, nil
}

// Path returns the document's filesystem path.
func (s *Store) Path() string {
	return s.path
}

// Read acquires a shared lock, reads the full document, and decodes it into
// v. An empty or invalid file yields the default document under CorruptReset,
// or ErrCorruptDocument under CorruptFail. A reset also writes the default
// back, so the next read finds a valid document.
func (s *Store) Read(ctx context.Context, v any) error {
	release, err := s.acquire(ctx, lockShared)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(s.path)
	release()
	if err != nil {
		if os.IsNotExist(err) {
			// Deleted out-of-band; treat like an empty file.
			data = nil
		} else {
			s.metrics.RecordRead(s.label, readError)
			return storageErr("read", s.path, err)
		}
	}

	return s.decode(ctx, data, v)
}

// decode applies the empty-file and corrupt-file policies around unmarshal.
func (s *Store) decode(ctx context.Context, data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		s.metrics.RecordRead(s.label, readDefault)
		return json.Unmarshal(s.defaultDoc, v)
	}
	if err := json.Unmarshal(data, v); err != nil {
		// Valid JSON that does not fit v is a caller-side type mismatch,
		// not corruption; resetting would discard a healthy document.
		if json.Valid(data) {
			s.metrics.RecordRead(s.label, readError)
			return storageErr("decode", s.path, err)
		}
		if s.policy == CorruptFail {
			return s.recoverCorrupt(data, err, v)
		}
		return s.resetCorrupt(ctx, data, err, v)
	}
	s.metrics.RecordRead(s.label, readOK)
	return nil
}

// resetCorrupt heals an invalid document found by Read. Recovery without a
// write would leave the corrupt bytes on disk, and every later read would
// back them up and reset again, so the default document is written back
// under the exclusive lock. The file is re-read first because another
// process may have replaced it after the shared lock was released.
func (s *Store) resetCorrupt(ctx context.Context, data []byte, cause error, v any) error {
	release, err := s.acquire(ctx, lockExclusive)
	if err != nil {
		return err
	}
	defer release()

	current, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		s.metrics.RecordRead(s.label, readError)
		return storageErr("read", s.path, err)
	}
	if !bytes.Equal(current, data) {
		if len(bytes.TrimSpace(current)) == 0 {
			s.metrics.RecordRead(s.label, readDefault)
			return json.Unmarshal(s.defaultDoc, v)
		}
		jsonErr := json.Unmarshal(current, v)
		if jsonErr == nil {
			s.metrics.RecordRead(s.label, readOK)
			return nil
		}
		if json.Valid(current) {
			s.metrics.RecordRead(s.label, readError)
			return storageErr("decode", s.path, jsonErr)
		}
		data, cause = current, jsonErr
	}

	if err := s.recoverCorrupt(data, cause, v); err != nil {
		return err
	}
	return s.writeLocked(s.defaultDoc)
}

// recoverCorrupt handles invalid JSON per the configured policy.
func (s *Store) recoverCorrupt(data []byte, cause error, v any) error {
	if s.policy == CorruptFail {
		s.metrics.RecordRead(s.label, readError)
		return fmt.Errorf("%w: %s: %v", ErrCorruptDocument, s.path, cause)
	}

	if s.corruptBackup {
		backup := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
		if err := os.WriteFile(backup, data, s.fileMode); err != nil {
			s.logger.Warn("failed to back up corrupt document",
				zap.String("path", s.path),
				zap.Error(err))
		} else {
			s.logger.Warn("corrupt document reset to default",
				zap.String("path", s.path),
				zap.String("backup", backup),
				zap.NamedError("cause", cause))
		}
	} else {
		s.logger.Warn("corrupt document reset to default",
			zap.String("path", s.path),
			zap.NamedError("cause", cause))
	}

	s.metrics.RecordRead(s.label, readCorruptReset)
	return json.Unmarshal(s.defaultDoc, v)
}

// Write acquires the exclusive lock and replaces the whole document with the
// JSON encoding of v. The content lands via temp-file-and-rename, so a crash
// mid-write never exposes a truncated document to readers.
func (s *Store) Write(ctx context.Context, v any) error {
	raw, err := marshalDocument(v)
	if err != nil {
		return storageErr("encode", s.path, err)
	}

	release, err := s.acquire(ctx, lockExclusive)
	if err != nil {
		return err
	}
	defer release()

	return s.writeLocked(raw)
}

// writeLocked performs the atomic replace. Callers hold the exclusive lock.
func (s *Store) writeLocked(raw []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+s.label+".*.tmp")
	if err != nil {
		return storageErr("create temp", dir, err)
	}
	tmpName := tmp.Name()

	cleanup := func(op string, cause error) error {
		tmp.Close()
		os.Remove(tmpName)
		return storageErr(op, s.path, cause)
	}

	if _, err := tmp.Write(raw); err != nil {
		return cleanup("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup("sync", err)
	}
	if err := tmp.Chmod(s.fileMode); err != nil {
		return cleanup("chmod", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return storageErr("close", s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return storageErr("rename", s.path, err)
	}

	s.metrics.RecordWrite(s.label, len(raw))
	s.logger.Debug("document written",
		zap.String("path", s.path),
		zap.Int("bytes", len(raw)))
	return nil
}

// readListLocked loads the document as a record list. Callers hold the
// exclusive lock. Empty and (under CorruptReset) invalid files fall back to
// the default document, and a non-list default falls back to an empty list.
func (s *Store) readListLocked() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return nil, storageErr("read", s.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return s.defaultList(), nil
	}

	var records []Record
	if jsonErr := json.Unmarshal(data, &records); jsonErr != nil {
		// Valid JSON of the wrong shape is a caller bug, not corruption.
		if json.Valid(data) {
			return nil, fmt.Errorf("%w: %s", ErrNotAList, s.path)
		}
		var discard any
		if err := s.recoverCorrupt(data, jsonErr, &discard); err != nil {
			return nil, err
		}
		return s.defaultList(), nil
	}
	return records, nil
}

// defaultList decodes the default document as a record list, or an empty
// list when the default has another shape.
func (s *Store) defaultList() []Record {
	var records []Record
	if err := json.Unmarshal(s.defaultDoc, &records); err != nil || records == nil {
		return []Record{}
	}
	return records
}

// AppendRecord appends rec to the document's record list, assigning an
// identifier and creation timestamp if absent, and FIFO-trims the list to the
// most recent maxRecords entries (maxRecords <= 0 means unbounded). The read,
// mutate, and write all happen under a single exclusive lock acquisition, so
// concurrent appends from cooperating processes cannot lose updates.
//
// Returns the record's identifier. The caller's map is not modified.
func (s *Store) AppendRecord(ctx context.Context, rec Record, maxRecords int) (string, error) {
	release, err := s.acquire(ctx, lockExclusive)
	if err != nil {
		return "", err
	}
	defer release()

	records, err := s.readListLocked()
	if err != nil {
		return "", err
	}

	stamped := rec.clone()
	id := stamped.ID()
	if id == "" {
		id = s.nextID(time.Now().UTC())
		stamped[FieldID] = id
	}
	if _, ok := stamped[FieldCreatedAt]; !ok {
		stamped[FieldCreatedAt] = time.Now().UTC().Format(time.RFC3339)
	}

	records = append(records, stamped)
	if maxRecords > 0 && len(records) > maxRecords {
		records = records[len(records)-maxRecords:]
	}

	raw, err := marshalDocument(records)
	if err != nil {
		return "", storageErr("encode", s.path, err)
	}
	if err := s.writeLocked(raw); err != nil {
		return "", err
	}

	s.metrics.RecordAppend(s.label)
	return id, nil
}

// PruneOldest drops records from the front of the list until at most keep
// remain, returning the number dropped. A no-op when the list already fits.
func (s *Store) PruneOldest(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	release, err := s.acquire(ctx, lockExclusive)
	if err != nil {
		return 0, err
	}
	defer release()

	records, err := s.readListLocked()
	if err != nil {
		return 0, err
	}
	if len(records) <= keep {
		return 0, nil
	}

	dropped := len(records) - keep
	records = records[dropped:]

	raw, err := marshalDocument(records)
	if err != nil {
		return 0, storageErr("encode", s.path, err)
	}
	if err := s.writeLocked(raw); err != nil {
		return 0, err
	}

	s.logger.Debug("pruned records",
		zap.String("path", s.path),
		zap.Int("dropped", dropped),
		zap.Int("kept", keep))
	return dropped, nil
}

// marshalDocument encodes v as human-readable JSON: 2-space indent, trailing
// newline, non-ASCII and HTML characters left unescaped.
func marshalDocument(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
