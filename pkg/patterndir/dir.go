package patterndir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternstore/pkg/recordstore"
)

// Errors for directory operations.
var (
	ErrInvalidName   = errors.New("invalid store name: must be alphanumeric with hyphens/underscores")
	ErrPathTraversal = errors.New("path traversal detected")
	ErrReservedName  = errors.New("store name is reserved")
)

// namePattern validates store names. Allows alphanumeric, hyphens,
// underscores, and dots.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// manifestName is the bookkeeping document the Dir keeps for itself.
const manifestName = "manifest"

// Entry describes one store registered in the directory manifest.
type Entry struct {
	UUID      string    `json:"uuid"`
	Name      string    `json:"name"`
	File      string    `json:"file"`
	CreatedAt time.Time `json:"created_at"`
}

// manifest is the persisted shape of manifest.json.
type manifest struct {
	Version  int              `json:"version"`
	Stores   map[string]Entry `json:"stores"`
	Metadata map[string]any   `json:"metadata"`
}

func defaultManifest() manifest {
	return manifest{
		Version:  1,
		Stores:   map[string]Entry{},
		Metadata: map[string]any{},
	}
}

// Dir owns one pattern directory and hands out stores inside it.
// Construct with Open and pass the instance to whatever needs it.
type Dir struct {
	base   string
	cfg    *Config
	logger *zap.Logger
	man    *recordstore.Store

	mu     sync.Mutex
	opened map[string]*recordstore.Store
}

// DirOption configures a Dir at Open time.
type DirOption func(*Dir)

// WithLogger sets the logger for the directory and every store it opens.
// Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) DirOption {
	return func(d *Dir) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Open prepares the pattern directory at base, creating it (0700) if absent,
// loading its configuration, and loading or creating the manifest.
func Open(base string, opts ...DirOption) (*Dir, error) {
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".claude-patterns")
	}

	if err := os.MkdirAll(base, 0700); err != nil {
		return nil, fmt.Errorf("failed to create pattern directory: %w", err)
	}

	cfg, err := LoadConfig(base)
	if err != nil {
		return nil, err
	}

	d := &Dir{
		base:   base,
		cfg:    cfg,
		logger: zap.NewNop(),
		opened: map[string]*recordstore.Store{},
	}
	for _, opt := range opts {
		opt(d)
	}

	manOpts := []recordstore.Option{
		recordstore.WithLogger(d.logger.Named("manifest")),
		recordstore.WithLockTimeout(cfg.LockTimeout),
	}
	if !cfg.CorruptBackup {
		manOpts = append(manOpts, recordstore.WithoutCorruptBackup())
	}
	man, err := recordstore.Open(
		filepath.Join(base, manifestName+".json"),
		defaultManifest(),
		manOpts...,
	)
	if err != nil {
		return nil, err
	}
	d.man = man

	d.logger.Debug("pattern directory opened",
		zap.String("base", base),
		zap.String("corrupt_policy", cfg.CorruptPolicy),
		zap.Duration("lock_timeout", cfg.LockTimeout))
	return d, nil
}

// Base returns the directory path.
func (d *Dir) Base() string {
	return d.base
}

// Config returns the effective directory configuration.
func (d *Dir) Config() *Config {
	return d.cfg
}

// ValidateName checks if a store name is safe for filesystem paths.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > 255 {
		return fmt.Errorf("%w: name too long (max 255)", ErrInvalidName)
	}
	if !namePattern.MatchString(name) {
		return ErrInvalidName
	}

	if name == "." || name == ".." {
		return ErrPathTraversal
	}
	for _, c := range name {
		if c == '/' || c == '\\' || c == '\x00' {
			return ErrPathTraversal
		}
	}
	if filepath.Clean(name) != name {
		return ErrPathTraversal
	}

	if name == manifestName || name == "config" {
		return ErrReservedName
	}
	return nil
}

// Store opens the named document ("quality_history" -> quality_history.json)
// with this directory's defaults, registering it in the manifest on first
// use. Repeat calls return the same instance.
func (d *Dir) Store(ctx context.Context, name string, defaultDoc any) (*recordstore.Store, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.opened[name]; ok {
		return s, nil
	}

	opts := []recordstore.Option{
		recordstore.WithLogger(d.logger.Named(name)),
		recordstore.WithCorruptPolicy(d.cfg.policyFor(name)),
		recordstore.WithLockTimeout(d.cfg.lockTimeoutFor(name)),
	}
	if !d.cfg.CorruptBackup {
		opts = append(opts, recordstore.WithoutCorruptBackup())
	}
	s, err := recordstore.Open(filepath.Join(d.base, name+".json"), defaultDoc, opts...)
	if err != nil {
		return nil, err
	}

	if err := d.register(ctx, name); err != nil {
		return nil, err
	}

	d.opened[name] = s
	return s, nil
}

// register adds a manifest entry for name if one does not exist yet and
// bumps the registration counter.
func (d *Dir) register(ctx context.Context, name string) error {
	var m manifest
	if err := d.man.Read(ctx, &m); err != nil {
		return err
	}
	if m.Stores == nil {
		m.Stores = map[string]Entry{}
	}
	if _, ok := m.Stores[name]; ok {
		return nil
	}

	m.Stores[name] = Entry{
		UUID:      uuid.New().String(),
		Name:      name,
		File:      name + ".json",
		CreatedAt: time.Now().UTC(),
	}
	if err := d.man.Write(ctx, m); err != nil {
		return err
	}
	if err := d.man.UpdateCounters(ctx, "metadata", map[string]float64{
		"store_registrations": 1,
	}); err != nil {
		return err
	}

	d.logger.Info("store registered",
		zap.String("name", name),
		zap.String("uuid", m.Stores[name].UUID))
	return nil
}

// Stores returns the manifest entries sorted by name.
func (d *Dir) Stores(ctx context.Context) ([]Entry, error) {
	var m manifest
	if err := d.man.Read(ctx, &m); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(m.Stores))
	for _, e := range m.Stores {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
