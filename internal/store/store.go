package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ainotebook/internal/logging"
)

// Collection names, also used as JSON file stems.
const (
	UsersCollection      = "users"
	NotebooksCollection  = "notebooks"
	NotesCollection      = "notes"
	APIConfigsCollection = "api-configs"
	TagsCollection       = "tags"
)

// Drivers
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Options selects and locates the backend.
type Options struct {
	Driver     string
	DataDir    string
	SQLitePath string
}

// CachedFile is a JSON collection whose in-memory copy can be dropped when
// its file changes on disk. Invalidate reports whether the copy was dropped.
type CachedFile interface {
	Name() string
	Path() string
	Invalidate() bool
}

// Store bundles the application's collections. Tags always live in memory.
type Store struct {
	Users      Collection[User]
	Notebooks  Collection[Notebook]
	Notes      Collection[Note]
	APIConfigs Collection[APIConfig]
	Tags       Collection[Tag]

	driver string
	files  []CachedFile
	db     *SQLiteDB
}

// Open constructs the store for opts.Driver.
func Open(ctx context.Context, opts Options, logger *logging.Logger) (*Store, error) {
	s := &Store{
		driver: opts.Driver,
		Tags:   NewMemoryCollection(DefaultTags()),
	}

	switch opts.Driver {
	case DriverJSON, "":
		s.driver = DriverJSON
		if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		// users and api-configs are re-read on every call so edits by
		// other tools are picked up without a watcher
		users := NewFileCollection[User](UsersCollection, filepath.Join(opts.DataDir, "users.json"), false, nil, logger)
		notebooks := NewFileCollection(NotebooksCollection, filepath.Join(opts.DataDir, "notebooks.json"), true, DefaultNotebooks, logger)
		notes := NewFileCollection[Note](NotesCollection, filepath.Join(opts.DataDir, "notes.json"), true, nil, logger)
		configs := NewFileCollection[APIConfig](APIConfigsCollection, filepath.Join(opts.DataDir, "api-configs.json"), false, nil, logger)
		s.Users, s.Notebooks, s.Notes, s.APIConfigs = users, notebooks, notes, configs
		s.files = []CachedFile{notebooks, notes}

	case DriverSQLite:
		db, err := OpenSQLite(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.Users = NewSQLiteCollection[User](db, UsersCollection, nil)
		s.Notebooks = NewSQLiteCollection(db, NotebooksCollection, DefaultNotebooks)
		s.Notes = NewSQLiteCollection[Note](db, NotesCollection, nil)
		s.APIConfigs = NewSQLiteCollection[APIConfig](db, APIConfigsCollection, nil)

	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}

	logger.WithFields(map[string]interface{}{
		"driver":   s.driver,
		"data_dir": opts.DataDir,
	}).Info("record store ready")
	return s, nil
}

// Driver reports the active backend.
func (s *Store) Driver() string { return s.driver }

// CachedFiles lists the cached JSON collections, empty for other drivers.
func (s *Store) CachedFiles() []CachedFile { return s.files }

// Close releases the backend.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CopyCounts reports how many records CopyTo wrote per collection.
type CopyCounts map[string]int

// CopyTo replaces the persistent collections of dst with the contents of s.
// Tags are process-local and are not copied.
func (s *Store) CopyTo(ctx context.Context, dst *Store) (CopyCounts, error) {
	counts := CopyCounts{}
	if err := copyCollection(ctx, UsersCollection, s.Users, dst.Users, counts); err != nil {
		return counts, err
	}
	if err := copyCollection(ctx, NotebooksCollection, s.Notebooks, dst.Notebooks, counts); err != nil {
		return counts, err
	}
	if err := copyCollection(ctx, NotesCollection, s.Notes, dst.Notes, counts); err != nil {
		return counts, err
	}
	if err := copyCollection(ctx, APIConfigsCollection, s.APIConfigs, dst.APIConfigs, counts); err != nil {
		return counts, err
	}
	return counts, nil
}

func copyCollection[T Record](ctx context.Context, name string, src, dst Collection[T], counts CopyCounts) error {
	items, err := src.List(ctx)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := dst.ReplaceAll(ctx, items); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	counts[name] = len(items)
	return nil
}

// DefaultNotebooks is written when the notebooks collection is first created.
func DefaultNotebooks() []Notebook {
	now := Now()
	return []Notebook{{
		ID:          "1",
		Title:       "Default Notebook",
		Description: "System default notebook",
		Color:       "#1890ff",
		UserID:      "1",
		CreatedAt:   now,
		UpdatedAt:   now,
	}}
}

// DefaultTags are the shared tags every process starts with.
func DefaultTags() []Tag {
	now := Now()
	return []Tag{
		{ID: "1", Name: "work", CreatedAt: now},
		{ID: "2", Name: "study", CreatedAt: now},
		{ID: "3", Name: "life", CreatedAt: now},
	}
}
