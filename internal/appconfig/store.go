package appconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/starford/shiba/internal/apperr"
	"github.com/starford/shiba/internal/checksum"
	"github.com/starford/shiba/internal/storage"
)

// Status describes how a load obtained its document.
type Status struct {
	Path     string // file read or written
	Created  bool   // default document was written
	Valid    bool   // no schema repair was needed
	Checksum string // SHA-256 of the bytes read or written
}

// Store is the process-wide configuration service. Callers hold the Store
// and ask it for the current document; documents are never mutated after
// publication, a reload swaps in a new one.
type Store struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex // serializes loads
	current atomic.Pointer[Document]
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store whose first-time load reads from dir.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Dir returns the directory used by Get.
func (s *Store) Dir() string {
	return s.dir
}

// Current returns the cached document, if any has been loaded.
func (s *Store) Current() (*Document, bool) {
	doc := s.current.Load()
	return doc, doc != nil
}

// Get returns the cached document, loading it from the store directory the
// first time.
func (s *Store) Get() *Document {
	if doc := s.current.Load(); doc != nil {
		return doc
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc := s.current.Load(); doc != nil {
		return doc
	}
	doc, _ := s.loadOrCreateLocked(s.dir)
	return doc
}

// LoadOrCreate reads the document from dir, bypassing the cache. A missing
// or unparsable file is replaced with the default document. The result is
// cached and always usable.
func (s *Store) LoadOrCreate(dir string) (*Document, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadOrCreateLocked(dir)
}

// Reload re-reads the document from dir for a file watcher. Unlike
// LoadOrCreate it never writes: when no known file parses, for instance
// while an editor has truncated it mid-save, the cached document is kept
// and an error wrapping apperr.ErrConfigUnusable is returned. The returned
// document is then the previous one, or nil if nothing was loaded yet.
func (s *Store) Reload(dir string) (*Document, Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Path: filepath.Join(dir, FileName)}
	fs, err := storage.NewFS(dir)
	if err != nil {
		return s.current.Load(), st, fmt.Errorf("config: reload %s: %w", dir, err)
	}
	doc, loadSt, ok := s.read(fs)
	if !ok {
		return s.current.Load(), st, fmt.Errorf("config: reload %s: %w", dir, apperr.ErrConfigUnusable)
	}
	doc.dir = dir
	s.current.Store(doc)
	return doc, loadSt, nil
}

func (s *Store) loadOrCreateLocked(dir string) (*Document, Status) {
	var doc *Document
	var st Status

	fs, err := storage.NewFS(dir)
	if err != nil {
		s.logger.Error("config: data dir unavailable, using defaults",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		doc = DefaultDocument()
		st = Status{Path: filepath.Join(dir, FileName), Valid: true}
	} else if loaded, loadSt, ok := s.read(fs); ok {
		doc, st = loaded, loadSt
	} else {
		doc, st = s.create(fs)
	}

	doc.dir = dir
	s.current.Store(doc)
	return doc, st
}

// read tries each known file name in order.
func (s *Store) read(fs storage.Provider) (*Document, Status, bool) {
	for _, name := range FileNames {
		data, err := fs.Read(name)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("config: read failed", slog.String("file", name), slog.String("error", err.Error()))
			}
			continue
		}
		doc, err := parse(data)
		if err != nil {
			s.logger.Warn("config: parse failed", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}

		path := filepath.Join(fs.Root(), name)
		doc, valid := ValidateAndMigrate(doc, s.logger)
		if !valid {
			s.logger.Warn("config: invalid configuration detected; recreate it by moving "+name+
				" aside, restarting, and merging your old settings into the new file",
				slog.String("path", path))
		}
		s.logger.Debug("config: loaded", slog.String("path", path))
		return doc, Status{Path: path, Valid: valid, Checksum: checksum.Sum(data)}, true
	}
	return nil, Status{}, false
}

func (s *Store) create(fs storage.Provider) (*Document, Status) {
	doc := DefaultDocument()
	path := filepath.Join(fs.Root(), FileName)
	st := Status{Path: path, Valid: true}

	data, err := yaml.Marshal(doc)
	if err != nil {
		s.logger.Error("config: encode default failed", slog.String("error", err.Error()))
		return doc, st
	}
	if err := fs.Write(FileName, data); err != nil {
		s.logger.Error("config: write default failed", slog.String("path", path), slog.String("error", err.Error()))
		return doc, st
	}
	s.logger.Info("config: new configuration file created", slog.String("path", path))
	st.Created = true
	st.Checksum = checksum.Sum(data)
	return doc, st
}

func parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 {
		return nil, fmt.Errorf("appconfig: empty document")
	}
	doc := NewDocument()
	if err := doc.UnmarshalYAML(&root); err != nil {
		return nil, err
	}
	return doc, nil
}
