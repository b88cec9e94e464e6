// Package mappings persists the name tables used by the resolver: curated
// static mappings and mappings learned at runtime. Both live in one JSON
// document that is fully rewritten on every save.
package mappings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dayuer/charbot-go/internal/textnorm"
)

// Source tells where a mapping came from.
type Source string

const (
	SourceLocal    Source = "local"
	SourceLearned  Source = "learned"
	SourceExternal Source = "external"
)

// Entry is the value side of a mapping.
type Entry struct {
	DisplayName string  `json:"displayName"`
	Confidence  float64 `json:"confidence"`
	Source      Source  `json:"source"`
}

// Document is the on-disk format.
type Document struct {
	StaticMappings  map[string]Entry `json:"staticMappings"`
	LearnedMappings map[string]Entry `json:"learnedMappings"`
	LastUpdated     time.Time        `json:"lastUpdated"`
}

// Store holds both tables in memory and writes them back to path.
type Store struct {
	path   string
	logger *zap.Logger

	mu          sync.RWMutex
	static      map[string]Entry
	learned     map[string]Entry
	lastUpdated time.Time

	saveMu  sync.Mutex
	pending sync.WaitGroup
	modTime time.Time // of the file as last read or written by us
}

// NewStore creates an empty store bound to path. Call Load to read it.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:    path,
		logger:  logger.Named("mappings"),
		static:  make(map[string]Entry),
		learned: make(map[string]Entry),
	}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load replaces the in-memory tables with the file contents. A missing file
// is not an error. On any failure the store is left empty and the error is
// returned for logging; it is never fatal.
func (s *Store) Load() error {
	static, learned, updated, err := s.read()
	if err != nil {
		s.logger.Error("load failed, starting with empty mappings", zap.String("path", s.path), zap.Error(err))
		static, learned, updated = make(map[string]Entry), make(map[string]Entry), time.Time{}
	}
	s.swap(static, learned, updated)
	return err
}

// read parses the backing file without touching the store.
func (s *Store) read() (static, learned map[string]Entry, updated time.Time, err error) {
	static = make(map[string]Entry)
	learned = make(map[string]Entry)

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return static, learned, updated, nil
	}
	if err != nil {
		return nil, nil, updated, fmt.Errorf("read mappings: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, updated, fmt.Errorf("parse mappings: %w", err)
	}
	for k, v := range doc.StaticMappings {
		v.Source = SourceLocal
		if v.Confidence == 0 {
			v.Confidence = 1.0
		}
		static[textnorm.Normalize(k)] = v
	}
	for k, v := range doc.LearnedMappings {
		v.Source = SourceLearned
		learned[textnorm.Normalize(k)] = v
	}
	return static, learned, doc.LastUpdated, nil
}

func (s *Store) swap(static, learned map[string]Entry, updated time.Time) {
	s.mu.Lock()
	s.static = static
	s.learned = learned
	s.lastUpdated = updated
	s.modTime = s.statModTime()
	s.mu.Unlock()

	s.logger.Info("mappings loaded", zap.Int("static", len(static)), zap.Int("learned", len(learned)))
}

// Lookup finds surface in the static table first, then the learned one.
func (s *Store) Lookup(surface string) (Entry, bool) {
	key := textnorm.Normalize(surface)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.static[key]; ok {
		e.Source = SourceLocal
		e.Confidence = 1.0
		return e, true
	}
	if e, ok := s.learned[key]; ok {
		e.Source = SourceLearned
		return e, true
	}
	return Entry{}, false
}

// PutStatic adds or replaces a curated mapping.
func (s *Store) PutStatic(surface, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.static[textnorm.Normalize(surface)] = Entry{DisplayName: displayName, Confidence: 1.0, Source: SourceLocal}
}

// RemoveStatic deletes a curated mapping. It reports whether one existed.
func (s *Store) RemoveStatic(surface string) bool {
	key := textnorm.Normalize(surface)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.static[key]
	delete(s.static, key)
	return ok
}

// Learn records an externally resolved mapping. Static entries always win,
// so learning a key that is curated is a no-op and returns false.
func (s *Store) Learn(surface string, e Entry) bool {
	key := textnorm.Normalize(surface)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.static[key]; ok {
		return false
	}
	e.Source = SourceLearned
	s.learned[key] = e
	return true
}

// Counts returns the number of static and learned mappings.
func (s *Store) Counts() (static, learned int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.static), len(s.learned)
}

// Snapshot returns a copy of the current document.
func (s *Store) Snapshot() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := Document{
		StaticMappings:  make(map[string]Entry, len(s.static)),
		LearnedMappings: make(map[string]Entry, len(s.learned)),
		LastUpdated:     s.lastUpdated,
	}
	for k, v := range s.static {
		doc.StaticMappings[k] = v
	}
	for k, v := range s.learned {
		doc.LearnedMappings[k] = v
	}
	return doc
}

// Save rewrites the whole document. The file is written to a temporary
// sibling and renamed into place, so a failed save leaves the previous file
// untouched.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	now := time.Now().UTC()
	s.mu.Lock()
	s.lastUpdated = now
	s.mu.Unlock()
	doc := s.Snapshot()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mappings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create mappings dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".mappings-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write mappings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close mappings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace mappings: %w", err)
	}
	s.mu.Lock()
	s.modTime = s.statModTime()
	s.mu.Unlock()
	return nil
}

// Reload loads the file again if someone other than this store changed it
// since the last Load or Save. It reports whether a load happened. A file
// that cannot be read or parsed leaves the current tables in place.
func (s *Store) Reload() (bool, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	known := s.modTime
	s.mu.RUnlock()
	if mt := s.statModTime(); mt.Equal(known) {
		return false, nil
	}
	static, learned, updated, err := s.read()
	if err != nil {
		return false, err
	}
	s.swap(static, learned, updated)
	return true, nil
}

func (s *Store) statModTime() time.Time {
	fi, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

// SaveAsync persists in the background. Failures are logged only.
func (s *Store) SaveAsync() {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.Save(); err != nil {
			s.logger.Warn("async save failed", zap.String("path", s.path), zap.Error(err))
		}
	}()
}

// Wait blocks until every SaveAsync started so far has finished.
func (s *Store) Wait() {
	s.pending.Wait()
}
