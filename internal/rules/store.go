// Package rules owns the ordered categorization rule table and its YAML backing file.
package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/model"
)

var (
	// ErrInvalidRule is returned when a rule fails validation.
	ErrInvalidRule = errors.New("invalid rule")
	// ErrPersist is returned when a mutation was applied in memory but could not be written to disk.
	ErrPersist = errors.New("failed to persist rules")
)

// Patch describes a partial rule update. Nil fields are left unchanged.
type Patch struct {
	Keywords        *[]string
	Patterns        *[]string
	CategoryName    *string
	TransactionType *model.TransactionType
}

// Store holds the rule table. Reads use lock-free snapshots; mutations are serialized
// and rewrite the backing file before returning.
type Store struct {
	logger  *slog.Logger
	current atomic.Pointer[Snapshot]
	path    string
	mu      sync.Mutex
}

// NewStore creates a store backed by the YAML file at path. Call Load before use;
// until then the store is empty.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger}
	s.current.Store(newSnapshot(nil))
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the rules file and publishes its rules. A missing file is created from
// the defaults. A malformed file is left untouched and the defaults are used in memory.
// Load never fails; problems are logged.
func (s *Store) Load() []model.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		entries := mustCompileAll(DefaultRules())
		s.current.Store(newSnapshot(entries))
		if werr := s.persistLocked(entries); werr != nil {
			s.logger.Warn("could not write default rules", "path", s.path, "error", werr)
		} else {
			s.logger.Info("wrote default categorization rules", "path", s.path, "rules", len(entries))
		}
		return s.current.Load().Rules()
	case err != nil:
		s.logger.Warn("could not read rules file, using defaults", "path", s.path, "error", err)
		s.current.Store(newSnapshot(mustCompileAll(DefaultRules())))
		return s.current.Load().Rules()
	}

	decoded, skipped, err := decodeRules(data)
	if err != nil {
		s.logger.Warn("rules file is malformed, using defaults", "path", s.path, "error", err)
		s.current.Store(newSnapshot(mustCompileAll(DefaultRules())))
		return s.current.Load().Rules()
	}
	for _, sk := range skipped {
		s.logger.Warn("skipping malformed rule", "rule", sk.name, "error", sk.err)
	}

	entries := make([]Entry, 0, len(decoded))
	for _, r := range decoded {
		entry, errs := compileLenient(r)
		for _, e := range errs {
			s.logger.Warn("dropping invalid pattern", "rule", r.Name, "error", e)
		}
		if strings.TrimSpace(entry.Rule.CategoryName) == "" {
			s.logger.Warn("rule has no category and will never match", "rule", r.Name)
		}
		entries = append(entries, entry)
	}

	s.current.Store(newSnapshot(entries))
	s.logger.Debug("loaded categorization rules", "path", s.path, "rules", len(entries))
	return s.current.Load().Rules()
}

// Snapshot returns the current immutable rule table.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// List returns the rules in match order.
func (s *Store) List() []model.Rule {
	return s.Snapshot().Rules()
}

// Get returns the named rule or common.ErrNotFound.
func (s *Store) Get(name string) (model.Rule, error) {
	r, ok := s.Snapshot().Get(name)
	if !ok {
		return model.Rule{}, fmt.Errorf("rule %q: %w", name, common.ErrNotFound)
	}
	return r, nil
}

// Save replaces the whole table with rules and writes it out.
func (s *Store) Save(rules []model.Rule) error {
	entries := make([]Entry, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		entry, err := validated(r)
		if err != nil {
			return err
		}
		if seen[entry.Rule.Name] {
			return fmt.Errorf("%w: duplicate rule name %q", ErrInvalidRule, entry.Rule.Name)
		}
		seen[entry.Rule.Name] = true
		entries = append(entries, entry)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishLocked(entries)
}

// Upsert inserts the rule under name, or replaces the existing rule in place.
// New rules are appended and therefore match after every existing rule.
func (s *Store) Upsert(name string, rule model.Rule) error {
	rule.Name = name
	entry, err := validated(rule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	entries := append([]Entry(nil), cur.entries...)
	if i, ok := cur.index[entry.Rule.Name]; ok {
		entries[i] = entry
	} else {
		entries = append(entries, entry)
	}
	return s.publishLocked(entries)
}

// Update applies patch to the named rule and returns the result.
func (s *Store) Update(name string, patch Patch) (model.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	i, ok := cur.index[name]
	if !ok {
		return model.Rule{}, fmt.Errorf("rule %q: %w", name, common.ErrNotFound)
	}

	rule := cur.entries[i].Rule.Clone()
	if patch.Keywords != nil {
		rule.Keywords = append([]string(nil), (*patch.Keywords)...)
	}
	if patch.Patterns != nil {
		rule.Patterns = append([]string(nil), (*patch.Patterns)...)
	}
	if patch.CategoryName != nil {
		rule.CategoryName = *patch.CategoryName
	}
	if patch.TransactionType != nil {
		rule.TransactionType = *patch.TransactionType
	}

	entry, err := validated(rule)
	if err != nil {
		return model.Rule{}, err
	}

	entries := append([]Entry(nil), cur.entries...)
	entries[i] = entry
	if err := s.publishLocked(entries); err != nil {
		return entry.Rule.Clone(), err
	}
	return entry.Rule.Clone(), nil
}

// Remove deletes the named rule.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	i, ok := cur.index[name]
	if !ok {
		return fmt.Errorf("rule %q: %w", name, common.ErrNotFound)
	}

	entries := make([]Entry, 0, len(cur.entries)-1)
	entries = append(entries, cur.entries[:i]...)
	entries = append(entries, cur.entries[i+1:]...)
	return s.publishLocked(entries)
}

// publishLocked swaps in the new table and then persists it. The new table stays
// in effect even if the write fails. Caller must hold s.mu.
func (s *Store) publishLocked(entries []Entry) error {
	s.current.Store(newSnapshot(entries))
	if err := s.persistLocked(entries); err != nil {
		s.logger.Error("rules changed in memory but were not saved", "path", s.path, "error", err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (s *Store) persistLocked(entries []Entry) error {
	rules := make([]model.Rule, len(entries))
	for i, e := range entries {
		rules[i] = e.Rule
	}
	data, err := encodeRules(rules)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

// validated checks a rule supplied by a caller and compiles it.
func validated(rule model.Rule) (Entry, error) {
	if strings.TrimSpace(rule.Name) == "" {
		return Entry{}, fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.CategoryName) == "" {
		return Entry{}, fmt.Errorf("%w: rule %q needs a category name", ErrInvalidRule, rule.Name)
	}
	if rule.TransactionType != "" && !rule.TransactionType.Valid() {
		return Entry{}, fmt.Errorf("%w: rule %q has unknown transaction type %q", ErrInvalidRule, rule.Name, rule.TransactionType)
	}
	return compile(rule)
}

func mustCompileAll(rules []model.Rule) []Entry {
	entries := make([]Entry, 0, len(rules))
	for _, r := range rules {
		entry, err := compile(r)
		if err != nil {
			panic(fmt.Sprintf("default rule %q: %v", r.Name, err))
		}
		entries = append(entries, entry)
	}
	return entries
}
