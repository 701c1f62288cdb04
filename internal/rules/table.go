package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/finhelper/internal/model"
)

// Entry is a rule with its matchers prepared. Rule keeps the text as it was written;
// keywords holds the lowercased keywords and patterns only the patterns that compiled.
type Entry struct {
	keywords []string
	patterns []*regexp.Regexp
	Rule     model.Rule
}

// Matches reports whether the normalized text hits any keyword or pattern of the rule.
// Keywords are tried first, then patterns, each in declared order.
func (e Entry) Matches(text string) bool {
	if text == "" {
		return false
	}
	for _, kw := range e.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	for _, re := range e.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Snapshot is an immutable, ordered view of the rule table.
type Snapshot struct {
	index   map[string]int
	entries []Entry
}

// Entries returns the compiled rules in match order. Callers must not modify the slice.
func (s *Snapshot) Entries() []Entry {
	if s == nil {
		return nil
	}
	return s.entries
}

// Len returns the number of rules.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Rules returns copies of the rules in order.
func (s *Snapshot) Rules() []model.Rule {
	if s == nil {
		return nil
	}
	out := make([]model.Rule, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Rule.Clone()
	}
	return out
}

// Get returns the named rule.
func (s *Snapshot) Get(name string) (model.Rule, bool) {
	if s == nil {
		return model.Rule{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return model.Rule{}, false
	}
	return s.entries[i].Rule.Clone(), true
}

// NewSnapshot compiles rules into a standalone snapshot. Rules are validated the same
// way Upsert validates them.
func NewSnapshot(rules []model.Rule) (*Snapshot, error) {
	entries := make([]Entry, 0, len(rules))
	for _, r := range rules {
		e, err := validated(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return newSnapshot(entries), nil
}

// Static is a RuleSource over a fixed snapshot.
type Static struct {
	S *Snapshot
}

// Snapshot returns the fixed snapshot.
func (s Static) Snapshot() *Snapshot {
	return s.S
}

// newSnapshot builds a snapshot from already-validated entries.
func newSnapshot(entries []Entry) *Snapshot {
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.Rule.Name] = i
	}
	return &Snapshot{entries: entries, index: index}
}

// compile normalizes a rule and compiles its patterns. Invalid patterns are an error.
func compile(rule model.Rule) (Entry, error) {
	rule = normalize(rule)
	entry := Entry{
		Rule:     rule,
		keywords: matchKeywords(rule.Keywords),
		patterns: make([]*regexp.Regexp, 0, len(rule.Patterns)),
	}
	for _, p := range rule.Patterns {
		re, err := compilePattern(p)
		if err != nil {
			return Entry{}, err
		}
		entry.patterns = append(entry.patterns, re)
	}
	return entry, nil
}

// compileLenient prepares a rule loaded from disk. The rule text is kept verbatim so
// the file round-trips; patterns that do not compile are left out of matching only.
func compileLenient(rule model.Rule) (Entry, []error) {
	var errs []error
	entry := Entry{
		Rule:     rule.Clone(),
		keywords: matchKeywords(rule.Keywords),
		patterns: make([]*regexp.Regexp, 0, len(rule.Patterns)),
	}
	for _, p := range rule.Patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := compilePattern(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entry.patterns = append(entry.patterns, re)
	}
	return entry, errs
}

// matchKeywords lowercases keywords for substring matching, dropping blanks.
func matchKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func compilePattern(p string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + p)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalidRule, p, err)
	}
	return re, nil
}

// normalize lowercases keywords and drops blank keywords and patterns.
func normalize(rule model.Rule) model.Rule {
	rule.Name = strings.TrimSpace(rule.Name)
	rule.CategoryName = strings.TrimSpace(rule.CategoryName)

	rule.Keywords = matchKeywords(rule.Keywords)

	patterns := make([]string, 0, len(rule.Patterns))
	for _, p := range rule.Patterns {
		if strings.TrimSpace(p) != "" {
			patterns = append(patterns, p)
		}
	}
	rule.Patterns = patterns
	return rule
}
