// Package classify assigns categories to transactions using the ordered rule table.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/rules"
)

// RuleSource provides the current rule table.
type RuleSource interface {
	Snapshot() *rules.Snapshot
}

// Resolver turns a category name into a stored category, creating it if needed.
type Resolver interface {
	ResolveOrCreate(ctx context.Context, name string) (*model.Category, error)
}

// Classifier maps transaction text to a category id. The first rule that matches wins.
type Classifier struct {
	rules    RuleSource
	resolver Resolver
	logger   *slog.Logger
}

// New creates a classifier.
func New(ruleSource RuleSource, resolver Resolver, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		rules:    ruleSource,
		resolver: resolver,
		logger:   logger,
	}
}

// NormalizeText builds the text rules are matched against.
func NormalizeText(merchant, description string) string {
	return strings.ToLower(strings.TrimSpace(merchant + " " + description))
}

// Classify returns the category id for the first rule matching merchant and description.
// The amount is accepted for interface stability and does not affect the result.
// matched is false when no rule applies; err is set only when category resolution fails.
func (c *Classifier) Classify(ctx context.Context, merchant, description string, _ decimal.Decimal) (categoryID int64, matched bool, err error) {
	text := NormalizeText(merchant, description)
	rule, ok := c.match(text)
	if !ok {
		return 0, false, nil
	}

	cat, err := c.resolver.ResolveOrCreate(ctx, rule.CategoryName)
	if err != nil {
		return 0, false, fmt.Errorf("resolve category %q for rule %q: %w", rule.CategoryName, rule.Name, err)
	}

	c.logger.Debug("classified transaction", "rule", rule.Name, "category", cat.Name, "category_id", cat.ID)
	return cat.ID, true, nil
}

// Match returns the first rule matching the given merchant and description.
func (c *Classifier) Match(merchant, description string) (model.Rule, bool) {
	return c.match(NormalizeText(merchant, description))
}

// Suggest returns the distinct category names of every rule matching merchant, in rule order.
func (c *Classifier) Suggest(merchant string) []string {
	text := NormalizeText(merchant, "")
	var out []string
	seen := make(map[string]bool)
	for _, e := range c.rules.Snapshot().Entries() {
		if e.Rule.CategoryName == "" || seen[e.Rule.CategoryName] {
			continue
		}
		if e.Matches(text) {
			seen[e.Rule.CategoryName] = true
			out = append(out, e.Rule.CategoryName)
		}
	}
	return out
}

func (c *Classifier) match(text string) (model.Rule, bool) {
	if text == "" {
		return model.Rule{}, false
	}
	for _, e := range c.rules.Snapshot().Entries() {
		if e.Rule.CategoryName == "" {
			continue
		}
		if e.Matches(text) {
			return e.Rule.Clone(), true
		}
	}
	return model.Rule{}, false
}
