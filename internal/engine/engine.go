// Package engine composes classification, category resolution, budgeting and export
// into the operations the CLI exposes.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/finhelper/internal/budget"
	"github.com/Veraticus/finhelper/internal/category"
	"github.com/Veraticus/finhelper/internal/classify"
	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/exporter"
	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/rules"
	"github.com/Veraticus/finhelper/internal/service"
)

// Options tunes an Engine. Zero values pick defaults.
type Options struct {
	Queue           exporter.Queue
	Logger          *slog.Logger
	Now             func() time.Time
	DefaultCurrency string
}

// Engine is the application core. It is safe for concurrent use.
type Engine struct {
	ledger          service.Ledger
	rules           *rules.Store
	resolver        *category.Resolver
	classifier      *classify.Classifier
	aggregator      *budget.Aggregator
	queue           exporter.Queue
	logger          *slog.Logger
	now             func() time.Time
	defaultCurrency string
}

// New creates an engine over ledger and ruleStore. The rule store should already be loaded.
func New(ledger service.Ledger, ruleStore *rules.Store, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Queue == nil {
		opts.Queue = exporter.NopQueue{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = model.DefaultCurrency
	}

	resolver := category.NewResolver(ledger, opts.Logger)
	return &Engine{
		ledger:          ledger,
		rules:           ruleStore,
		resolver:        resolver,
		classifier:      classify.New(ruleStore, resolver, opts.Logger),
		aggregator:      budget.NewAggregator(ledger),
		queue:           opts.Queue,
		logger:          opts.Logger,
		now:             opts.Now,
		defaultCurrency: opts.DefaultCurrency,
	}
}

// ClassifyTransaction returns the category id of the first rule matching the text.
// ok is false when no rule matches.
func (e *Engine) ClassifyTransaction(ctx context.Context, merchant, description string, amount decimal.Decimal) (categoryID int64, ok bool, err error) {
	return e.classifier.Classify(ctx, merchant, description, amount)
}

// GetOrCreateCategory returns the category with name, creating it when absent.
func (e *Engine) GetOrCreateCategory(ctx context.Context, name string) (*model.Category, error) {
	return e.resolver.ResolveOrCreate(ctx, strings.TrimSpace(name))
}

// ComputeSpend sums expense transactions of a category in a YYYY-MM month.
func (e *Engine) ComputeSpend(ctx context.Context, categoryID int64, month string) (decimal.Decimal, error) {
	return e.aggregator.SpendFor(ctx, categoryID, month)
}

// EvaluateBudget recomputes the budget's spend and derives its status.
func (e *Engine) EvaluateBudget(ctx context.Context, b model.Budget) (budget.Evaluation, decimal.Decimal, error) {
	spend, err := e.aggregator.SpendFor(ctx, b.CategoryID, b.Month)
	if err != nil {
		return budget.Evaluation{}, decimal.Zero, err
	}
	return budget.Evaluate(b, spend), spend, nil
}

// ListCategories returns categories by name.
func (e *Engine) ListCategories(ctx context.Context, includeInactive bool) ([]model.Category, error) {
	return e.ledger.ListCategories(ctx, includeInactive)
}

// CreateCategory stores a new category. A taken name is common.ErrDuplicate.
func (e *Engine) CreateCategory(ctx context.Context, cat *model.Category) error {
	cat.Name = strings.TrimSpace(cat.Name)
	if cat.Name == "" {
		return fmt.Errorf("%w: category name is required", common.ErrInvalidInput)
	}
	cat.IsActive = true
	return e.ledger.CreateCategory(ctx, cat)
}

// ListRules returns the rules in match order.
func (e *Engine) ListRules() []model.Rule {
	return e.rules.List()
}

// AddRule adds the rule, replacing any rule of the same name in place.
func (e *Engine) AddRule(rule model.Rule) error {
	if err := e.rules.Upsert(rule.Name, rule); err != nil {
		return err
	}
	e.logger.Info("saved rule", "rule", rule.Name, "category", rule.CategoryName)
	return nil
}

// UpdateRule patches the named rule.
func (e *Engine) UpdateRule(name string, patch rules.Patch) (model.Rule, error) {
	updated, err := e.rules.Update(name, patch)
	if err != nil {
		return updated, err
	}
	e.logger.Info("updated rule", "rule", name)
	return updated, nil
}

// DeleteRule removes the named rule.
func (e *Engine) DeleteRule(name string) error {
	if err := e.rules.Remove(name); err != nil {
		return err
	}
	e.logger.Info("deleted rule", "rule", name)
	return nil
}

// MatchRule reports which rule would classify the text, without touching the ledger.
func (e *Engine) MatchRule(merchant, description string) (model.Rule, bool) {
	return e.classifier.Match(merchant, description)
}

// SuggestCategories lists every category whose rules match merchant, in rule order.
func (e *Engine) SuggestCategories(merchant string) []string {
	return e.classifier.Suggest(merchant)
}

// BulkCategorize classifies up to limit uncategorized transactions.
func (e *Engine) BulkCategorize(ctx context.Context, limit int, progress func()) (classify.BulkResult, error) {
	return e.classifier.BulkCategorize(ctx, e.ledger, limit, progress)
}

// CategorizationStats reports ledger categorization coverage.
func (e *Engine) CategorizationStats(ctx context.Context) (classify.Stats, error) {
	return classify.CoverageStats(ctx, e.ledger)
}
