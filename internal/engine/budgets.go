package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/finhelper/internal/budget"
	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/exporter"
	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/service"
)

// Trend window bounds.
const (
	DefaultTrendMonths = 6
	MaxTrendMonths     = 24
)

// LookupCategory returns the category with exactly name, or common.ErrNotFound.
func (e *Engine) LookupCategory(ctx context.Context, name string) (*model.Category, error) {
	return e.resolver.Lookup(ctx, strings.TrimSpace(name))
}

// CreateBudget stores a budget and primes its cached spend. An active budget already
// covering the category and month is common.ErrDuplicate; an unknown category is
// common.ErrNotFound.
func (e *Engine) CreateBudget(ctx context.Context, b *model.Budget) error {
	b.IsActive = true
	if err := e.ledger.CreateBudget(ctx, b); err != nil {
		return err
	}

	if err := e.refreshBudget(ctx, b); err != nil {
		e.logger.Warn("could not compute initial budget spend", "budget_id", b.ID, "error", err)
	}
	return nil
}

// GetBudget returns one budget.
func (e *Engine) GetBudget(ctx context.Context, id int64) (*model.Budget, error) {
	return e.ledger.GetBudget(ctx, id)
}

// ListBudgets returns budgets matching filter.
func (e *Engine) ListBudgets(ctx context.Context, filter service.BudgetFilter) ([]model.Budget, error) {
	return e.ledger.ListBudgets(ctx, filter)
}

// UpdateBudget changes limit, threshold or active flag.
func (e *Engine) UpdateBudget(ctx context.Context, id int64, update model.BudgetUpdate) (*model.Budget, error) {
	b, err := e.ledger.UpdateBudget(ctx, id, update)
	if err != nil {
		return nil, err
	}
	e.logger.Info("updated budget", "budget_id", id)
	return b, nil
}

// DeleteBudget removes a budget.
func (e *Engine) DeleteBudget(ctx context.Context, id int64) error {
	if err := e.ledger.DeleteBudget(ctx, id); err != nil {
		return err
	}
	e.logger.Info("deleted budget", "budget_id", id)
	return nil
}

// RefreshSpending recomputes and caches the spend of every active budget in month
// (current month when empty) and returns how many were updated. The budget sheet
// export is enqueued afterwards.
func (e *Engine) RefreshSpending(ctx context.Context, month string) (int, error) {
	m, err := e.monthOrCurrent(month)
	if err != nil {
		return 0, err
	}

	budgets, err := e.ledger.ListBudgets(ctx, service.BudgetFilter{Month: m.String(), ActiveOnly: true})
	if err != nil {
		return 0, fmt.Errorf("list budgets for %s: %w", m, err)
	}

	updated := 0
	for i := range budgets {
		if err := e.refreshBudget(ctx, &budgets[i]); err != nil {
			return updated, err
		}
		updated++
	}

	e.logger.Info("refreshed budget spending", "month", m.String(), "updated", updated)
	e.queue.Enqueue(ctx, exporter.NewBudgetsTask(m.String()))
	return updated, nil
}

// BudgetStatus evaluates every active budget of month (current month when empty)
// against freshly computed spend.
func (e *Engine) BudgetStatus(ctx context.Context, month string) (budget.MonthStatus, error) {
	m, err := e.monthOrCurrent(month)
	if err != nil {
		return budget.MonthStatus{}, err
	}

	lines, err := e.budgetLines(ctx, m, true)
	if err != nil {
		return budget.MonthStatus{}, err
	}
	return budget.Summarize(m.String(), lines), nil
}

// Trends is the budget history ending at a month.
type Trends struct {
	Months  []budget.MonthPoint
	Summary budget.TrendSummary
}

// BudgetTrends reports budget adherence for the months calendar months ending with the
// month containing now, oldest first.
func (e *Engine) BudgetTrends(ctx context.Context, months int, now time.Time) (Trends, error) {
	if months <= 0 {
		months = DefaultTrendMonths
	}
	if months > MaxTrendMonths {
		return Trends{}, fmt.Errorf("%w: at most %d months", common.ErrInvalidInput, MaxTrendMonths)
	}

	var t Trends
	for _, m := range budget.TrendMonths(months, now) {
		lines, err := e.budgetLines(ctx, m, false)
		if err != nil {
			return Trends{}, err
		}
		t.Months = append(t.Months, budget.NewMonthPoint(m.String(), lines))
	}
	t.Summary = budget.SummarizeTrend(t.Months)
	return t, nil
}

// budgetLines loads active budgets of m with fresh spend. With persist set the
// cached spend is written back; concurrent writers race benignly.
func (e *Engine) budgetLines(ctx context.Context, m model.Month, persist bool) ([]budget.Line, error) {
	budgets, err := e.ledger.ListBudgets(ctx, service.BudgetFilter{Month: m.String(), ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list budgets for %s: %w", m, err)
	}

	lines := make([]budget.Line, 0, len(budgets))
	for _, b := range budgets {
		spend, err := e.aggregator.SpendForMonth(ctx, b.CategoryID, m)
		if err != nil {
			return nil, err
		}
		if persist && !spend.Equal(b.AmountSpent) {
			if err := e.ledger.SetBudgetSpent(ctx, b.ID, spend); err != nil {
				e.logger.Warn("could not cache budget spend", "budget_id", b.ID, "error", err)
			}
		}
		b.AmountSpent = spend

		name := ""
		if cat, err := e.resolver.Get(ctx, b.CategoryID); err == nil {
			name = cat.Name
		}
		lines = append(lines, budget.Line{Budget: b, Category: name, Spend: spend})
	}
	return lines, nil
}

func (e *Engine) refreshBudget(ctx context.Context, b *model.Budget) error {
	spend, err := e.aggregator.SpendFor(ctx, b.CategoryID, b.Month)
	if err != nil {
		return err
	}
	if err := e.ledger.SetBudgetSpent(ctx, b.ID, spend); err != nil {
		return fmt.Errorf("cache spend for budget %d: %w", b.ID, err)
	}
	b.AmountSpent = spend
	return nil
}

func (e *Engine) monthOrCurrent(month string) (model.Month, error) {
	if strings.TrimSpace(month) == "" {
		return model.MonthOf(e.now()), nil
	}
	return model.ParseMonth(month)
}
