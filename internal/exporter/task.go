// Package exporter mirrors ledger changes to an outbound sink without blocking the caller.
package exporter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/model"
)

// TaskKind names the export work a task asks for.
type TaskKind string

const (
	// TaskTransaction appends one transaction row.
	TaskTransaction TaskKind = "transaction"
	// TaskBudgets rewrites the budget sheet for one month.
	TaskBudgets TaskKind = "budgets"
)

// Task is one unit of outbound export work. It carries ids only; the processor
// loads current data when it runs.
type Task struct {
	EnqueuedAt    time.Time `json:"enqueued_at"`
	Kind          TaskKind  `json:"kind"`
	Month         string    `json:"month,omitempty"`
	TransactionID int64     `json:"transaction_id,omitempty"`
}

// NewTransactionTask creates a task exporting one transaction.
func NewTransactionTask(id int64) Task {
	return Task{Kind: TaskTransaction, TransactionID: id, EnqueuedAt: time.Now().UTC()}
}

// NewBudgetsTask creates a task exporting the budgets of month ("YYYY-MM").
func NewBudgetsTask(month string) Task {
	return Task{Kind: TaskBudgets, Month: month, EnqueuedAt: time.Now().UTC()}
}

// Validate checks the task carries what its kind needs.
func (t Task) Validate() error {
	switch t.Kind {
	case TaskTransaction:
		if t.TransactionID <= 0 {
			return fmt.Errorf("%w: transaction task without transaction id", common.ErrInvalidInput)
		}
	case TaskBudgets:
		if _, err := model.ParseMonth(t.Month); err != nil {
			return fmt.Errorf("%w: budgets task: %w", common.ErrInvalidInput, err)
		}
	default:
		return fmt.Errorf("%w: unknown task kind %q", common.ErrInvalidInput, t.Kind)
	}
	return nil
}

// ToJSON encodes the task for a message body.
func (t Task) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// TaskFromJSON decodes and validates a message body.
func TaskFromJSON(data []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}
