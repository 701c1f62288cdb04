package sheets

import (
	"context"
	"sync"
)

// MockWriter records sink calls for tests.
type MockWriter struct {
	AppendFunc  func(ctx context.Context, row TransactionRow) error
	ReplaceFunc func(ctx context.Context, rows []BudgetRow) error
	Appended    []TransactionRow
	Replaced    [][]BudgetRow
	mu          sync.Mutex
}

// NewMockWriter creates a new mock writer.
func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

// AppendTransaction records the row. The row is recorded even when AppendFunc fails.
func (m *MockWriter) AppendTransaction(ctx context.Context, row TransactionRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Appended = append(m.Appended, row)
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, row)
	}
	return nil
}

// ReplaceBudgets records the rows.
func (m *MockWriter) ReplaceBudgets(ctx context.Context, rows []BudgetRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Replaced = append(m.Replaced, append([]BudgetRow(nil), rows...))
	if m.ReplaceFunc != nil {
		return m.ReplaceFunc(ctx, rows)
	}
	return nil
}

// SetError makes every subsequent call fail with err.
func (m *MockWriter) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendFunc = func(context.Context, TransactionRow) error { return err }
	m.ReplaceFunc = func(context.Context, []BudgetRow) error { return err }
}

// AppendedRows returns a copy of the appended rows.
func (m *MockWriter) AppendedRows() []TransactionRow {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]TransactionRow(nil), m.Appended...)
}

// ReplaceCalls returns a copy of every ReplaceBudgets call.
func (m *MockWriter) ReplaceCalls() [][]BudgetRow {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([][]BudgetRow(nil), m.Replaced...)
}
