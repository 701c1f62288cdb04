package model

import "time"

// Category groups transactions for budgeting and reporting.
type Category struct {
	CreatedAt time.Time
	ParentID  *int64
	Name      string
	Icon      string
	Color     string
	ID        int64
	IsActive  bool
}
