package exporter

import "context"

// Queue accepts export tasks. Enqueue never blocks on the sink and never reports
// sink failures; a task that cannot be queued is logged and dropped, and the row
// stays unsynced for the next bulk sync.
type Queue interface {
	Enqueue(ctx context.Context, task Task)
	Close() error
}

// Handler runs one task.
type Handler func(ctx context.Context, task Task) error

// NopQueue discards every task. It is used when export is disabled.
type NopQueue struct{}

// Enqueue implements Queue.
func (NopQueue) Enqueue(context.Context, Task) {}

// Close implements Queue.
func (NopQueue) Close() error { return nil }
