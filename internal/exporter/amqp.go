package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// AMQPQueue publishes tasks to a durable direct exchange so a separate worker
// process can export them.
type AMQPQueue struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	logger   *slog.Logger
	exchange string
	queue    string
	mu       sync.Mutex
}

// NewAMQPQueue dials the broker and declares the exchange, queue and binding.
func NewAMQPQueue(url, exchange, queue string, logger *slog.Logger) (*AMQPQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	q := &AMQPQueue{
		conn:     conn,
		channel:  channel,
		logger:   logger,
		exchange: exchange,
		queue:    queue,
	}
	if err := q.setup(); err != nil {
		_ = q.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return q, nil
}

func (q *AMQPQueue) setup() error {
	if err := q.channel.ExchangeDeclare(q.exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := q.channel.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// The queue name doubles as the routing key.
	if err := q.channel.QueueBind(q.queue, q.queue, q.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Enqueue implements Queue. Publish failures are logged.
func (q *AMQPQueue) Enqueue(ctx context.Context, task Task) {
	if err := q.publish(ctx, task); err != nil {
		q.logger.Warn("failed to publish export task",
			"kind", task.Kind,
			"transaction_id", task.TransactionID,
			"error", err)
	}
}

func (q *AMQPQueue) publish(ctx context.Context, task Task) error {
	body, err := task.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	// The request context may already be done; publishing is bounded on its own.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	q.mu.Lock()
	defer q.mu.Unlock()

	err = q.channel.PublishWithContext(ctx, q.exchange, q.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	q.logger.Debug("published export task", "kind", task.Kind, "exchange", q.exchange, "queue", q.queue)
	return nil
}

// Consume hands each delivery to handler until ctx is done. Successful tasks are
// acked, failed ones requeued and undecodable bodies rejected.
func (q *AMQPQueue) Consume(ctx context.Context, handler Handler) error {
	msgs, err := q.channel.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	q.logger.Info("consuming export tasks", "queue", q.queue)
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("stopping export consumer", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			q.settle(delivery, handleDelivery(ctx, delivery.Body, handler, q.logger))
		}
	}
}

func (q *AMQPQueue) settle(delivery amqp091.Delivery, action ackAction) {
	var err error
	switch action {
	case ackDone:
		err = delivery.Ack(false)
	case ackRequeue:
		err = delivery.Nack(false, true)
	case ackReject:
		err = delivery.Nack(false, false)
	}
	if err != nil {
		q.logger.Warn("failed to settle delivery", "tag", delivery.DeliveryTag, "error", err)
	}
}

// Close closes the channel and connection.
func (q *AMQPQueue) Close() error {
	if q.channel != nil {
		_ = q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

type ackAction int

const (
	ackDone ackAction = iota
	ackRequeue
	ackReject
)

// handleDelivery decodes body and runs handler, returning how the delivery should be settled.
func handleDelivery(ctx context.Context, body []byte, handler Handler, logger *slog.Logger) ackAction {
	task, err := TaskFromJSON(body)
	if err != nil {
		logger.Error("failed to decode export task", "error", err)
		return ackReject
	}

	if err := handler(ctx, task); err != nil {
		logger.Error("failed to handle export task",
			"kind", task.Kind,
			"transaction_id", task.TransactionID,
			"month", task.Month,
			"error", err)
		return ackRequeue
	}

	logger.Debug("handled export task", "kind", task.Kind, "transaction_id", task.TransactionID)
	return ackDone
}
