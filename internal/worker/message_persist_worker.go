package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"ragdesk/internal/model"
	"ragdesk/internal/platform/rabbitmq"
)

// MessageStore persists one conversation message.
type MessageStore interface {
	Create(message *model.Message) error
}

// HistoryInvalidator drops cached conversation history after a write lands.
type HistoryInvalidator interface {
	Invalidate(ctx context.Context, userID uint) error
}

// MessagePersistWorker drains the persist queue into the message table with
// manual acknowledgement. Undecodable deliveries are dropped; store failures
// are requeued once and dropped on redelivery.
type MessagePersistWorker struct {
	conn      *amqp.Connection
	store     MessageStore
	history   HistoryInvalidator
	queueName string
	log       *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMessagePersistWorker(conn *amqp.Connection, store MessageStore, history HistoryInvalidator, queueName string, log *zap.Logger) *MessagePersistWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessagePersistWorker{
		conn:      conn,
		store:     store,
		history:   history,
		queueName: queueName,
		log:       log,
	}
}

func (w *MessagePersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(32, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.log.Warn("worker delivery channel closed")
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	w.log.Info("message persist worker started", zap.String("queue", w.queueName))
	return nil
}

// Acknowledger is the subset of amqp.Delivery the handler needs.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (w *MessagePersistWorker) handle(ctx context.Context, d amqp.Delivery) {
	w.process(ctx, d.Body, d.Redelivered, d)
}

func (w *MessagePersistWorker) process(ctx context.Context, body []byte, redelivered bool, ack Acknowledger) {
	var msg model.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		w.log.Error("worker decode message failed", zap.Error(err))
		_ = ack.Nack(false, false)
		return
	}

	if err := w.store.Create(&msg); err != nil {
		w.log.Error("worker persist message failed",
			zap.Uint("user_id", msg.UserID),
			zap.Bool("redelivered", redelivered),
			zap.Error(err),
		)
		_ = ack.Nack(false, !redelivered)
		return
	}

	if w.history != nil {
		if err := w.history.Invalidate(ctx, msg.UserID); err != nil {
			w.log.Warn("worker invalidate history failed", zap.Uint("user_id", msg.UserID), zap.Error(err))
		}
	}
	_ = ack.Ack(false)
}

func (w *MessagePersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
