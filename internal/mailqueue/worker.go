package mailqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hobbystash/account-service/internal/notify"
	"go.uber.org/zap"
)

const (
	popTimeout  = 5 * time.Second
	sendTimeout = 10 * time.Second
)

// Dequeuer is the queue side the worker consumes. Satisfied by Queue.
type Dequeuer interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*Message, error)
}

// Worker drains the mail queue and dispatches each job to the notifier.
// Delivery failures are logged and the job dropped; the state change that
// produced it has long since committed.
type Worker struct {
	queue    Dequeuer
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewWorker creates a mail queue worker.
func NewWorker(queue Dequeuer, notifier notify.Notifier, logger *zap.Logger) *Worker {
	return &Worker{
		queue:    queue,
		notifier: notifier,
		logger:   logger,
	}
}

// Run processes messages until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("mail worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("mail worker stopped")
			return
		default:
		}

		msg, err := w.queue.Dequeue(ctx, popTimeout)
		if err != nil {
			if errors.Is(err, ErrNoMessage) || ctx.Err() != nil {
				continue
			}
			w.logger.Warn("failed to dequeue mail message", zap.Error(err))
			continue
		}

		if err := w.dispatch(msg); err != nil {
			w.logger.Warn("failed to deliver email",
				zap.String("kind", msg.Kind),
				zap.Error(err),
			)
		}
	}
}

func (w *Worker) dispatch(msg *Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	switch msg.Kind {
	case KindVerification:
		return w.notifier.SendVerification(ctx, msg.Email, msg.Token)
	case KindReset:
		return w.notifier.SendReset(ctx, msg.Email, msg.Token)
	default:
		return fmt.Errorf("unknown mail kind %q", msg.Kind)
	}
}
