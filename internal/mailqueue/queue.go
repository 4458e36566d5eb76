// Package mailqueue is the detached side-effect channel for outbound email.
// Producers enqueue after their database transaction has committed; a
// background worker drains the queue and hands jobs to the Notifier. A lost
// or failed email never changes a caller-visible result.
package mailqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hobbystash/account-service/pkg/database"
	"github.com/redis/go-redis/v9"
)

const KeyMailQueue = "accountsvc:queue:mail"

// Message kinds
const (
	KindVerification = "verification"
	KindReset        = "reset"
)

// ErrNoMessage is returned when the blocking pop times out empty.
var ErrNoMessage = errors.New("no message available")

// Message is one queued email job.
type Message struct {
	Kind       string    `json:"kind"`
	Email      string    `json:"email"`
	Token      string    `json:"token"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue wraps Redis list operations for the mail queue.
type Queue struct {
	redis *database.Redis
}

// NewQueue creates a mail queue on the given Redis connection.
func NewQueue(redis *database.Redis) *Queue {
	return &Queue{redis: redis}
}

// Enqueue serializes a message and pushes it onto the queue.
func (q *Queue) Enqueue(ctx context.Context, msg Message) error {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail message: %w", err)
	}

	if err := q.redis.Client.LPush(ctx, KeyMailQueue, string(data)).Err(); err != nil {
		return fmt.Errorf("lpush mail message: %w", err)
	}

	return nil
}

// Dequeue blocks until a message is available or timeout is reached.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	result, err := q.redis.Client.BRPop(ctx, timeout, KeyMailQueue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoMessage
	}
	if err != nil {
		return nil, fmt.Errorf("brpop mail message: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid brpop response: %v", result)
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal mail message: %w", err)
	}

	return &msg, nil
}

// Len returns the number of pending messages.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.redis.Client.LLen(ctx, KeyMailQueue).Result()
	if err != nil {
		return 0, fmt.Errorf("llen mail queue: %w", err)
	}
	return n, nil
}
