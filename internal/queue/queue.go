// Package queue implements the Work-Dispatch Pipeline's broker and worker
// pool (spec.md §4.2/§4.3): two Redis-list priority lanes ("scraping",
// "monitor"), task retries, and per-task-type rate limiting.
//
// Grounded on spec.md §9 GLOSSARY's "Broker: queues scraping and monitor
// over a Redis broker" and the teacher's sync.WaitGroup fan-out idiom in
// services/order_processing_platform/src/services/order_processing_engine.go,
// generalized here into a bounded-concurrency worker goroutine pool per
// lane (BLPOP-driven instead of an in-memory channel, since the broker
// must be shared across worker processes).
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lane names the two priority lanes of spec.md §4.2/§4.3.
type Lane string

const (
	LaneScraping Lane = "scraping"
	LaneMonitor  Lane = "monitor"
)

// Task is one unit of work placed on a lane.
type Task struct {
	Name    string          `json:"name"`
	Lane    Lane            `json:"lane"`
	Payload json.RawMessage `json:"payload"`
	Attempt int             `json:"attempt"`
}

// ErrEmpty is returned by Dequeue when no task arrived before timeout.
var ErrEmpty = errors.New("queue: no task available")

// Broker wraps the Redis-list-backed lanes.
type Broker struct {
	redis redis.Cmdable
}

// New constructs a Broker.
func New(client redis.Cmdable) *Broker {
	return &Broker{redis: client}
}

func laneKey(lane Lane) string {
	return "queue:" + string(lane)
}

// Enqueue pushes task onto its lane.
func (b *Broker) Enqueue(ctx context.Context, task Task) error {
	encoded, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return b.redis.RPush(ctx, laneKey(task.Lane), encoded).Err()
}

// Dequeue blocks up to timeout for a task on lane (BLPOP), returning
// ErrEmpty on timeout.
func (b *Broker) Dequeue(ctx context.Context, lane Lane, timeout time.Duration) (Task, error) {
	result, err := b.redis.BLPop(ctx, timeout, laneKey(lane)).Result()
	if err == redis.Nil {
		return Task{}, ErrEmpty
	}
	if err != nil {
		return Task{}, err
	}
	// BLPOP returns [key, value]; result[1] is the payload.
	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// Requeue re-pushes task for a retry attempt, incrementing Attempt.
func (b *Broker) Requeue(ctx context.Context, task Task) error {
	task.Attempt++
	return b.Enqueue(ctx, task)
}
