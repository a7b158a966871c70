package queue

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue carries raw event payloads with at-least-once semantics. Dequeue
// blocks until a payload is available, the context ends, or the queue is
// closed and empty.
type Queue interface {
	Enqueue(ctx context.Context, payload json.RawMessage) error
	Dequeue(ctx context.Context) (json.RawMessage, error)
	Close() error
}

// Memory is a channel-backed in-process queue. It is the development and
// test transport; a broker-backed implementation plugs in behind the same
// interface.
type Memory struct {
	ch chan json.RawMessage
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Memory{ch: make(chan json.RawMessage, capacity)}
}

func (m *Memory) Enqueue(ctx context.Context, payload json.RawMessage) error {
	select {
	case m.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Dequeue(ctx context.Context) (json.RawMessage, error) {
	select {
	case payload, ok := <-m.ch:
		if !ok {
			return nil, ErrClosed
		}
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Memory) Close() error {
	close(m.ch)
	return nil
}
