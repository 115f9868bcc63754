package queue

import (
	"sync"
	"time"
)

type outcome int

const (
	outcomeNone outcome = iota
	outcomeAck
	outcomeRetry
)

// Message is one delivered queue entry. Ack and Retry only record the
// handler's verdict; the queue applies it when the batch is settled.
type Message struct {
	ID         string
	Body       []byte
	Attempts   int
	EnqueuedAt time.Time

	mu         sync.Mutex
	outcome    outcome
	retryDelay time.Duration
}

// Ack marks the message as successfully processed.
func (m *Message) Ack() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcome = outcomeAck
}

// Retry marks the message for redelivery after delay.
func (m *Message) Retry(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcome = outcomeRetry
	m.retryDelay = delay
}

// Acked reports whether Ack was the last signal recorded.
func (m *Message) Acked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome == outcomeAck
}

// Retried reports whether Retry was the last signal recorded.
func (m *Message) Retried() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome == outcomeRetry
}

func (m *Message) verdict() (outcome, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome, m.retryDelay
}
