// Package push hands notification payloads to the delivery transport.
// Actual device delivery is an external concern; this service only
// publishes to the transport's exchange.
package push

import (
	"context"
	"sync"
)

// Notification is the payload handed to the transport.
type Notification struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Sender delivers a notification to one recipient address.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// MemorySender records notifications for tests.
type MemorySender struct {
	mu   sync.Mutex
	sent []Notification
}

// NewMemorySender initializes an empty recording sender.
func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

// Send records the notification.
func (m *MemorySender) Send(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

// Sent returns a copy of everything recorded so far.
func (m *MemorySender) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.sent))
	copy(out, m.sent)
	return out
}
