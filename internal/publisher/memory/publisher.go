// Package memory records published notifications in process. It backs the
// service when no Pub/Sub project is configured and doubles as a test fake.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/JakeFAU/realtime-job-crawler/internal/publisher/pubsub"
)

// Message is one recorded publish, in wire form.
type Message struct {
	Topic      string
	Data       []byte
	Attributes map[string]string
}

// Publisher keeps the most recent messages up to a limit.
type Publisher struct {
	mu       sync.RWMutex
	limit    int
	total    int
	messages []Message
}

// New returns a Publisher retaining at most limit messages; limit <= 0 keeps
// everything.
func New(limit int) *Publisher {
	return &Publisher{limit: limit}
}

// Publish encodes payload as JSON and records it.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{Topic: topic, Data: data}
	if a, ok := payload.(pubsub.Attributer); ok {
		msg.Attributes = a.Attributes()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.total++
	p.messages = append(p.messages, msg)
	if p.limit > 0 && len(p.messages) > p.limit {
		p.messages = append([]Message(nil), p.messages[len(p.messages)-p.limit:]...)
	}
	return fmt.Sprintf("memory-%d", p.total), nil
}

// Messages returns the retained messages, oldest first.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
