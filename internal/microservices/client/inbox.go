package client

import (
	"sync"

	"pingpong/internal/message"
)

// Inbox keeps every message received by a client, in arrival order.
type Inbox struct {
	mu       sync.RWMutex
	messages []message.Message
}

func (i *Inbox) push(m message.Message) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.messages = append(i.messages, m)
}

// Messages returns a copy of the received messages.
func (i *Inbox) Messages() []message.Message {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]message.Message, len(i.messages))
	copy(out, i.messages)
	return out
}

func (i *Inbox) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.messages)
}

// Responses returns the received messages that are responses.
func (i *Inbox) Responses() []*message.Response {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []*message.Response
	for _, m := range i.messages {
		if r, ok := m.(*message.Response); ok {
			out = append(out, r)
		}
	}
	return out
}
