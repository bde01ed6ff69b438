package store

import (
	"context"
	"strings"
	"sync"
)

// Message is one event delivered to a subscription.
type Message struct {
	Channel string
	Payload string
}

// Subscription receives messages published on its channels.
type Subscription struct {
	channels map[string]bool
	prefix   string
	msgChan  chan *Message
	closeCh  chan struct{}
	closed   bool
	mu       sync.RWMutex
}

const subscriptionBuffer = 100

func newSubscription(channels []string, prefix string) *Subscription {
	channelMap := make(map[string]bool, len(channels))
	for _, ch := range channels {
		channelMap[ch] = true
	}
	return &Subscription{
		channels: channelMap,
		prefix:   prefix,
		msgChan:  make(chan *Message, subscriptionBuffer),
		closeCh:  make(chan struct{}),
	}
}

// Channel returns the message channel. It is closed with the subscription.
func (s *Subscription) Channel() <-chan *Message {
	return s.msgChan
}

func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.closeCh)
		close(s.msgChan)
	}
	return nil
}

func (s *Subscription) matches(channel string) bool {
	return s.channels[channel] || (s.prefix != "" && strings.HasPrefix(channel, s.prefix))
}

// send delivers msg without blocking; a full buffer drops it.
func (s *Subscription) send(msg *Message) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || !s.matches(msg.Channel) {
		return false
	}
	select {
	case s.msgChan <- msg:
		return true
	default:
		return false
	}
}

// PubSubHub fans published messages out to in-process subscriptions.
type PubSubHub struct {
	subscribers map[*Subscription]struct{}
	mu          sync.RWMutex
}

func NewPubSubHub() *PubSubHub {
	return &PubSubHub{
		subscribers: make(map[*Subscription]struct{}),
	}
}

// Subscribe creates a subscription for the given channels
func (h *PubSubHub) Subscribe(ctx context.Context, channels ...string) *Subscription {
	return h.add(ctx, newSubscription(channels, ""))
}

// SubscribePrefix creates a subscription for every channel with prefix
func (h *PubSubHub) SubscribePrefix(ctx context.Context, prefix string) *Subscription {
	return h.add(ctx, newSubscription(nil, prefix))
}

func (h *PubSubHub) add(ctx context.Context, sub *Subscription) *Subscription {
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.closeCh:
		}

		h.mu.Lock()
		delete(h.subscribers, sub)
		h.mu.Unlock()
	}()

	return sub
}

// Publish sends payload to every matching subscription and reports how
// many accepted it.
func (h *PubSubHub) Publish(channel, payload string) int {
	h.mu.RLock()
	subscribers := make([]*Subscription, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subscribers = append(subscribers, sub)
	}
	h.mu.RUnlock()

	msg := &Message{Channel: channel, Payload: payload}
	delivered := 0
	for _, sub := range subscribers {
		if sub.send(msg) {
			delivered++
		}
	}
	return delivered
}
