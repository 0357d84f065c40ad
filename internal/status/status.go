// Package status broadcasts the synchronization state of the client.
//
// The Publisher is a single-slot current-value channel: every subscriber
// sees the latest state on subscription and then each later transition it
// has time to observe. A slow subscriber never builds a backlog; an unread
// state is replaced by the newer one.
package status

import (
	"sync"
)

// Status is the synchronization phase reported to observers.
type Status string

const (
	Online  Status = "online"
	Offline Status = "offline"
	Syncing Status = "syncing"
	Error   Status = "error"
)

// Publisher holds the last published Status and fans it out.
type Publisher struct {
	mu      sync.Mutex
	current Status
	subs    map[*subscriber]struct{}
	hooks   []func(Status)
}

type subscriber struct {
	ch chan Status
}

// NewPublisher creates a publisher whose current value is initial.
func NewPublisher(initial Status) *Publisher {
	return &Publisher{
		current: initial,
		subs:    make(map[*subscriber]struct{}),
	}
}

// Current returns the last published status.
func (p *Publisher) Current() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Publish records s as the current status and delivers it to every
// subscriber. Publishing never blocks.
func (p *Publisher) Publish(s Status) {
	p.mu.Lock()
	p.current = s
	for sub := range p.subs {
		offer(sub.ch, s)
	}
	hooks := append([]func(Status){}, p.hooks...)
	p.mu.Unlock()

	for _, h := range hooks {
		h(s)
	}
}

// Subscribe returns a channel that immediately holds the current status and
// then receives later transitions. Call cancel to unsubscribe; the channel is
// closed afterwards.
func (p *Publisher) Subscribe() (<-chan Status, func()) {
	sub := &subscriber{ch: make(chan Status, 1)}

	p.mu.Lock()
	sub.ch <- p.current
	p.subs[sub] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, sub)
			close(sub.ch)
			p.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// OnPublish registers a callback invoked synchronously after every Publish.
// Callbacks must not call Publish.
func (p *Publisher) OnPublish(fn func(Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, fn)
}

// offer places s in the single slot of ch, replacing an unread value.
func offer(ch chan Status, s Status) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
