package session

import (
	"context"
	"sync"
)

// mailbox is the per-chat state: pending envelopes, a wake signal for the
// suspended turn, and whether a turn is running.
type mailbox struct {
	key    int64
	runner *Runner

	mu     sync.Mutex
	queue  []*Envelope
	active bool
	wake   chan struct{}
}

func newMailbox(key int64, runner *Runner) *mailbox {
	return &mailbox{
		key:    key,
		runner: runner,
		wake:   make(chan struct{}, 1),
	}
}

// offer queues env when a turn is running. It returns true when the caller
// must start a new turn with env instead.
func (m *mailbox) offer(env *Envelope) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		m.queue = append(m.queue, env)
		select {
		case m.wake <- struct{}{}:
		default:
		}
		return false
	}
	m.active = true
	return true
}

// wait blocks until an envelope is queued or ctx is done.
// Only the running turn of this chat calls it.
func (m *mailbox) wait(ctx context.Context) (*Envelope, error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			next := m.pop()
			m.mu.Unlock()
			return next, nil
		}
		m.mu.Unlock()

		select {
		case <-m.wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// handoff runs after a turn ended. An empty queue makes the chat idle;
// otherwise the oldest envelope is returned to start the next turn.
func (m *mailbox) handoff() (*Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		m.active = false
		return nil, false
	}
	return m.pop(), true
}

func (m *mailbox) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *mailbox) running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// pop requires m.mu.
func (m *mailbox) pop() *Envelope {
	next := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	if len(m.queue) == 0 {
		m.queue = nil
	}
	return next
}
