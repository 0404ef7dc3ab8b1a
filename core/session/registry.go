package session

import (
	"sort"
	"sync"
)

// Registry maps chat keys to their mailboxes. Mailboxes are created on the
// first update of a chat and kept for the lifetime of the process.
type Registry struct {
	runner *Runner

	mu       sync.Mutex
	sessions map[int64]*mailbox
}

// NewRegistry creates an empty registry whose turns run on runner.
func NewRegistry(runner *Runner) *Registry {
	return &Registry{
		runner:   runner,
		sessions: make(map[int64]*mailbox),
	}
}

// Deliver routes env to the chat identified by key. The envelope is queued
// when the chat has a running turn, otherwise a new turn starts with it.
func (r *Registry) Deliver(key int64, env *Envelope) {
	if env == nil {
		return
	}
	box := r.getOrCreate(key)
	env.Key = key
	env.box = box
	if box.offer(env) {
		r.runner.start(box, env)
	}
}

func (r *Registry) getOrCreate(key int64) *mailbox {
	r.mu.Lock()
	defer r.mu.Unlock()
	box, ok := r.sessions[key]
	if !ok {
		box = newMailbox(key, r.runner)
		r.sessions[key] = box
	}
	return box
}

func (r *Registry) lookup(key int64) (*mailbox, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	box, ok := r.sessions[key]
	return box, ok
}

// Len returns the number of chats seen so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Keys returns the known chat keys in ascending order.
func (r *Registry) Keys() []int64 {
	r.mu.Lock()
	keys := make([]int64, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Pending returns the number of queued envelopes for key.
func (r *Registry) Pending(key int64) int {
	box, ok := r.lookup(key)
	if !ok {
		return 0
	}
	return box.pending()
}

// Active reports whether key has a running turn.
func (r *Registry) Active(key int64) bool {
	box, ok := r.lookup(key)
	if !ok {
		return false
	}
	return box.running()
}
