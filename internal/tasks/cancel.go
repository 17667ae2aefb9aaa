package tasks

import "sync"

// CancellationRegistry holds the in-memory cancel flag of every job a worker is running.
//
// Flags are independent of persisted job state: a worker polls its flag between remote calls.
type CancellationRegistry struct {
	mu    sync.Mutex
	flags map[string]chan struct{}
}

func NewCancellationRegistry() *CancellationRegistry {
	return &CancellationRegistry{flags: map[string]chan struct{}{}}
}

// Register creates the flag for id and returns a channel closed on [CancellationRegistry.Signal].
// Registering an id twice returns the existing channel.
func (r *CancellationRegistry) Register(id string) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.flags[id]; ok {
		return ch
	}
	ch := make(chan struct{})
	r.flags[id] = ch
	return ch
}

// Signal raises the flag for id. It reports false when no worker holds id.
func (r *CancellationRegistry) Signal(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.flags[id]
	if !ok {
		return false
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
	return true
}

// Cancelled reports whether the flag for id is raised.
func (r *CancellationRegistry) Cancelled(id string) bool {
	r.mu.Lock()
	ch, ok := r.flags[id]
	r.mu.Unlock()

	if !ok {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Clear forgets id once its worker is done.
func (r *CancellationRegistry) Clear(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flags, id)
}

// Len returns the number of registered jobs.
func (r *CancellationRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flags)
}
