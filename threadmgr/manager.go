package threadmgr

import "sync"

// Manager tracks every enrolled thread for a running daemon, so
// callers (cmd/memlatd) can enumerate and cleanly stop them at
// shutdown.
type Manager struct {
	mu      sync.Mutex
	threads map[int]*Thread
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{threads: make(map[int]*Thread)}
}

// Add registers an already-enrolled thread under its ThreadID.
func (m *Manager) Add(t *Thread) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[t.State.ThreadID] = t
}

// Remove stops and forgets the thread with the given id, if present.
func (m *Manager) Remove(threadID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.threads[threadID]; ok {
		t.Stop()
		delete(m.threads, threadID)
	}
}

// StopAll stops every enrolled thread's trigger loop.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.threads {
		t.Stop()
		delete(m.threads, id)
	}
}

// Len reports the number of currently enrolled threads.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.threads)
}

// Snapshot returns the currently enrolled threads, for callers that
// need to poll per-thread state (e.g. a metrics exporter) without
// holding the Manager's lock for the duration of the poll.
func (m *Manager) Snapshot() []*Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Thread, 0, len(m.threads))
	for _, t := range m.threads {
		out = append(out, t)
	}
	return out
}
