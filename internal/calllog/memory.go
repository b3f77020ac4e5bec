package calllog

import "sync"

// MemoryLog is an in-memory Appender for tests and previews.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
	failAt  int
	err     error
}

func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

// FailAfter makes the (n+1)th Append and every later one return err.
func (m *MemoryLog) FailAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAt, m.err = n, err
}

func (m *MemoryLog) Append(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil && len(m.entries) >= m.failAt {
		return &LogWriteError{Path: "memory", Op: "append", Err: m.err}
	}
	m.entries = append(m.entries, e)
	return nil
}

// Entries returns a copy of the appended entries, in order.
func (m *MemoryLog) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
