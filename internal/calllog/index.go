package calllog

import (
	"sync"

	"cart-dialer/internal/calls"
)

// Index answers rerun questions about an existing log. It is safe for
// concurrent use.
type Index struct {
	mu        sync.RWMutex
	logged    map[string]bool
	initiated map[string]bool
	byPhone   map[string]int
}

func NewIndex(rows []LoggedRow) *Index {
	ix := &Index{
		logged:    make(map[string]bool, len(rows)),
		initiated: make(map[string]bool),
		byPhone:   make(map[string]int),
	}
	for _, r := range rows {
		ix.Add(r.RecordKey, r.Phone, r.Status)
	}
	return ix
}

// Add records a newly appended row.
func (ix *Index) Add(key, phone string, status calls.OutcomeStatus) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.logged[key] = true
	if status == calls.OutcomeInitiated {
		ix.initiated[key] = true
	}
	if phone != "" {
		ix.byPhone[phone]++
	}
}

func (ix *Index) Logged(key string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.logged[key]
}

func (ix *Index) Initiated(key string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.initiated[key]
}

// ContactCount is the number of rows already logged for phone.
func (ix *Index) ContactCount(phone string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.byPhone[phone]
}
