package reporting

import (
	"context"
	"sync"

	"cart-dialer/internal/calllog"
)

// FileRepo reads rows straight from the append-only log file.
type FileRepo struct{}

func (FileRepo) ListRows(_ context.Context, path string) ([]calllog.LoggedRow, error) {
	return calllog.ReadRows(path)
}

// MemoryRepo serves fixed rows keyed by path; used in tests.
type MemoryRepo struct {
	mu   sync.Mutex
	Rows map[string][]calllog.LoggedRow
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{Rows: map[string][]calllog.LoggedRow{}} }

func (r *MemoryRepo) ListRows(_ context.Context, path string) ([]calllog.LoggedRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]calllog.LoggedRow(nil), r.Rows[path]...), nil
}
