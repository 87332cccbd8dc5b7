package memory

import (
	"context"
	"sync"

	"ecodash/internal/core"
	"ecodash/internal/report"
	ports "ecodash/internal/sheets"
)

var (
	_ ports.ReportWriter = (*Mirror)(nil)
	_ ports.ReportReader = (*Mirror)(nil)
)

// Mirror keeps the last report of each section in memory. Used when no
// spreadsheet is configured and in tests.
type Mirror struct {
	mu     sync.Mutex
	tabs   map[core.Section][][]string
	writes int
}

func New() *Mirror {
	return &Mirror{tabs: make(map[core.Section][][]string)}
}

func (m *Mirror) WriteReport(_ context.Context, t report.Table) error {
	values := t.Values()
	copied := make([][]string, len(values))
	for i, row := range values {
		copied[i] = append([]string(nil), row...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tabs[t.Section] = copied
	m.writes++
	return nil
}

func (m *Mirror) ReadReport(_ context.Context, section core.Section) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.tabs[section]
	if !ok {
		return nil, core.ErrNotFound
	}
	return rows, nil
}

// Writes counts WriteReport calls.
func (m *Mirror) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
