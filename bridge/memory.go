package bridge

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryAnalyzer is an in-process Analyzer for tests and local runs. It
// records submissions; tests drive completions through the bridge directly.
type MemoryAnalyzer struct {
	mu      sync.Mutex
	jobs    map[string]string // token -> job id
	submits int
}

// NewMemoryAnalyzer creates an empty analyzer.
func NewMemoryAnalyzer() *MemoryAnalyzer {
	return &MemoryAnalyzer{jobs: make(map[string]string)}
}

// Submit assigns a job id for the document. The same token always maps to
// the same job id.
func (m *MemoryAnalyzer) Submit(_ context.Context, _ string, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submits++
	if id, ok := m.jobs[token]; ok {
		return id, nil
	}
	id := uuid.NewString()
	m.jobs[token] = id
	return id, nil
}

// Submissions reports how many Submit calls reached the analyzer.
func (m *MemoryAnalyzer) Submissions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submits
}
