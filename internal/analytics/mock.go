package analytics

import (
	"context"
	"sync"
)

// MockService records events in memory for tests.
type MockService struct {
	mu     sync.Mutex
	Events []EventRecord
}

// NewMockService creates an empty MockService.
func NewMockService() *MockService {
	return &MockService{}
}

func (m *MockService) RecordEvent(_ context.Context, ev EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return nil
}

// Recorded returns a copy of the events seen so far.
func (m *MockService) Recorded() []EventRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventRecord, len(m.Events))
	copy(out, m.Events)
	return out
}
