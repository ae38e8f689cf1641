package database

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

type memoryService struct {
	mu      sync.RWMutex
	records map[string]SessionRecord
}

// NewMemory returns a store that keeps records in process memory. Records
// do not survive a restart; it is meant for development and tests.
func NewMemory() Service {
	return &memoryService{records: make(map[string]SessionRecord)}
}

func (m *memoryService) Health() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]string{
		"status":   "up",
		"message":  "in-memory store",
		"sessions": strconv.Itoa(len(m.records)),
	}
}

func (m *memoryService) SaveSession(ctx context.Context, rec SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec = rec.Clone()
	rec.UpdatedAt = time.Now()

	m.mu.Lock()
	m.records[rec.Name] = rec
	m.mu.Unlock()
	return nil
}

func (m *memoryService) DeleteSession(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.records, name)
	m.mu.Unlock()
	return nil
}

func (m *memoryService) LoadSessions(ctx context.Context) ([]SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]SessionRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryService) Close() error {
	return nil
}
