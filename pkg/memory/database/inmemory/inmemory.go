// Package inmemory provides a memory database backed by process memory, for
// tests and ephemeral runs.
package inmemory

import (
	"context"

	"github.com/tandem-run/tandem/pkg/concurrent"
	"github.com/tandem-run/tandem/pkg/memory/database"
)

type MemoryDatabase struct {
	memories *concurrent.Map[string, database.UserMemory]
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		memories: concurrent.NewMap[string, database.UserMemory](),
	}
}

func (m *MemoryDatabase) AddMemory(_ context.Context, memory database.UserMemory) error {
	if memory.ID == "" {
		return database.ErrEmptyID
	}
	m.memories.Store(memory.ID, memory)
	return nil
}

func (m *MemoryDatabase) GetMemories(_ context.Context, userID string) ([]database.UserMemory, error) {
	var out []database.UserMemory
	m.memories.Range(func(_ string, memory database.UserMemory) bool {
		if userID == "" || memory.UserID == userID {
			out = append(out, memory)
		}
		return true
	})
	return out, nil
}

func (m *MemoryDatabase) DeleteMemory(_ context.Context, memory database.UserMemory) error {
	m.memories.Delete(memory.ID)
	return nil
}
