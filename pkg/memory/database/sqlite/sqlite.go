package sqlite

import (
	"context"
	"database/sql"

	"github.com/tandem-run/tandem/pkg/memory/database"
	"github.com/tandem-run/tandem/pkg/sqliteutil"
)

type MemoryDatabase struct {
	db *sql.DB
}

func NewMemoryDatabase(path string) (database.Database, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, err
	}

	_, err = db.ExecContext(context.Background(), "CREATE TABLE IF NOT EXISTS memories (id TEXT PRIMARY KEY, user_id TEXT, created_at TEXT, memory TEXT)")
	if err != nil {
		db.Close()
		return nil, err
	}

	return &MemoryDatabase{db: db}, nil
}

func (m *MemoryDatabase) AddMemory(ctx context.Context, memory database.UserMemory) error {
	if memory.ID == "" {
		return database.ErrEmptyID
	}
	_, err := m.db.ExecContext(ctx, "INSERT OR REPLACE INTO memories (id, user_id, created_at, memory) VALUES (?, ?, ?, ?)",
		memory.ID, memory.UserID, memory.CreatedAt, memory.Memory)
	return err
}

func (m *MemoryDatabase) GetMemories(ctx context.Context, userID string) ([]database.UserMemory, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT id, user_id, created_at, memory FROM memories WHERE user_id = ? OR ? = ''", userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []database.UserMemory
	for rows.Next() {
		var memory database.UserMemory
		err := rows.Scan(&memory.ID, &memory.UserID, &memory.CreatedAt, &memory.Memory)
		if err != nil {
			return nil, err
		}
		memories = append(memories, memory)
	}

	return memories, rows.Err()
}

func (m *MemoryDatabase) DeleteMemory(ctx context.Context, memory database.UserMemory) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", memory.ID)
	return err
}
