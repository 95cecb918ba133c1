package database

import (
	"context"
	"errors"
)

var ErrEmptyID = errors.New("memory ID cannot be empty")

// UserMemory is one remembered fact about a user.
type UserMemory struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id,omitempty"`
	CreatedAt string `json:"created_at"`
	Memory    string `json:"memory"`
}

type Database interface {
	AddMemory(ctx context.Context, memory UserMemory) error
	GetMemories(ctx context.Context, userID string) ([]UserMemory, error)
	DeleteMemory(ctx context.Context, memory UserMemory) error
}
