package session

import (
	"context"
	"errors"
)

var (
	ErrEmptyID  = errors.New("session ID cannot be empty")
	ErrNotFound = errors.New("session not found")
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Filters narrows GetSessions results. Zero values mean "no filter".
type Filters struct {
	UserID      string
	ComponentID string
	// NameContains matches a substring of the session name.
	NameContains string
	// CreatedAfter / CreatedBefore bound the creation timestamp (inclusive).
	CreatedAfter  int64
	CreatedBefore int64

	// Limit and Page paginate results; Page is 1-based. Limit <= 0 returns
	// everything.
	Limit int
	Page  int

	// SortBy is a column name ("created_at", "updated_at", "session_name").
	// Defaults to created_at descending.
	SortBy    string
	SortOrder SortOrder
}

// Store is the boundary contract to the pluggable persistence layer. A store
// serializes writes per session id; concurrent upserts of different ids are
// independent.
type Store interface {
	// UpsertSession inserts the session or fully replaces the mutable fields
	// of an existing row with the same id. It never creates a duplicate.
	UpsertSession(ctx context.Context, sess *Session) (*Session, error)

	// GetSession returns the session with the given id, or nil when the id
	// is absent or the type/user filters do not match. userID may be empty
	// to skip the user check.
	GetSession(ctx context.Context, id string, sessionType Type, userID string) (*Session, error)

	// GetSessions lists sessions of one type, filtered, paginated and sorted
	// per filters. The second return is the total count before pagination.
	GetSessions(ctx context.Context, sessionType Type, filters Filters) ([]*Session, int, error)

	// RenameSession updates only the session name and returns the updated
	// session.
	RenameSession(ctx context.Context, id string, sessionType Type, name string) (*Session, error)

	DeleteSession(ctx context.Context, id string) error
	DeleteSessions(ctx context.Context, ids []string) error
}
