package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tandem-run/tandem/pkg/sqliteutil"
)

// SQLiteStore implements Store on an embedded SQLite database. Writes are
// serialized by the single-connection pool in sqliteutil.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			session_type TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT '',
			team_id TEXT NOT NULL DEFAULT '',
			session_name TEXT NOT NULL DEFAULT '',
			session_data TEXT NOT NULL DEFAULT '{}',
			agent_data TEXT NOT NULL DEFAULT '{}',
			team_data TEXT NOT NULL DEFAULT '{}',
			metadata TEXT NOT NULL DEFAULT '{}',
			runs TEXT NOT NULL DEFAULT '[]',
			summary TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_type_user ON sessions(session_type, user_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
	`); err != nil {
		db.Close()
		if sqliteutil.IsCantOpenError(err) {
			return nil, sqliteutil.DiagnoseOpenError(path, err)
		}
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertSession(ctx context.Context, sess *Session) (*Session, error) {
	if sess.ID == "" {
		return nil, ErrEmptyID
	}

	sessionData, err := marshalMap(sess.SessionData)
	if err != nil {
		return nil, fmt.Errorf("marshaling session data: %w", err)
	}
	agentData, err := marshalMap(sess.AgentData)
	if err != nil {
		return nil, fmt.Errorf("marshaling agent data: %w", err)
	}
	teamData, err := marshalMap(sess.TeamData)
	if err != nil {
		return nil, fmt.Errorf("marshaling team data: %w", err)
	}
	metadata, err := marshalMap(sess.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	runsJSON := "[]"
	if len(sess.Runs) > 0 {
		data, err := json.Marshal(sess.Runs)
		if err != nil {
			return nil, fmt.Errorf("marshaling runs: %w", err)
		}
		runsJSON = string(data)
	}

	now := time.Now().Unix()
	createdAt := sess.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}

	// Full replace of mutable fields on conflict; created_at is sticky.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			session_id, session_type, user_id, agent_id, team_id,
			session_name, session_data, agent_data, team_data, metadata,
			runs, summary, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			session_type = excluded.session_type,
			user_id = excluded.user_id,
			agent_id = excluded.agent_id,
			team_id = excluded.team_id,
			session_name = excluded.session_name,
			session_data = excluded.session_data,
			agent_data = excluded.agent_data,
			team_data = excluded.team_data,
			metadata = excluded.metadata,
			runs = excluded.runs,
			summary = excluded.summary,
			updated_at = excluded.updated_at
	`,
		sess.ID, string(sess.Type), sess.UserID, sess.AgentID, sess.TeamID,
		sess.Name(), sessionData, agentData, teamData, metadata,
		runsJSON, sess.Summary, createdAt, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting session: %w", err)
	}

	return s.getSessionByID(ctx, sess.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string, sessionType Type, userID string) (*Session, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	sess, err := s.getSessionByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	// Type or user mismatch is absence, not an error.
	if sess.Type != sessionType {
		return nil, nil
	}
	if userID != "" && sess.UserID != userID {
		return nil, nil
	}
	return sess, nil
}

func (s *SQLiteStore) GetSessions(ctx context.Context, sessionType Type, filters Filters) ([]*Session, int, error) {
	where := []string{"session_type = ?"}
	args := []any{string(sessionType)}

	if filters.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filters.UserID)
	}
	if filters.ComponentID != "" {
		where = append(where, "(agent_id = ? OR team_id = ?)")
		args = append(args, filters.ComponentID, filters.ComponentID)
	}
	if filters.NameContains != "" {
		where = append(where, "session_name LIKE ?")
		args = append(args, "%"+filters.NameContains+"%")
	}
	if filters.CreatedAfter != 0 {
		where = append(where, "created_at >= ?")
		args = append(args, filters.CreatedAfter)
	}
	if filters.CreatedBefore != 0 {
		where = append(where, "created_at <= ?")
		args = append(args, filters.CreatedBefore)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE "+whereClause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting sessions: %w", err)
	}

	query := "SELECT " + sessionColumns + " FROM sessions WHERE " + whereClause +
		" ORDER BY " + orderClause(filters.SortBy, filters.SortOrder)
	if filters.Limit > 0 {
		page := max(filters.Page, 1)
		query += " LIMIT ? OFFSET ?"
		args = append(args, filters.Limit, (page-1)*filters.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

func (s *SQLiteStore) RenameSession(ctx context.Context, id string, sessionType Type, name string) (*Session, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	sess, err := s.getSessionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Type != sessionType {
		return nil, ErrNotFound
	}

	sess.SetName(name)
	sessionData, err := marshalMap(sess.SessionData)
	if err != nil {
		return nil, fmt.Errorf("marshaling session data: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET session_name = ?, session_data = ?, updated_at = ? WHERE session_id = ?",
		name, sessionData, time.Now().Unix(), id,
	); err != nil {
		return nil, fmt.Errorf("renaming session: %w", err)
	}

	return s.getSessionByID(ctx, id)
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteSessions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE session_id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("deleting sessions: %w", err)
	}
	return nil
}

const sessionColumns = `session_id, session_type, user_id, agent_id, team_id,
	session_data, agent_data, team_data, metadata, runs, summary, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) getSessionByID(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE session_id = ?", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess                                            Session
		sessionType                                     string
		sessionData, agentData, teamData, metadata, raw string
	)
	if err := row.Scan(
		&sess.ID, &sessionType, &sess.UserID, &sess.AgentID, &sess.TeamID,
		&sessionData, &agentData, &teamData, &metadata, &raw,
		&sess.Summary, &sess.CreatedAt, &sess.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sess.Type = Type(sessionType)

	var err error
	if sess.SessionData, err = unmarshalMap(sessionData); err != nil {
		return nil, fmt.Errorf("unmarshaling session data: %w", err)
	}
	if sess.AgentData, err = unmarshalMap(agentData); err != nil {
		return nil, fmt.Errorf("unmarshaling agent data: %w", err)
	}
	if sess.TeamData, err = unmarshalMap(teamData); err != nil {
		return nil, fmt.Errorf("unmarshaling team data: %w", err)
	}
	if sess.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	if raw != "" && raw != "[]" {
		if err := json.Unmarshal([]byte(raw), &sess.Runs); err != nil {
			return nil, fmt.Errorf("unmarshaling runs: %w", err)
		}
	}
	return &sess, nil
}

func orderClause(sortBy string, order SortOrder) string {
	column := "created_at"
	switch sortBy {
	case "updated_at":
		column = "updated_at"
	case NameKey:
		column = "session_name"
	case "", "created_at":
	}

	direction := "DESC"
	if order == SortAsc {
		direction = "ASC"
	}

	// Tie-break on the primary key so pages never overlap.
	return fmt.Sprintf("%s %s, session_id %s", column, direction, direction)
}

func marshalMap(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalMap(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}
