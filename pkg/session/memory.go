package session

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/tandem-run/tandem/pkg/concurrent"
)

// InMemoryStore keeps sessions in a concurrent map. Intended for tests and
// ephemeral runs.
type InMemoryStore struct {
	sessions *concurrent.Map[string, *Session]
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: concurrent.NewMap[string, *Session](),
	}
}

func (s *InMemoryStore) UpsertSession(_ context.Context, sess *Session) (*Session, error) {
	if sess.ID == "" {
		return nil, ErrEmptyID
	}

	stored := cloneSession(sess)
	stored.UpdatedAt = time.Now().Unix()
	if existing, ok := s.sessions.Load(sess.ID); ok {
		stored.CreatedAt = existing.CreatedAt
	}
	s.sessions.Store(sess.ID, stored)
	return cloneSession(stored), nil
}

func (s *InMemoryStore) GetSession(_ context.Context, id string, sessionType Type, userID string) (*Session, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	sess, ok := s.sessions.Load(id)
	if !ok || sess.Type != sessionType {
		return nil, nil
	}
	if userID != "" && sess.UserID != userID {
		return nil, nil
	}
	return cloneSession(sess), nil
}

func (s *InMemoryStore) GetSessions(_ context.Context, sessionType Type, filters Filters) ([]*Session, int, error) {
	var matched []*Session
	s.sessions.Range(func(_ string, sess *Session) bool {
		if sess.Type == sessionType && matchesFilters(sess, filters) {
			matched = append(matched, sess)
		}
		return true
	})

	sortSessions(matched, filters.SortBy, filters.SortOrder)
	total := len(matched)

	page := paginate(matched, filters.Limit, filters.Page)
	result := make([]*Session, 0, len(page))
	for _, sess := range page {
		result = append(result, cloneSession(sess))
	}
	return result, total, nil
}

func (s *InMemoryStore) RenameSession(_ context.Context, id string, sessionType Type, name string) (*Session, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	sess, ok := s.sessions.Load(id)
	if !ok || sess.Type != sessionType {
		return nil, ErrNotFound
	}

	// Replace on write; stored sessions are never mutated in place.
	renamed := cloneSession(sess)
	renamed.SetName(name)
	renamed.UpdatedAt = time.Now().Unix()
	s.sessions.Store(id, renamed)
	return cloneSession(renamed), nil
}

func (s *InMemoryStore) DeleteSession(_ context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if _, ok := s.sessions.Load(id); !ok {
		return ErrNotFound
	}
	s.sessions.Delete(id)
	return nil
}

func (s *InMemoryStore) DeleteSessions(_ context.Context, ids []string) error {
	for _, id := range ids {
		s.sessions.Delete(id)
	}
	return nil
}

func matchesFilters(sess *Session, filters Filters) bool {
	if filters.UserID != "" && sess.UserID != filters.UserID {
		return false
	}
	if filters.ComponentID != "" && sess.ComponentID() != filters.ComponentID {
		return false
	}
	if filters.NameContains != "" && !strings.Contains(sess.Name(), filters.NameContains) {
		return false
	}
	if filters.CreatedAfter != 0 && sess.CreatedAt < filters.CreatedAfter {
		return false
	}
	if filters.CreatedBefore != 0 && sess.CreatedAt > filters.CreatedBefore {
		return false
	}
	return true
}

func sortSessions(sessions []*Session, sortBy string, order SortOrder) {
	if sortBy == "" {
		sortBy = "created_at"
	}
	if order == "" {
		order = SortDesc
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if order == SortDesc {
			a, b = b, a
		}
		switch sortBy {
		case "updated_at":
			if a.UpdatedAt != b.UpdatedAt {
				return a.UpdatedAt < b.UpdatedAt
			}
		case NameKey:
			if a.Name() != b.Name() {
				return a.Name() < b.Name()
			}
		default:
			if a.CreatedAt != b.CreatedAt {
				return a.CreatedAt < b.CreatedAt
			}
		}
		// Tie-break on id so pagination stays stable.
		return a.ID < b.ID
	})
}

func paginate(sessions []*Session, limit, page int) []*Session {
	if limit <= 0 {
		return sessions
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(sessions) {
		return nil
	}
	end := min(start+limit, len(sessions))
	return sessions[start:end]
}

// cloneSession deep-copies through JSON so callers never share mutable state
// with the store.
func cloneSession(sess *Session) *Session {
	data, err := json.Marshal(sess)
	if err != nil {
		shallow := *sess
		return &shallow
	}
	var copied Session
	if err := json.Unmarshal(data, &copied); err != nil {
		shallow := *sess
		return &shallow
	}
	return &copied
}
