package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/tandem-run/tandem/pkg/run"
)

// Type distinguishes sessions owned by a single agent from sessions owned by
// a team.
type Type string

const (
	TypeAgent Type = "agent"
	TypeTeam  Type = "team"
)

// NameKey is the session_data key holding the user-visible session name.
const NameKey = "session_name"

// Session is the durable container grouping runs under a stable id.
type Session struct {
	ID      string `json:"session_id"`
	Type    Type   `json:"session_type"`
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	TeamID  string `json:"team_id,omitempty"`

	// SessionData holds free-form conversation-level state, including the
	// session name under NameKey.
	SessionData map[string]any `json:"session_data,omitempty"`
	// AgentData / TeamData hold component-specific snapshots (name, model).
	AgentData map[string]any `json:"agent_data,omitempty"`
	TeamData  map[string]any `json:"team_data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	Runs []*run.Output `json:"runs,omitempty"`

	Summary string `json:"summary,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at,omitempty"`
}

type Opt func(*Session)

func WithID(id string) Opt {
	return func(s *Session) { s.ID = id }
}

func WithUserID(userID string) Opt {
	return func(s *Session) { s.UserID = userID }
}

func WithName(name string) Opt {
	return func(s *Session) { s.SetName(name) }
}

func WithMetadata(metadata map[string]any) Opt {
	return func(s *Session) { s.Metadata = metadata }
}

// New creates a session for an agent or team component.
func New(sessionType Type, componentID string, opts ...Opt) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		Type:      sessionType,
		CreatedAt: time.Now().Unix(),
	}
	switch sessionType {
	case TypeAgent:
		s.AgentID = componentID
	case TypeTeam:
		s.TeamID = componentID
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ComponentID returns the owning agent or team id.
func (s *Session) ComponentID() string {
	if s.Type == TypeTeam {
		return s.TeamID
	}
	return s.AgentID
}

func (s *Session) Name() string {
	if s.SessionData == nil {
		return ""
	}
	name, _ := s.SessionData[NameKey].(string)
	return name
}

func (s *Session) SetName(name string) {
	if s.SessionData == nil {
		s.SessionData = make(map[string]any)
	}
	s.SessionData[NameKey] = name
}

// AddRun appends or replaces a run record. A run id already present is
// replaced in place so a resumed run does not duplicate its record.
func (s *Session) AddRun(output *run.Output) {
	for i, existing := range s.Runs {
		if existing.RunID == output.RunID {
			s.Runs[i] = output
			return
		}
	}
	s.Runs = append(s.Runs, output)
}

// GetRun returns the run with the given id, or nil.
func (s *Session) GetRun(runID string) *run.Output {
	for _, r := range s.Runs {
		if r.RunID == runID {
			return r
		}
	}
	return nil
}

// LastRun returns the most recent run record, or nil.
func (s *Session) LastRun() *run.Output {
	if len(s.Runs) == 0 {
		return nil
	}
	return s.Runs[len(s.Runs)-1]
}

// Metrics sums the metrics of every run in the session.
func (s *Session) Metrics() run.Metrics {
	var total run.Metrics
	for _, r := range s.Runs {
		total.Add(r.Metrics)
	}
	return total
}
