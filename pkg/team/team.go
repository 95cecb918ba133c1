// Package team defines a coordinator component that delegates work to member
// agents or nested teams.
package team

import (
	"fmt"
	"strings"
	"time"

	"github.com/tandem-run/tandem/pkg/model/provider"
)

// Member is a component a team can delegate to. Both *agent.Agent and *Team
// satisfy it.
type Member interface {
	ID() string
	Name() string
	Description() string
}

// Team is a coordinator backed by its own model. It answers by delegating
// tasks to its members and synthesizing their responses.
type Team struct {
	id                 string
	name               string
	description        string
	instructions       string
	model              provider.Provider
	members            []Member
	delegateToAll      bool
	streamMemberEvents bool
	storeEvents        bool
	addDate            bool
}

type Opt func(*Team)

func WithName(name string) Opt {
	return func(t *Team) {
		t.name = name
	}
}

func WithDescription(description string) Opt {
	return func(t *Team) {
		t.description = description
	}
}

func WithInstructions(instructions string) Opt {
	return func(t *Team) {
		t.instructions = instructions
	}
}

func WithModel(model provider.Provider) Opt {
	return func(t *Team) {
		t.model = model
	}
}

func WithMembers(members ...Member) Opt {
	return func(t *Team) {
		t.members = append(t.members, members...)
	}
}

// WithDelegateToAll gives the coordinator a tool that sends the same task to
// every member concurrently instead of one member at a time.
func WithDelegateToAll() Opt {
	return func(t *Team) {
		t.delegateToAll = true
	}
}

// WithStreamMemberEvents controls whether member run events are forwarded
// into the team's stream. Enabled unless switched off.
func WithStreamMemberEvents(enabled bool) Opt {
	return func(t *Team) {
		t.streamMemberEvents = enabled
	}
}

// WithStoreEvents persists intermediate run events on the run output.
func WithStoreEvents() Opt {
	return func(t *Team) {
		t.storeEvents = true
	}
}

// WithAddDate appends today's date to the system prompt.
func WithAddDate() Opt {
	return func(t *Team) {
		t.addDate = true
	}
}

func New(id string, opts ...Opt) *Team {
	t := &Team{
		id:                 id,
		name:               id,
		streamMemberEvents: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Team) ID() string {
	return t.id
}

func (t *Team) Name() string {
	return t.name
}

func (t *Team) Description() string {
	return t.description
}

func (t *Team) Instructions() string {
	return t.instructions
}

func (t *Team) Model() provider.Provider {
	return t.model
}

// Members returns the team's members in declaration order.
func (t *Team) Members() []Member {
	return t.members
}

// Member returns the member with the given id.
func (t *Team) Member(id string) (Member, error) {
	for _, m := range t.members {
		if m.ID() == id {
			return m, nil
		}
	}
	return nil, fmt.Errorf("member not found: %s (available members: %s)", id, strings.Join(t.MemberIDs(), ", "))
}

// MemberIDs returns the member ids in declaration order.
func (t *Team) MemberIDs() []string {
	ids := make([]string, 0, len(t.members))
	for _, m := range t.members {
		ids = append(ids, m.ID())
	}
	return ids
}

func (t *Team) Size() int {
	return len(t.members)
}

func (t *Team) DelegateToAll() bool {
	return t.delegateToAll
}

func (t *Team) StreamMemberEvents() bool {
	return t.streamMemberEvents
}

func (t *Team) StoreEvents() bool {
	return t.storeEvents
}

// SystemMessage builds the coordinator prompt, including a roster of members
// the model can delegate to.
func (t *Team) SystemMessage() string {
	var sb strings.Builder
	if t.instructions != "" {
		sb.WriteString(t.instructions)
		sb.WriteString("\n\n")
	}

	sb.WriteString("You coordinate a team. Delegate tasks to the members below and synthesize their responses into a final answer.\n\nMembers:\n")
	for _, m := range t.members {
		sb.WriteString(" - ")
		sb.WriteString(m.ID())
		if desc := m.Description(); desc != "" {
			sb.WriteString(": ")
			sb.WriteString(desc)
		}
		sb.WriteString("\n")
	}

	if t.addDate {
		sb.WriteString("\nToday's date is ")
		sb.WriteString(time.Now().Format("2006-01-02"))
		sb.WriteString(".")
	}

	return sb.String()
}
