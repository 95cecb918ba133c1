// Package memory extracts durable facts about the user from conversations and
// stores them for future runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tandem-run/tandem/pkg/chat"
	"github.com/tandem-run/tandem/pkg/memory/database"
	"github.com/tandem-run/tandem/pkg/model/provider"
)

const extractionPrompt = `You extract durable facts about the user from a conversation.
Return a JSON array of short, self-contained statements worth remembering across sessions.
Only include genuinely new facts not present in the known memories. Return [] when there is nothing new.`

// Manager updates the memory database from conversation transcripts using a
// model to decide what is worth remembering.
type Manager struct {
	db    database.Database
	model provider.Provider
}

func NewManager(db database.Database, model provider.Provider) *Manager {
	return &Manager{db: db, model: model}
}

// Memories returns the stored memories for a user.
func (m *Manager) Memories(ctx context.Context, userID string) ([]database.UserMemory, error) {
	return m.db.GetMemories(ctx, userID)
}

// Update asks the model for new facts in the transcript and stores them.
// It returns the memories that were added.
func (m *Manager) Update(ctx context.Context, userID string, messages []chat.Message) ([]database.UserMemory, error) {
	existing, err := m.db.GetMemories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading memories: %w", err)
	}

	prompt := buildPrompt(existing, messages)
	response, err := m.model.CreateChatCompletion(ctx, []chat.Message{
		chat.SystemMessage(extractionPrompt),
		chat.UserMessage(prompt),
	})
	if err != nil {
		return nil, fmt.Errorf("extracting memories: %w", err)
	}

	facts, err := parseFacts(response)
	if err != nil {
		slog.Warn("Failed to parse memory extraction response", "error", err)
		return nil, nil
	}

	var added []database.UserMemory
	for _, fact := range facts {
		memory := database.UserMemory{
			ID:        uuid.New().String(),
			UserID:    userID,
			CreatedAt: time.Now().Format(time.RFC3339),
			Memory:    fact,
		}
		if err := m.db.AddMemory(ctx, memory); err != nil {
			return added, fmt.Errorf("storing memory: %w", err)
		}
		added = append(added, memory)
	}

	return added, nil
}

func buildPrompt(existing []database.UserMemory, messages []chat.Message) string {
	var sb strings.Builder

	sb.WriteString("Known memories:\n")
	if len(existing) == 0 {
		sb.WriteString(" (none)\n")
	}
	for _, memory := range existing {
		sb.WriteString(" - ")
		sb.WriteString(memory.Memory)
		sb.WriteString("\n")
	}

	sb.WriteString("\nConversation:\n")
	for _, msg := range messages {
		if msg.Role != chat.MessageRoleUser && msg.Role != chat.MessageRoleAssistant {
			continue
		}
		if msg.Content == "" {
			continue
		}
		sb.WriteString(string(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}

	return sb.String()
}

// parseFacts accepts a bare JSON array or one wrapped in a code fence.
func parseFacts(response string) ([]string, error) {
	trimmed := strings.TrimSpace(response)
	if after, found := strings.CutPrefix(trimmed, "```json"); found {
		trimmed = after
	} else if after, found := strings.CutPrefix(trimmed, "```"); found {
		trimmed = after
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	var facts []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &facts); err != nil {
		return nil, err
	}
	return facts, nil
}
