package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandem-run/tandem/pkg/run"
)

// storeUnderTest runs the same assertions against every Store implementation.
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"inmemory": NewInMemoryStore(),
		"sqlite":   sqlite,
	}
}

func TestUpsertSessionRequiresID(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.UpsertSession(context.Background(), &Session{})
			assert.ErrorIs(t, err, ErrEmptyID)
		})
	}
}

func TestUpsertSessionIsIdempotent(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := New(TypeAgent, "helper", WithID("sess-1"), WithUserID("alice"))

			first, err := store.UpsertSession(ctx, sess)
			require.NoError(t, err)

			sess.AddRun(&run.Output{RunID: "run-1", Status: run.StatusCompleted})
			second, err := store.UpsertSession(ctx, sess)
			require.NoError(t, err)

			assert.Equal(t, first.CreatedAt, second.CreatedAt)

			got, err := store.GetSession(ctx, "sess-1", TypeAgent, "")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Len(t, got.Runs, 1)
		})
	}
}

func TestGetSessionFilters(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := New(TypeAgent, "helper", WithID("sess-1"), WithUserID("alice"))
			_, err := store.UpsertSession(ctx, sess)
			require.NoError(t, err)

			got, err := store.GetSession(ctx, "sess-1", TypeAgent, "alice")
			require.NoError(t, err)
			assert.NotNil(t, got)

			// Wrong type or wrong user means "not visible", not an error.
			got, err = store.GetSession(ctx, "sess-1", TypeTeam, "")
			require.NoError(t, err)
			assert.Nil(t, got)

			got, err = store.GetSession(ctx, "sess-1", TypeAgent, "bob")
			require.NoError(t, err)
			assert.Nil(t, got)

			got, err = store.GetSession(ctx, "missing", TypeAgent, "")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestGetSessionRoundTripsRuns(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := New(TypeTeam, "crew", WithID("sess-1"))
			sess.AddRun(&run.Output{
				RunID:  "run-1",
				TeamID: "crew",
				Status: run.StatusPaused,
				Tools: []*run.ToolExecution{
					{ID: "call-1", Name: "shell", RequiresConfirmation: true},
				},
			})
			_, err := store.UpsertSession(ctx, sess)
			require.NoError(t, err)

			got, err := store.GetSession(ctx, "sess-1", TypeTeam, "")
			require.NoError(t, err)
			require.NotNil(t, got)

			paused := got.GetRun("run-1")
			require.NotNil(t, paused)
			assert.True(t, paused.IsPaused())
			require.Len(t, paused.PendingConfirmations(), 1)
			assert.Equal(t, "shell", paused.PendingConfirmations()[0].Name)
		})
	}
}

func TestGetSessionsPagination(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := range 5 {
				sess := New(TypeAgent, "helper", WithID(fmt.Sprintf("sess-%d", i)))
				sess.CreatedAt = int64(1000 + i)
				_, err := store.UpsertSession(ctx, sess)
				require.NoError(t, err)
			}

			var seen []string
			for page := 1; page <= 3; page++ {
				sessions, total, err := store.GetSessions(ctx, TypeAgent, Filters{
					Limit:     2,
					Page:      page,
					SortBy:    "created_at",
					SortOrder: SortAsc,
				})
				require.NoError(t, err)
				assert.Equal(t, 5, total)
				for _, sess := range sessions {
					seen = append(seen, sess.ID)
				}
			}

			// Pages are disjoint and cover every session exactly once.
			assert.Equal(t, []string{"sess-0", "sess-1", "sess-2", "sess-3", "sess-4"}, seen)

			sessions, total, err := store.GetSessions(ctx, TypeAgent, Filters{Limit: 2, Page: 4, SortOrder: SortAsc})
			require.NoError(t, err)
			assert.Equal(t, 5, total)
			assert.Empty(t, sessions)
		})
	}
}

func TestGetSessionsFiltersAndSort(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			a := New(TypeAgent, "helper", WithID("sess-a"), WithUserID("alice"), WithName("triage inbox"))
			a.CreatedAt = 1000
			b := New(TypeAgent, "helper", WithID("sess-b"), WithUserID("bob"), WithName("weekly digest"))
			b.CreatedAt = 2000
			c := New(TypeTeam, "crew", WithID("sess-c"), WithUserID("alice"))
			c.CreatedAt = 3000
			for _, sess := range []*Session{a, b, c} {
				_, err := store.UpsertSession(ctx, sess)
				require.NoError(t, err)
			}

			sessions, total, err := store.GetSessions(ctx, TypeAgent, Filters{UserID: "alice"})
			require.NoError(t, err)
			assert.Equal(t, 1, total)
			require.Len(t, sessions, 1)
			assert.Equal(t, "sess-a", sessions[0].ID)

			sessions, _, err = store.GetSessions(ctx, TypeAgent, Filters{NameContains: "digest"})
			require.NoError(t, err)
			require.Len(t, sessions, 1)
			assert.Equal(t, "sess-b", sessions[0].ID)

			// Default order is newest first.
			sessions, _, err = store.GetSessions(ctx, TypeAgent, Filters{})
			require.NoError(t, err)
			require.Len(t, sessions, 2)
			assert.Equal(t, "sess-b", sessions[0].ID)
			assert.Equal(t, "sess-a", sessions[1].ID)
		})
	}
}

func TestGetSessionsPaginationWithDuplicateNames(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := range 5 {
				sess := New(TypeAgent, "helper", WithID(fmt.Sprintf("sess-%d", i)), WithName("scratch"))
				_, err := store.UpsertSession(ctx, sess)
				require.NoError(t, err)
			}

			var seen []string
			for page := 1; page <= 3; page++ {
				sessions, total, err := store.GetSessions(ctx, TypeAgent, Filters{
					Limit:     2,
					Page:      page,
					SortBy:    NameKey,
					SortOrder: SortDesc,
				})
				require.NoError(t, err)
				assert.Equal(t, 5, total)
				for _, sess := range sessions {
					seen = append(seen, sess.ID)
				}
			}

			// Equal names fall back to the id, so pages stay disjoint.
			assert.Equal(t, []string{"sess-4", "sess-3", "sess-2", "sess-1", "sess-0"}, seen)
		})
	}
}

func TestRenameSession(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := New(TypeAgent, "helper", WithID("sess-1"))
			_, err := store.UpsertSession(ctx, sess)
			require.NoError(t, err)

			renamed, err := store.RenameSession(ctx, "sess-1", TypeAgent, "bug hunt")
			require.NoError(t, err)
			assert.Equal(t, "bug hunt", renamed.Name())

			got, err := store.GetSession(ctx, "sess-1", TypeAgent, "")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "bug hunt", got.Name())

			_, err = store.RenameSession(ctx, "missing", TypeAgent, "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRenameSessionConcurrentWithList(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.UpsertSession(ctx, New(TypeAgent, "helper", WithID("sess-1"), WithName("draft")))
			require.NoError(t, err)

			var wg sync.WaitGroup
			for i := range 20 {
				wg.Add(2)
				go func() {
					defer wg.Done()
					_, err := store.RenameSession(ctx, "sess-1", TypeAgent, fmt.Sprintf("rename-%d", i))
					assert.NoError(t, err)
				}()
				go func() {
					defer wg.Done()
					sessions, _, err := store.GetSessions(ctx, TypeAgent, Filters{})
					assert.NoError(t, err)
					// A reader sees either the old or the new name, never a torn write.
					for _, sess := range sessions {
						assert.NotEmpty(t, sess.Name())
					}
				}()
			}
			wg.Wait()

			got, err := store.GetSession(ctx, "sess-1", TypeAgent, "")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Contains(t, got.Name(), "rename-")
		})
	}
}

func TestDeleteSession(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"sess-1", "sess-2", "sess-3"} {
				_, err := store.UpsertSession(ctx, New(TypeAgent, "helper", WithID(id)))
				require.NoError(t, err)
			}

			require.NoError(t, store.DeleteSession(ctx, "sess-1"))
			got, err := store.GetSession(ctx, "sess-1", TypeAgent, "")
			require.NoError(t, err)
			assert.Nil(t, got)

			assert.ErrorIs(t, store.DeleteSession(ctx, "sess-1"), ErrNotFound)

			require.NoError(t, store.DeleteSessions(ctx, []string{"sess-2", "sess-3"}))
			_, total, err := store.GetSessions(ctx, TypeAgent, Filters{})
			require.NoError(t, err)
			assert.Equal(t, 0, total)
		})
	}
}

func TestSessionHelpers(t *testing.T) {
	sess := New(TypeTeam, "crew", WithUserID("alice"))
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "crew", sess.ComponentID())
	assert.Equal(t, "crew", sess.TeamID)
	assert.Empty(t, sess.AgentID)

	assert.Nil(t, sess.LastRun())
	sess.AddRun(&run.Output{RunID: "run-1", Metrics: run.Metrics{InputTokens: 5, OutputTokens: 2, TotalTokens: 7}})
	sess.AddRun(&run.Output{RunID: "run-2", Metrics: run.Metrics{InputTokens: 3, OutputTokens: 1, TotalTokens: 4}})
	assert.Equal(t, "run-2", sess.LastRun().RunID)

	// Re-adding an existing run replaces it in place.
	sess.AddRun(&run.Output{RunID: "run-1", Status: run.StatusCompleted})
	assert.Len(t, sess.Runs, 2)
	assert.Equal(t, run.StatusCompleted, sess.GetRun("run-1").Status)

	metrics := sess.Metrics()
	assert.Equal(t, int64(3), metrics.InputTokens)
	assert.Equal(t, int64(1), metrics.OutputTokens)
}
