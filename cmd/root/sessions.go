package root

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tandem-run/tandem/pkg/session"
)

type sessionsFlags struct {
	database    string
	sessionType string
	userID      string
	name        string
	limit       int
	page        int
	sortBy      string
	sortDesc    bool
}

func newSessionsCmd() *cobra.Command {
	var flags sessionsFlags

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage stored sessions",
	}
	cmd.PersistentFlags().StringVar(&flags.database, "database", "tandem.db", "SQLite database for sessions")
	cmd.PersistentFlags().StringVar(&flags.sessionType, "type", string(session.TypeAgent), "Session type (agent or team)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := session.NewSQLiteStore(flags.database)
			if err != nil {
				return err
			}
			defer store.Close()

			order := session.SortDesc
			if !flags.sortDesc {
				order = session.SortAsc
			}
			sessions, total, err := store.GetSessions(cmd.Context(), session.Type(flags.sessionType), session.Filters{
				UserID:       flags.userID,
				NameContains: flags.name,
				Limit:        flags.limit,
				Page:         flags.page,
				SortBy:       flags.sortBy,
				SortOrder:    order,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCOMPONENT\tNAME\tRUNS\tCREATED")
			for _, sess := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					sess.ID, sess.ComponentID(), sess.Name(), len(sess.Runs),
					time.Unix(sess.CreatedAt, 0).Format(time.RFC3339))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d session(s)\n", len(sessions), total)
			return nil
		},
	}
	list.Flags().StringVar(&flags.userID, "user", "", "Filter by user id")
	list.Flags().StringVar(&flags.name, "name", "", "Filter by session name substring")
	list.Flags().IntVar(&flags.limit, "limit", 0, "Page size (0 = all)")
	list.Flags().IntVar(&flags.page, "page", 1, "Page number")
	list.Flags().StringVar(&flags.sortBy, "sort", "created_at", "Sort column (created_at, updated_at, session_name)")
	list.Flags().BoolVar(&flags.sortDesc, "desc", false, "Sort descending")

	rename := &cobra.Command{
		Use:   "rename <session-id> <name>",
		Short: "Rename a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := session.NewSQLiteStore(flags.database)
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := store.RenameSession(cmd.Context(), args[0], session.Type(flags.sessionType), args[1])
			if err != nil {
				if errors.Is(err, session.ErrNotFound) {
					return fmt.Errorf("session %s not found", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %q\n", sess.ID, sess.Name())
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <session-id>...",
		Short: "Delete sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := session.NewSQLiteStore(flags.database)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				if err := store.DeleteSession(cmd.Context(), args[0]); err != nil {
					if errors.Is(err, session.ErrNotFound) {
						return fmt.Errorf("session %s not found", args[0])
					}
					return err
				}
			} else if err := store.DeleteSessions(cmd.Context(), args); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d session(s)\n", len(args))
			return nil
		},
	}

	cmd.AddCommand(list, rename, del)
	return cmd
}
