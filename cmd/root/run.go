package root

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tandem-run/tandem/pkg/config"
	"github.com/tandem-run/tandem/pkg/loader"
	"github.com/tandem-run/tandem/pkg/run"
	"github.com/tandem-run/tandem/pkg/runtime"
	"github.com/tandem-run/tandem/pkg/session"
	"github.com/tandem-run/tandem/pkg/team"
	"github.com/tandem-run/tandem/pkg/telemetry"
	"github.com/tandem-run/tandem/pkg/version"
)

type runFlags struct {
	component string
	userID    string
	sessionID string
	database  string
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <config.yaml> [message]",
		Short: "Run an agent or team and stream its events",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, args, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.component, "component", "c", "root", "Agent or team to run")
	cmd.Flags().StringVar(&flags.userID, "user", "", "User id recorded on the run")
	cmd.Flags().StringVar(&flags.sessionID, "session", "", "Continue an existing session")
	cmd.Flags().StringVar(&flags.database, "database", "", "SQLite database for sessions (overrides config)")

	return cmd
}

func runCommand(cmd *cobra.Command, args []string, flags runFlags) error {
	ctx := cmd.Context()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	if err := telemetry.Init(ctx, version.Version); err != nil {
		slog.Warn("Failed to initialize tracing", "error", err)
	}

	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}

	members, err := loader.Load(cfg)
	if err != nil {
		return err
	}
	root, ok := members[flags.component]
	if !ok {
		return fmt.Errorf("unknown component %q", flags.component)
	}

	store, err := openStore(cfg, flags.database)
	if err != nil {
		return err
	}

	rt, err := runtime.New(root, runtime.WithSessionStore(store))
	if err != nil {
		return err
	}

	sess, err := resolveSession(ctx, store, root, flags)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) == 2 {
		return streamOnce(ctx, rt, sess, args[1], flags.userID, out)
	}

	// Interactive conversation: one run per input line.
	fmt.Fprintf(out, "session %s (%s). Empty line exits.\n", sess.ID, sess.ComponentID())
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			return nil
		}
		if err := streamOnce(ctx, rt, sess, input, flags.userID, out); err != nil {
			return err
		}
	}
}

func openStore(cfg *config.Config, override string) (session.Store, error) {
	path := cfg.Session.Database
	if override != "" {
		path = override
	}
	if path == "" {
		return session.NewInMemoryStore(), nil
	}
	return session.NewSQLiteStore(path)
}

func resolveSession(ctx context.Context, store session.Store, root team.Member, flags runFlags) (*session.Session, error) {
	sessionType := session.TypeAgent
	if _, isTeam := root.(*team.Team); isTeam {
		sessionType = session.TypeTeam
	}

	if flags.sessionID != "" {
		existing, err := store.GetSession(ctx, flags.sessionID, sessionType, flags.userID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	opts := []session.Opt{session.WithUserID(flags.userID)}
	if flags.sessionID != "" {
		opts = append(opts, session.WithID(flags.sessionID))
	}
	return session.New(sessionType, root.ID(), opts...), nil
}

func streamOnce(ctx context.Context, rt *runtime.Runtime, sess *session.Session, input, userID string, out io.Writer) error {
	events, err := rt.RunStream(ctx, sess, input, runtime.WithUserID(userID))
	if err != nil {
		return err
	}

	for event := range events {
		printEvent(out, event)
	}
	return ctx.Err()
}

func printEvent(out io.Writer, event run.Event) {
	switch e := event.(type) {
	case *run.RunStartedEvent:
		fmt.Fprintf(out, "[%s] model=%s\n", e.EventKind(), e.Model)
	case *run.RunContentEvent:
		if s, ok := e.Content.(string); ok && e.ContentType == run.ContentTypeText {
			fmt.Fprint(out, s)
		}
	case *run.ToolCallStartedEvent:
		fmt.Fprintf(out, "\n[%s] %s(%s)\n", e.EventKind(), e.Tool.Name, e.Tool.Arguments)
	case *run.ToolCallCompletedEvent:
		fmt.Fprintf(out, "[%s] %s -> %s\n", e.EventKind(), e.Tool.Name, truncate(e.Tool.Result, 200))
	case *run.RunPausedEvent:
		fmt.Fprintf(out, "\n[%s] %d tool call(s) awaiting confirmation (run %s)\n", e.EventKind(), len(e.Tools), e.RunID)
	case *run.RunCompletedEvent:
		fmt.Fprintf(out, "\n[%s]\n", e.EventKind())
	case *run.RunErrorEvent:
		fmt.Fprintf(out, "\n[%s] %s\n", e.EventKind(), e.Error)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
