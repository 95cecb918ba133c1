// Package root wires the tandem command line interface.
package root

import (
	"github.com/spf13/cobra"

	"github.com/tandem-run/tandem/pkg/logging"
)

type rootFlags struct {
	debugMode   bool
	logFilePath string
	logClose    func() error
}

func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "tandem",
		Short: "tandem - run agents and teams",
		Long:  "tandem runs configured agents and agent teams and streams their run events",
		Example: `  tandem run ./team.yaml "What changed in the last release?"
  tandem sessions list`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			closeFn, err := logging.Setup(logging.Config{
				Debug: flags.debugMode,
				File:  flags.logFilePath,
			})
			if err != nil {
				return err
			}
			flags.logClose = closeFn
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if flags.logClose != nil {
				return flags.logClose()
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVar(&flags.debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.logFilePath, "log-file", "", "Write logs to a rotating file instead of stderr")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
