package cli

import (
	"github.com/MakeNowJust/heredoc"
	"github.com/goto/salt/cmdx"
	"github.com/spf13/cobra"
)

func New(cfg *Config) *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:           "geocat <command> <subcommand> [flags]",
		Short:         "Geospatial record consolidation service",
		Long:          "Consolidates harvested geospatial metadata records into canonical datasets.",
		SilenceErrors: true,
		SilenceUsage:  false,
		Example: heredoc.Doc(`
		$ geocat server start
		$ geocat worker start
		$ geocat migrate
		`),
		Annotations: map[string]string{
			"group": "core",
			"help:learn": heredoc.Doc(`
				Use 'geocat <command> --help' for info about a command.
			`),
		},
	}

	rootCmd.AddCommand(
		serverCommand(cfg),
		workerCommand(cfg),
		migrateCommand(cfg),
		configCommand(cfg),
		versionCommand(),
	)

	// Help topics
	rootCmd.AddCommand(cmdx.SetCompletionCmd("geocat"))
	rootCmd.AddCommand(cmdx.SetRefCmd(rootCmd))
	cmdx.SetHelp(rootCmd)

	rootCmd.PersistentFlags().StringP(configFlag, "c", "", "Override config file")

	return rootCmd
}
