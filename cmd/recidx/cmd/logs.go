package cmd

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/recidx/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var (
		lines  int
		level  string
		filter string
		file   string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the debug log",
		Long: `Show the last lines of the debug log written by --debug runs
(~/.recidx/logs/recidx.log).`,
		Example: `  recidx logs -n 100
  recidx logs --level warn --filter source`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := logging.FindLogFile(file)
			if err != nil {
				return err
			}
			opts := logging.TailOptions{Lines: lines, Level: level}
			if filter != "" {
				if opts.Pattern, err = regexp.Compile(filter); err != nil {
					return fmt.Errorf("invalid filter pattern: %w", err)
				}
			}
			entries, err := logging.Tail(path, opts)
			if err != nil {
				return err
			}
			for _, line := range entries {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&filter, "filter", "", "Only lines matching this regex")
	cmd.Flags().StringVar(&file, "file", "", "Log file path (default ~/.recidx/logs/recidx.log)")

	return cmd
}
