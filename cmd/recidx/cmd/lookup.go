package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/recidx/internal/config"
)

func newLookupCmd() *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "lookup <id>",
		Short: "Look up a record by id",
		Long: `Look up a record by id. The id is resolved exactly first, then through
known id variations, then after trimming, case-folding or keeping only
digits, and finally (with store.loose_lookup) by substring.`,
		Example: `  recidx lookup 12345
  recidx lookup " USER-42 " --json
  recidx lookup 99999 --live`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(cmd, args[0], live)
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Scan the sources when the id is not indexed")

	return cmd
}

func runLookup(cmd *cobra.Command, id string, live bool) (err error) {
	s, err := openSession(cmd, func(c *config.Config) {
		if live {
			c.Lookup.LiveFallback = true
		}
	})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	ctx := cmd.Context()
	if err := s.svc.Bootstrap(ctx); err != nil {
		return err
	}

	res, err := s.svc.LookupByID(ctx, id)
	if err != nil {
		return err
	}
	if jsonOutput {
		return s.out.JSON(res)
	}
	printResult(s.out, res)
	return nil
}
