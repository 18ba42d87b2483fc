package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search ids, emails and addresses by substring",
		Example: `  recidx search example.com
  recidx search 10.0.0 --limit 10 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum results (0 uses search.default_limit)")

	return cmd
}

func runSearch(cmd *cobra.Command, q string, limit int) (err error) {
	s, err := openSession(cmd, nil)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	if err := s.svc.Bootstrap(cmd.Context()); err != nil {
		return err
	}

	resp, err := s.svc.Search(q, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return s.out.JSON(resp)
	}
	if resp.Count == 0 {
		s.out.Warningf("no records match %q", resp.Query)
		return nil
	}
	printResults(s.out, resp.Results)
	return nil
}
