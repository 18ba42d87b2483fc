package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	rxerrors "github.com/Aman-CERP/recidx/internal/errors"
	"github.com/Aman-CERP/recidx/internal/service"
)

func newBulkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bulk <id>[,<id>...]",
		Short: "Look up many ids exactly",
		Long: `Look up a comma-separated list of ids. Each id is trimmed and matched
exactly; no variation or substring matching is applied.`,
		Example: `  recidx bulk "u1, u2, u3"
  recidx bulk u1 u2 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBulk(cmd, strings.Join(args, ","))
		},
	}
}

func runBulk(cmd *cobra.Command, raw string) (err error) {
	ids := service.SplitIDs(raw)
	if len(ids) == 0 {
		return rxerrors.ValidationError("no ids given", nil)
	}

	s, err := openSession(cmd, nil)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	if err := s.svc.Bootstrap(cmd.Context()); err != nil {
		return err
	}

	resp := s.svc.BulkLookup(ids)
	if jsonOutput {
		return s.out.JSON(resp)
	}
	if len(resp.Found) > 0 {
		printResults(s.out, resp.Found)
	}
	if len(resp.NotFound) > 0 {
		s.out.Warningf("not found: %s", strings.Join(resp.NotFound, ", "))
	}
	return nil
}
