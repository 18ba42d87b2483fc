package cmd

import (
	"errors"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Load the index and report service name, version and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			s, err := openSession(cmd, nil)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.close()) }()

			if err := s.svc.Bootstrap(cmd.Context()); err != nil {
				return err
			}

			info := s.svc.Ping()
			if jsonOutput {
				return s.out.JSON(info)
			}
			s.out.KeyValue(
				"service", info.Service,
				"version", info.Version,
				"records", strconv.Itoa(info.Records),
				"time", info.Time.Format(time.RFC3339),
			)
			return nil
		},
	}
}
