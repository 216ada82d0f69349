package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacks-network/subdomain-registrar/internal/config"
	"github.com/stacks-network/subdomain-registrar/internal/supervisor"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Signal a running registrar process to shut down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Initialize(); err != nil {
				return fmt.Errorf("stop: load config: %w", err)
			}
			if err := supervisor.SignalStop(config.GetLockfile()); err != nil {
				return err
			}
			fmt.Println("stop signal sent")
			return nil
		},
	}
}
