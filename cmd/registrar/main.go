// Command registrar runs the subdomain registrar's durable batching
// pipeline: service start <parent-domain> acquires the singleton lock
// and starts the Registrar Worker and Intake RPC; service stop signals
// a running instance to shut down.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "registrar",
		Short: "Durable batching pipeline for blockchain subdomain registration",
	}

	service := &cobra.Command{
		Use:   "service",
		Short: "Manage the registrar's background process",
	}
	service.AddCommand(newStartCmd())
	service.AddCommand(newStopCmd())
	root.AddCommand(service)
	return root
}
