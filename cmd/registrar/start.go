package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stacks-network/subdomain-registrar/internal/committer"
	"github.com/stacks-network/subdomain-registrar/internal/config"
	"github.com/stacks-network/subdomain-registrar/internal/existence"
	"github.com/stacks-network/subdomain-registrar/internal/intake"
	"github.com/stacks-network/subdomain-registrar/internal/logging"
	"github.com/stacks-network/subdomain-registrar/internal/namingapi"
	"github.com/stacks-network/subdomain-registrar/internal/queuestore"
	"github.com/stacks-network/subdomain-registrar/internal/supervisor"
	"github.com/stacks-network/subdomain-registrar/internal/worker"
	"github.com/stacks-network/subdomain-registrar/internal/zonefile"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "start <parent-domain>",
		Short:   "Start the registrar for a parent domain",
		Example: "registrar service start example.id",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(args[0])
		},
	}
}

func runStart(parentDomain string) error {
	if err := config.Initialize(); err != nil {
		return fmt.Errorf("start: load config: %w", err)
	}

	log := logging.New(config.GetLogfile())
	log.Info("registrar: starting", "parent", parentDomain)

	store, err := queuestore.Open(config.GetSubdomainRegistrarDBPath(), log)
	if err != nil {
		return fmt.Errorf("start: open queue store: %w", err)
	}

	apiClient := namingapi.New(config.GetCoreAPIEndpoint(), config.GetCoreAPIAuthentication(), 0)
	oracle := existence.NewHTTPOracle(config.GetCoreAPIEndpoint(), http.DefaultClient, config.GetCoreAPIAuthentication())
	builder := zonefile.NewDefaultBuilder(oracle)

	c := committer.New(parentDomain, store, builder, apiClient, config.GetTxLimit(), log)
	w := worker.New(c, config.GetTxFrequency(), log)

	addr := net.JoinHostPort(config.GetAPIBindAddress(), strconv.Itoa(config.GetAPIBindPort()))
	srv := intake.New(parentDomain, addr, store, oracle, log)

	sup := &supervisor.Supervisor{
		LockfilePath: config.GetLockfile(),
		Worker:       w,
		Server:       srv,
		Log:          log,
	}

	defer store.Close()
	return sup.Run(context.Background())
}
