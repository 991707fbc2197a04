package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentic-hq/agentic/pkg/api"
)

type serveOptions struct {
	root *rootOptions
	host string
	port int
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{root: root}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST intake server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "", "listen address, overrides the configured host")
	cmd.Flags().IntVar(&opts.port, "port", 0, "listen port, overrides the configured port")
	return cmd
}

func (o *serveOptions) run(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := o.root.loadConfig(ctx)
	if err != nil {
		return err
	}
	if o.host != "" {
		cfg.Server.Host = o.host
	}
	if o.port > 0 {
		cfg.Server.Port = o.port
	}

	orch, terminals, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer terminals.TerminateAll()

	return api.NewServer(cfg, orch).Start(ctx)
}
