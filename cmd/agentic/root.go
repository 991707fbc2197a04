package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentic-hq/agentic/pkg/agent/registry"
	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/logging"
	"github.com/agentic-hq/agentic/pkg/notify"
	"github.com/agentic-hq/agentic/pkg/orchestrator"
	"github.com/agentic-hq/agentic/pkg/report"
	"github.com/agentic-hq/agentic/pkg/terminal"
	"github.com/agentic-hq/agentic/pkg/triage"
)

// rootOptions carries the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "agentic",
		Short: "Autonomous test scenario orchestrator",
		Long: `agentic executes YAML test scenarios through polymorphic agents:
HTTP APIs, command-line and full-screen terminal programs, web pages,
system resources, issue trackers, and LLM comprehension checks.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"configuration file (default ./agentic.yaml when present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"log level: debug, info, warn, error")

	cmd.AddCommand(
		newRunCmd(opts),
		newListCmd(opts),
		newValidateCmd(opts),
		newWatchCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig resolves configuration and installs the process logger. The
// --log-level flag wins over the configured level.
func (o *rootOptions) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Initialize(ctx, o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// buildOrchestrator assembles the orchestrator with the full agent factory
// and whatever post-processing the configuration enables.
func buildOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, *terminal.Registry, error) {
	factory, terminals := registry.NewFactory(cfg)

	analyzer, err := triage.NewAnalyzer(cfg.Triage, nil)
	if err != nil {
		terminals.TerminateAll()
		return nil, nil, err
	}

	opts := []orchestrator.Option{orchestrator.WithAnalyzer(analyzer)}
	if rep := report.NewReporter(cfg.Reporter); rep != nil {
		opts = append(opts, orchestrator.WithReporter(rep))
	}
	if svc := notify.NewService(cfg.Notifications); svc != nil {
		opts = append(opts, orchestrator.WithNotifier(svc))
	}
	return orchestrator.New(cfg, factory, opts...), terminals, nil
}
