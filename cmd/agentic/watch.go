package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/agentic-hq/agentic/pkg/orchestrator"
	"github.com/agentic-hq/agentic/pkg/scenario"
)

// debounceDelay coalesces the burst of events an editor save produces
// into a single rerun.
const debounceDelay = 500 * time.Millisecond

type watchOptions struct {
	root      *rootOptions
	directory string
	tag       string
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	opts := &watchOptions{root: root}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rerun scenarios whenever their files change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.directory, "directory", "d", "scenarios",
		"scenario YAML directory to watch")
	cmd.Flags().StringVar(&opts.tag, "filter", "",
		"run only scenarios carrying this tag")
	return cmd
}

func (o *watchOptions) run(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := o.root.loadConfig(ctx)
	if err != nil {
		return err
	}
	orch, terminals, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer terminals.TerminateAll()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(o.directory); err != nil {
		return fmt.Errorf("failed to watch %s: %w", o.directory, err)
	}

	log := slog.With("component", "watch")
	log.Info("Watching for scenario changes", "directory", o.directory)

	o.runOnce(ctx, cmd, orch)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			log.Info("Watch stopped")
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isScenarioFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("Scenario file changed", "file", ev.Name, "op", ev.Op.String())
			debounce = time.After(debounceDelay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("File watcher error", "error", err)
		case <-debounce:
			debounce = nil
			o.runOnce(ctx, cmd, orch)
		}
	}
}

// runOnce executes the current scenario set. Load and batch failures are
// logged rather than returned so the watch loop survives broken edits.
func (o *watchOptions) runOnce(ctx context.Context, cmd *cobra.Command, orch *orchestrator.Orchestrator) {
	if ctx.Err() != nil {
		return
	}
	scenarios, err := scenario.Load(o.directory)
	if err != nil {
		slog.Error("Skipping run, scenarios failed to load", "error", err)
		return
	}
	scenarios = scenario.Filter{Tag: o.tag}.Apply(scenarios)
	if len(scenarios) == 0 {
		slog.Warn("No enabled scenarios to run", "directory", o.directory)
		return
	}
	session, err := orch.RunBatch(ctx, scenarios)
	if err != nil {
		slog.Error("Batch did not run", "error", err)
		return
	}
	printSummary(cmd.OutOrStdout(), session)
}

func isScenarioFile(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
