package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-hq/agentic/pkg/models"
	"github.com/agentic-hq/agentic/pkg/scenario"
)

type runOptions struct {
	root      *rootOptions
	directory string
	name      string
	tag       string
	parallel  int
	timeoutMs int64
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{root: root}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute scenarios and exit non-zero unless every one passes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.directory, "directory", "d", "scenarios",
		"scenario YAML directory or single file")
	cmd.Flags().StringVarP(&opts.name, "scenario", "s", "",
		"run only the scenario with this id or name")
	cmd.Flags().StringVar(&opts.tag, "filter", "",
		"run only scenarios carrying this tag")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 0,
		"scenario workers, overrides the configured maxParallel")
	cmd.Flags().Int64VarP(&opts.timeoutMs, "timeout", "t", 0,
		"default per-scenario timeout in milliseconds")
	return cmd
}

func (o *runOptions) run(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := o.root.loadConfig(ctx)
	if err != nil {
		return err
	}
	if o.parallel > 0 {
		cfg.Execution.MaxParallel = o.parallel
	}
	if o.timeoutMs > 0 {
		cfg.Execution.DefaultTimeoutMs = o.timeoutMs
	}

	scenarios, err := scenario.Load(o.directory)
	if err != nil {
		return err
	}
	scenarios = scenario.Filter{Tag: o.tag}.Apply(scenarios)
	if o.name != "" {
		scenarios = selectScenario(scenarios, o.name)
		if len(scenarios) == 0 {
			return fmt.Errorf("no enabled scenario named %q under %s", o.name, o.directory)
		}
	}
	if len(scenarios) == 0 {
		return fmt.Errorf("no enabled scenarios under %s", o.directory)
	}

	orch, terminals, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer terminals.TerminateAll()

	session, err := orch.RunBatch(ctx, scenarios)
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), session)
	if !session.AllPassed() {
		return fmt.Errorf("%d of %d scenarios did not pass",
			session.Summary.Failed+session.Summary.Error, session.Summary.Total)
	}
	return nil
}

// selectScenario keeps the scenarios whose id or display name matches.
func selectScenario(scenarios []*models.Scenario, name string) []*models.Scenario {
	var kept []*models.Scenario
	for _, sc := range scenarios {
		if sc.ID == name || sc.Name == name {
			kept = append(kept, sc)
		}
	}
	return kept
}

func printSummary(w io.Writer, session *models.TestSession) {
	fmt.Fprintln(w)
	for _, r := range session.Results {
		name := r.ScenarioName
		if name == "" {
			name = r.ScenarioID
		}
		fmt.Fprintf(w, "%-8s %s (%dms)\n", strings.ToUpper(string(r.Status)), name, r.DurationMs)
		for _, f := range r.Failures {
			fmt.Fprintf(w, "         %s\n", f.Message)
		}
	}
	s := session.Summary
	fmt.Fprintf(w, "\n%d scenarios: %d passed, %d failed, %d errored, %d skipped (%s)\n",
		s.Total, s.Passed, s.Failed, s.Error, s.Skipped,
		session.EndTime.Sub(session.StartTime).Round(time.Millisecond))
}
