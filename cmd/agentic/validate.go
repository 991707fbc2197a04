package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-hq/agentic/pkg/scenario"
)

type validateOptions struct {
	root      *rootOptions
	directory string
	file      string
	strict    bool
}

func newValidateCmd(root *rootOptions) *cobra.Command {
	opts := &validateOptions{root: root}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that scenario files parse and are well-formed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.directory, "directory", "d", "scenarios",
		"scenario YAML directory to validate")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "single scenario file to validate")
	cmd.Flags().BoolVar(&opts.strict, "strict", false,
		"also check verification operators, patterns and numeric expectations")
	cmd.MarkFlagsMutuallyExclusive("directory", "file")
	return cmd
}

func (o *validateOptions) run(cmd *cobra.Command) error {
	if _, err := o.root.loadConfig(cmd.Context()); err != nil {
		return err
	}

	path := o.directory
	if o.file != "" {
		path = o.file
	}

	scenarios, err := scenario.Load(path)
	if err != nil {
		return err
	}

	var problems []string
	seen := make(map[string]string)
	for _, sc := range scenarios {
		if prev, dup := seen[sc.ID]; dup {
			problems = append(problems,
				fmt.Sprintf("duplicate scenario id %q (%s and %s)", sc.ID, prev, displayName(sc)))
		} else {
			seen[sc.ID] = displayName(sc)
		}
		if o.strict {
			if err := scenario.ValidateStrict(sc); err != nil {
				problems = append(problems, err.Error())
			}
		}
	}

	out := cmd.OutOrStdout()
	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintln(out, p)
		}
		return fmt.Errorf("validation failed for %s: %d problem(s)", path, len(problems))
	}
	fmt.Fprintf(out, "%d scenarios valid\n", len(scenarios))
	return nil
}
