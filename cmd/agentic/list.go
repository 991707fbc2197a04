package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-hq/agentic/pkg/models"
	"github.com/agentic-hq/agentic/pkg/scenario"
)

type listOptions struct {
	root      *rootOptions
	directory string
	tag       string
	asJSON    bool
	all       bool
}

// listEntry is the machine-readable listing shape consumed by front-ends.
type listEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func newListCmd(root *rootOptions) *cobra.Command {
	opts := &listOptions{root: root}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the scenarios a directory provides",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.directory, "directory", "d", "scenarios",
		"scenario YAML directory or single file")
	cmd.Flags().StringVar(&opts.tag, "filter", "", "list only scenarios carrying this tag")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "emit a JSON array instead of text")
	cmd.Flags().BoolVar(&opts.all, "all", false, "include disabled scenarios")
	return cmd
}

func (o *listOptions) run(cmd *cobra.Command) error {
	if _, err := o.root.loadConfig(cmd.Context()); err != nil {
		return err
	}

	scenarios, err := scenario.Load(o.directory)
	if err != nil {
		return err
	}
	scenarios = scenario.Filter{Tag: o.tag, IncludeDisabled: o.all}.Apply(scenarios)

	if o.asJSON {
		entries := make([]listEntry, 0, len(scenarios))
		for _, sc := range scenarios {
			entries = append(entries, listEntry{
				Name:        displayName(sc),
				Description: sc.Description,
				Tags:        sc.Tags,
			})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, sc := range scenarios {
		line := displayName(sc)
		if len(sc.Tags) > 0 {
			line += "  [" + strings.Join(sc.Tags, ", ") + "]"
		}
		if !sc.IsEnabled() {
			line += "  (disabled)"
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
		if sc.Description != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", sc.Description)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d scenarios\n", len(scenarios))
	return nil
}

func displayName(sc *models.Scenario) string {
	if sc.Name != "" {
		return sc.Name
	}
	return sc.ID
}
