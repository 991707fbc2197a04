// Package registry assembles the full agent factory from configuration,
// one constructor per agent type. The CLI and TUI constructors share a
// single terminal process registry; callers terminate it on shutdown.
package registry

import (
	"github.com/agentic-hq/agentic/pkg/agent"
	agentapi "github.com/agentic-hq/agentic/pkg/agent/api"
	agentcli "github.com/agentic-hq/agentic/pkg/agent/cli"
	"github.com/agentic-hq/agentic/pkg/agent/issue"
	"github.com/agentic-hq/agentic/pkg/agent/llm"
	"github.com/agentic-hq/agentic/pkg/agent/priority"
	"github.com/agentic-hq/agentic/pkg/agent/system"
	agentui "github.com/agentic-hq/agentic/pkg/agent/ui"
	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/models"
	"github.com/agentic-hq/agentic/pkg/terminal"
)

// NewFactory registers every agent variant against its configuration
// section. The returned terminal registry tracks child processes spawned
// by CLI/TUI agents for final teardown.
func NewFactory(cfg *config.Config) (*agent.Factory, *terminal.Registry) {
	terminals := terminal.NewRegistry(cfg.Terminal.GracePeriod())

	f := agent.NewFactory()
	f.Register(models.AgentTypeAPI, agentapi.New(cfg.HTTP))
	f.Register(models.AgentTypeCLI, agentcli.New(models.AgentTypeCLI, cfg.Terminal, terminals))
	f.Register(models.AgentTypeTUI, agentcli.New(models.AgentTypeTUI, cfg.Terminal, terminals))
	f.Register(models.AgentTypeUI, agentui.New(cfg.UI))
	f.Register(models.AgentTypeSystem, system.New())
	f.Register(models.AgentTypeComprehension, llm.New(cfg.Comprehension))
	f.Register(models.AgentTypeIssue, issue.New(cfg.Reporter))
	f.Register(models.AgentTypePriority, priority.New(cfg.Triage))
	return f, terminals
}
