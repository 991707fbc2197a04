// Package models defines the shared data model: scenarios, steps,
// verifications, execution results, sessions, and triage records.
package models

// AgentType identifies which agent implementation executes a scenario role.
type AgentType string

const (
	AgentTypeAPI           AgentType = "api"
	AgentTypeCLI           AgentType = "cli"
	AgentTypeTUI           AgentType = "tui"
	AgentTypeUI            AgentType = "ui"
	AgentTypeSystem        AgentType = "system"
	AgentTypeIssue         AgentType = "issue"
	AgentTypePriority      AgentType = "priority"
	AgentTypeComprehension AgentType = "comprehension"
)

// ValidAgentTypes lists every agent type the factory can construct.
var ValidAgentTypes = []AgentType{
	AgentTypeAPI, AgentTypeCLI, AgentTypeTUI, AgentTypeUI,
	AgentTypeSystem, AgentTypeIssue, AgentTypePriority, AgentTypeComprehension,
}

// IsValid reports whether t names a known agent type.
func (t AgentType) IsValid() bool {
	for _, v := range ValidAgentTypes {
		if t == v {
			return true
		}
	}
	return false
}

// AgentSpec declares the agent backing a logical role in a scenario.
type AgentSpec struct {
	Type   AgentType         `json:"type" yaml:"type"`
	Config map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

// Scenario is a named, immutable unit of work: ordered steps plus
// verifications, cleanup steps, and scheduling metadata. Scenarios are owned
// by the caller; the orchestrator borrows them for the duration of a session.
type Scenario struct {
	ID            string               `json:"id" yaml:"id"`
	Name          string               `json:"name" yaml:"name"`
	Description   string               `json:"description,omitempty" yaml:"description,omitempty"`
	Prerequisites []string             `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty"`
	Agents        map[string]AgentSpec `json:"agents,omitempty" yaml:"agents,omitempty"`
	Steps         []Step               `json:"steps" yaml:"steps"`
	Verifications []Verification       `json:"verifications,omitempty" yaml:"verifications,omitempty"`
	Cleanup       []Step               `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`
	Environment   map[string]string    `json:"environment,omitempty" yaml:"environment,omitempty"`
	TimeoutMs     int64                `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
	Retries       *int                 `json:"retries,omitempty" yaml:"retries,omitempty"`
	PriorityHint  Priority             `json:"priorityHint,omitempty" yaml:"priorityHint,omitempty"`
	Tags          []string             `json:"tags,omitempty" yaml:"tags,omitempty"`
	Enabled       *bool                `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// ContinueOnFailure keeps later steps running after a failed step.
	// Individual steps may opt in via Step.ContinueOnFailure even when this
	// is false.
	ContinueOnFailure bool `json:"continueOnFailure,omitempty" yaml:"continueOnFailure,omitempty"`
}

// IsEnabled treats a missing enabled field as true.
func (s *Scenario) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// HasTag reports whether the scenario carries the given tag.
func (s *Scenario) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Step is one action, the atomic unit of execution. Action is a lowercase
// verb whose meaning is agent-type-specific; Target, Value, and Expected are
// free-form strings parsed lazily inside each agent's dispatcher.
type Step struct {
	Action            string `json:"action" yaml:"action"`
	Target            string `json:"target,omitempty" yaml:"target,omitempty"`
	Value             string `json:"value,omitempty" yaml:"value,omitempty"`
	Expected          string `json:"expected,omitempty" yaml:"expected,omitempty"`
	TimeoutMs         int64  `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
	Description       string `json:"description,omitempty" yaml:"description,omitempty"`
	ContinueOnFailure bool   `json:"continueOnFailure,omitempty" yaml:"continueOnFailure,omitempty"`
}

// VerificationOperator compares an observed value against Verification.Expected.
type VerificationOperator string

const (
	OperatorEquals      VerificationOperator = "equals"
	OperatorContains    VerificationOperator = "contains"
	OperatorMatches     VerificationOperator = "matches"
	OperatorGreaterThan VerificationOperator = "greaterThan"
	OperatorLessThan    VerificationOperator = "lessThan"
	OperatorExists      VerificationOperator = "exists"
)

// Verification is a post-condition checked against the latest agent state
// after the step loop completes.
type Verification struct {
	Type        string               `json:"type" yaml:"type"`
	Target      string               `json:"target" yaml:"target"`
	Expected    string               `json:"expected,omitempty" yaml:"expected,omitempty"`
	Operator    VerificationOperator `json:"operator,omitempty" yaml:"operator,omitempty"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
}
