package scenario

import "github.com/agentic-hq/agentic/pkg/models"

// Filter narrows a loaded scenario set for one command invocation.
type Filter struct {
	// Tag keeps only scenarios carrying this tag when non-empty.
	Tag string
	// IncludeDisabled keeps enabled:false scenarios, for listing.
	IncludeDisabled bool
}

// Apply returns the scenarios passing the filter, preserving order.
func (f Filter) Apply(scenarios []*models.Scenario) []*models.Scenario {
	kept := make([]*models.Scenario, 0, len(scenarios))
	for _, sc := range scenarios {
		if !f.IncludeDisabled && !sc.IsEnabled() {
			continue
		}
		if f.Tag != "" && !sc.HasTag(f.Tag) {
			continue
		}
		kept = append(kept, sc)
	}
	return kept
}
