package orchestrator

import (
	"fmt"

	"github.com/agentic-hq/agentic/pkg/agent"
	"github.com/agentic-hq/agentic/pkg/models"
)

// node tracks one scenario's position in the dependency graph.
type node struct {
	scenario   *models.Scenario
	waiting    int // prerequisites not yet satisfied
	dependents []string
	dispatched bool
	done       bool
}

// schedule is the dependency-aware dispatch queue for one session. It is
// confined to the dispatch goroutine and needs no locking.
type schedule struct {
	order []string
	nodes map[string]*node
}

// newSchedule validates the batch (unique non-empty ids, known prerequisite
// names, no cycles) and builds the dispatch graph. Validation failures are
// configuration errors and fail the whole batch.
func newSchedule(scenarios []*models.Scenario) (*schedule, error) {
	s := &schedule{nodes: make(map[string]*node, len(scenarios))}
	for _, sc := range scenarios {
		if sc.ID == "" {
			return nil, fmt.Errorf("%w: scenario %q has no id", agent.ErrConfig, sc.Name)
		}
		if _, ok := s.nodes[sc.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate scenario id %q", agent.ErrConfig, sc.ID)
		}
		s.nodes[sc.ID] = &node{scenario: sc}
		s.order = append(s.order, sc.ID)
	}

	for _, id := range s.order {
		n := s.nodes[id]
		seen := make(map[string]bool, len(n.scenario.Prerequisites))
		for _, pre := range n.scenario.Prerequisites {
			if pre == id {
				return nil, fmt.Errorf("%w: scenario %q depends on itself", agent.ErrConfig, id)
			}
			dep, ok := s.nodes[pre]
			if !ok {
				return nil, fmt.Errorf("%w: scenario %q requires unknown prerequisite %q", agent.ErrConfig, id, pre)
			}
			if seen[pre] {
				continue
			}
			seen[pre] = true
			dep.dependents = append(dep.dependents, id)
			n.waiting++
		}
	}

	if err := s.checkAcyclic(); err != nil {
		return nil, err
	}
	return s, nil
}

// checkAcyclic runs Kahn's algorithm over a copy of the wait counts.
func (s *schedule) checkAcyclic() error {
	waits := make(map[string]int, len(s.nodes))
	var queue []string
	for id, n := range s.nodes {
		waits[id] = n.waiting
		if n.waiting == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, dep := range s.nodes[id].dependents {
			waits[dep]--
			if waits[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if processed != len(s.nodes) {
		var stuck []string
		for _, id := range s.order {
			if waits[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return fmt.Errorf("%w: prerequisite cycle involving %v", agent.ErrConfig, stuck)
	}
	return nil
}

// ready returns every scenario dispatchable right now, in input order, and
// marks each one dispatched.
func (s *schedule) ready() []*models.Scenario {
	var out []*models.Scenario
	for _, id := range s.order {
		n := s.nodes[id]
		if !n.dispatched && n.waiting == 0 {
			n.dispatched = true
			out = append(out, n.scenario)
		}
	}
	return out
}

// complete records one finished scenario. When it passed, dependents whose
// prerequisites are now all satisfied come back as newly ready. Otherwise
// every transitive dependent still pending comes back as skipped, already
// marked done so it is never dispatched or drained again.
func (s *schedule) complete(id string, passed bool) (ready, skipped []*models.Scenario) {
	n, ok := s.nodes[id]
	if !ok || n.done {
		return nil, nil
	}
	n.done = true

	if passed {
		for _, depID := range n.dependents {
			s.nodes[depID].waiting--
		}
		return s.ready(), nil
	}

	skip := make(map[string]bool)
	frontier := append([]string(nil), n.dependents...)
	for len(frontier) > 0 {
		depID := frontier[0]
		frontier = frontier[1:]
		dep := s.nodes[depID]
		if dep.done || dep.dispatched {
			continue
		}
		dep.done = true
		dep.dispatched = true
		skip[depID] = true
		frontier = append(frontier, dep.dependents...)
	}
	for _, oid := range s.order {
		if skip[oid] {
			skipped = append(skipped, s.nodes[oid].scenario)
		}
	}
	return nil, skipped
}

// remaining returns every scenario never handed out, marking it done; used
// to drain the graph after a halt.
func (s *schedule) remaining() []*models.Scenario {
	var out []*models.Scenario
	for _, id := range s.order {
		n := s.nodes[id]
		if !n.dispatched {
			n.dispatched = true
			n.done = true
			out = append(out, n.scenario)
		}
	}
	return out
}
