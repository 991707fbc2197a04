package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"sync"

	"github.com/agentic-hq/agentic/pkg/agent"
	"github.com/agentic-hq/agentic/pkg/models"
)

// lease is one checked-out agent plus the pool slot it returns to.
type lease struct {
	key   string
	agent agent.Agent
}

// agentPool owns every agent created during a session. Instances are keyed
// by agent type plus configuration hash and handed out one scenario at a
// time: an idle instance with the same key is reused, a busy one is never
// shared, and everything is torn down together at session end.
type agentPool struct {
	factory *agent.Factory

	mu      sync.Mutex
	idle    map[string][]agent.Agent
	all     []agent.Agent
	created int
	reused  int
}

func newAgentPool(factory *agent.Factory) *agentPool {
	return &agentPool{
		factory: factory,
		idle:    make(map[string][]agent.Agent),
	}
}

// specKey derives the reuse key for an agent spec: the agent type plus a
// hash over the sorted configuration entries.
func specKey(spec models.AgentSpec) string {
	keys := make([]string, 0, len(spec.Config))
	for k := range spec.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	io.WriteString(h, string(spec.Type))
	for _, k := range keys {
		io.WriteString(h, "\x00"+k+"\x01"+spec.Config[k])
	}
	return string(spec.Type) + "-" + hex.EncodeToString(h.Sum(nil))[:12]
}

// acquire returns an initialized agent for the spec, reusing an idle
// instance with an identical type and configuration when one exists.
func (p *agentPool) acquire(ctx context.Context, spec models.AgentSpec) (*lease, error) {
	key := specKey(spec)

	p.mu.Lock()
	if list := p.idle[key]; len(list) > 0 {
		a := list[len(list)-1]
		p.idle[key] = list[:len(list)-1]
		p.reused++
		p.mu.Unlock()
		return &lease{key: key, agent: a}, nil
	}
	p.mu.Unlock()

	// Construction and initialization happen outside the lock; Open may do
	// I/O and must not serialize unrelated workers.
	a, err := p.factory.Create(spec)
	if err != nil {
		return nil, err
	}
	if err := a.Initialize(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.all = append(p.all, a)
	p.created++
	p.mu.Unlock()
	return &lease{key: key, agent: a}, nil
}

// release returns one agent to the idle set.
func (p *agentPool) release(l *lease) {
	if l == nil {
		return
	}
	p.mu.Lock()
	p.idle[l.key] = append(p.idle[l.key], l.agent)
	p.mu.Unlock()
}

// releaseAll returns a scenario's whole agent set.
func (p *agentPool) releaseAll(leases []*lease) {
	for _, l := range leases {
		p.release(l)
	}
}

// shutdown tears down every agent created during the session. Cleanup is
// best-effort; agents log their own close failures.
func (p *agentPool) shutdown(ctx context.Context) {
	p.mu.Lock()
	agents := p.all
	p.all = nil
	p.idle = make(map[string][]agent.Agent)
	p.mu.Unlock()

	for _, a := range agents {
		_ = a.Cleanup(ctx)
	}
}

// counts reports how many agents were constructed and how many acquisitions
// were served from the idle set.
func (p *agentPool) counts() (created, reused int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created, p.reused
}
