package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-hq/agentic/pkg/agent"
	"github.com/agentic-hq/agentic/pkg/models"
)

// stubFactory registers a counting constructor and exposes the drivers it
// handed out.
type stubFactory struct {
	*agent.Factory

	mu      sync.Mutex
	drivers []*agent.StubDriver
	openErr error
}

func newStubFactory(types ...models.AgentType) *stubFactory {
	if len(types) == 0 {
		types = []models.AgentType{models.AgentTypeAPI}
	}
	f := &stubFactory{Factory: agent.NewFactory()}
	for _, at := range types {
		f.Register(at, func(models.AgentSpec) (agent.Agent, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			d := &agent.StubDriver{AgentType: at, OpenErr: f.openErr}
			f.drivers = append(f.drivers, d)
			return agent.NewBaseAgent(d), nil
		})
	}
	return f
}

func (f *stubFactory) constructed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.drivers)
}

func (f *stubFactory) allDrivers() []*agent.StubDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*agent.StubDriver(nil), f.drivers...)
}

func TestSpecKey(t *testing.T) {
	base := models.AgentSpec{
		Type:   models.AgentTypeAPI,
		Config: map[string]string{"baseUrl": "http://a", "timeout": "5"},
	}

	t.Run("key order does not matter", func(t *testing.T) {
		same := models.AgentSpec{
			Type:   models.AgentTypeAPI,
			Config: map[string]string{"timeout": "5", "baseUrl": "http://a"},
		}
		assert.Equal(t, specKey(base), specKey(same))
	})

	t.Run("config change changes the key", func(t *testing.T) {
		changed := models.AgentSpec{
			Type:   models.AgentTypeAPI,
			Config: map[string]string{"baseUrl": "http://b", "timeout": "5"},
		}
		assert.NotEqual(t, specKey(base), specKey(changed))
	})

	t.Run("type change changes the key", func(t *testing.T) {
		cli := models.AgentSpec{Type: models.AgentTypeCLI, Config: base.Config}
		assert.NotEqual(t, specKey(base), specKey(cli))
	})

	t.Run("key names the type", func(t *testing.T) {
		assert.Contains(t, specKey(base), "api-")
	})
}

func TestPoolReusesIdleAgents(t *testing.T) {
	factory := newStubFactory()
	pool := newAgentPool(factory.Factory)
	spec := models.AgentSpec{Type: models.AgentTypeAPI, Config: map[string]string{"k": "v"}}

	l1, err := pool.acquire(context.Background(), spec)
	require.NoError(t, err)
	pool.release(l1)

	l2, err := pool.acquire(context.Background(), spec)
	require.NoError(t, err)
	assert.Same(t, l1.agent, l2.agent)

	created, reused := pool.counts()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, reused)
	assert.Equal(t, 1, factory.constructed())
}

func TestPoolNeverSharesBusyAgents(t *testing.T) {
	factory := newStubFactory()
	pool := newAgentPool(factory.Factory)
	spec := models.AgentSpec{Type: models.AgentTypeAPI}

	l1, err := pool.acquire(context.Background(), spec)
	require.NoError(t, err)
	l2, err := pool.acquire(context.Background(), spec)
	require.NoError(t, err)

	assert.NotSame(t, l1.agent, l2.agent)
	created, reused := pool.counts()
	assert.Equal(t, 2, created)
	assert.Equal(t, 0, reused)
}

func TestPoolDistinguishesConfigs(t *testing.T) {
	factory := newStubFactory()
	pool := newAgentPool(factory.Factory)

	l1, err := pool.acquire(context.Background(), models.AgentSpec{
		Type: models.AgentTypeAPI, Config: map[string]string{"baseUrl": "http://a"},
	})
	require.NoError(t, err)
	pool.release(l1)

	l2, err := pool.acquire(context.Background(), models.AgentSpec{
		Type: models.AgentTypeAPI, Config: map[string]string{"baseUrl": "http://b"},
	})
	require.NoError(t, err)

	assert.NotSame(t, l1.agent, l2.agent)
	assert.Equal(t, 2, factory.constructed())
}

func TestPoolShutdownClosesEverything(t *testing.T) {
	factory := newStubFactory()
	pool := newAgentPool(factory.Factory)
	spec := models.AgentSpec{Type: models.AgentTypeAPI}

	l1, err := pool.acquire(context.Background(), spec)
	require.NoError(t, err)
	_, err = pool.acquire(context.Background(), spec)
	require.NoError(t, err)
	pool.release(l1)

	pool.shutdown(context.Background())

	for _, d := range factory.allDrivers() {
		assert.Equal(t, 1, d.Closed())
	}
}

func TestPoolInitializeFailurePropagates(t *testing.T) {
	factory := newStubFactory()
	factory.openErr = errors.New("connection refused")
	pool := newAgentPool(factory.Factory)

	_, err := pool.acquire(context.Background(), models.AgentSpec{Type: models.AgentTypeAPI})
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrInitialization)

	created, _ := pool.counts()
	assert.Equal(t, 0, created)
}

func TestPoolUnknownTypeIsConfigError(t *testing.T) {
	pool := newAgentPool(agent.NewFactory())

	_, err := pool.acquire(context.Background(), models.AgentSpec{Type: models.AgentTypeUI})
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrConfig)
}
