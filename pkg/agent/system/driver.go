// Package system implements the system agent variant: steps sample host
// metrics (CPU, memory, disk, load, processes) and check them against
// thresholds.
package system

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/agentic-hq/agentic/pkg/agent"
	"github.com/agentic-hq/agentic/pkg/models"
)

// cpuSampleInterval is the busy-time window for one CPU reading.
const cpuSampleInterval = 100 * time.Millisecond

// Sample is one point-in-time host reading.
type Sample struct {
	CPUPercent      float64   `json:"cpuPercent"`
	MemUsedPercent  float64   `json:"memUsedPercent"`
	DiskUsedPercent float64   `json:"diskUsedPercent"`
	Load1           float64   `json:"load1"`
	Processes       int       `json:"processes"`
	Timestamp       time.Time `json:"timestamp"`
}

// Driver dispatches system monitoring steps.
type Driver struct {
	log *slog.Logger

	lastSample Sample
	hasSample  bool
}

// New returns a factory constructor for system agents.
func New(opts ...agent.Option) agent.Constructor {
	return func(spec models.AgentSpec) (agent.Agent, error) {
		return agent.NewBaseAgent(NewDriver(), opts...), nil
	}
}

// NewDriver creates an unopened driver.
func NewDriver() *Driver {
	return &Driver{log: slog.With("component", "system_agent")}
}

// Type returns the agent variant.
func (d *Driver) Type() models.AgentType {
	return models.AgentTypeSystem
}

// Open probes the host metrics source once.
func (d *Driver) Open(ctx context.Context) error {
	if _, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		return fmt.Errorf("%w: host metrics unavailable: %v", agent.ErrInitialization, err)
	}
	return nil
}

// Apply is a no-op; the system agent reads the host, not the scenario
// environment.
func (d *Driver) Apply(env map[string]string) {
	if len(env) > 0 {
		d.log.Debug("Ignoring scenario environment", "entries", len(env))
	}
}

// Dispatch executes one monitoring step.
func (d *Driver) Dispatch(ctx context.Context, step models.Step) (string, error) {
	action := strings.ToLower(strings.TrimSpace(step.Action))
	switch action {
	case "snapshot":
		sample, err := d.sample(ctx)
		if err != nil {
			return "", err
		}
		d.lastSample = sample
		d.hasSample = true
		payload, err := json.Marshal(sample)
		if err != nil {
			return "", err
		}
		return string(payload), nil
	case "check_cpu":
		return d.checkThreshold(ctx, step, "cpu")
	case "check_memory":
		return d.checkThreshold(ctx, step, "memory")
	case "check_disk":
		return d.checkThreshold(ctx, step, "disk")
	case "check_process":
		return d.checkProcess(ctx, step)
	case "wait":
		return "", waitStep(ctx, step.Value)
	default:
		return "", agent.NewActionError(step.Action)
	}
}

// checkThreshold fails when the metric exceeds the expected maximum percent.
func (d *Driver) checkThreshold(ctx context.Context, step models.Step, metric string) (string, error) {
	raw := firstNonEmpty(step.Expected, step.Value)
	max, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", fmt.Errorf("%w: %s threshold must be numeric, got %q", agent.ErrAction, step.Action, raw)
	}
	value, err := d.metric(ctx, metric, step.Target)
	if err != nil {
		return "", err
	}
	actual := formatMetric(value)
	if value > max {
		return actual, fmt.Errorf("%s usage %s exceeds threshold %s", metric, actual, formatMetric(max))
	}
	return actual, nil
}

// checkProcess fails when no process matches the target name.
func (d *Driver) checkProcess(ctx context.Context, step models.Step) (string, error) {
	name := strings.TrimSpace(firstNonEmpty(step.Target, step.Value))
	if name == "" {
		return "", fmt.Errorf("%w: check_process expects a process name", agent.ErrAction)
	}
	count, err := d.countProcesses(ctx, name)
	if err != nil {
		return "", err
	}
	actual := strconv.Itoa(count)
	if count == 0 {
		return actual, fmt.Errorf("no running process named %q", name)
	}
	return actual, nil
}

// Check evaluates a verification against a fresh metric reading. The
// verification type names the metric (cpu, memory, disk, load, processes,
// process); disk and process use the target as path and name.
func (d *Driver) Check(ctx context.Context, v models.Verification) agent.VerificationResult {
	value, err := d.metric(ctx, strings.ToLower(v.Type), v.Target)
	if err != nil {
		return agent.CheckResult(v, "", false, err)
	}
	actual := formatMetric(value)
	passed, err := agent.EvaluateOperator(v.Operator, actual, v.Expected)
	return agent.CheckResult(v, actual, passed, err)
}

// Close clears the last sample.
func (d *Driver) Close(ctx context.Context) error {
	d.lastSample = Sample{}
	d.hasSample = false
	return nil
}

func (d *Driver) sample(ctx context.Context) (Sample, error) {
	s := Sample{Timestamp: time.Now()}

	cpuPercents, err := cpu.PercentWithContext(ctx, cpuSampleInterval, false)
	if err != nil {
		return s, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	if len(cpuPercents) > 0 {
		s.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to read memory usage: %w", err)
	}
	s.MemUsedPercent = vm.UsedPercent

	du, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return s, fmt.Errorf("failed to read disk usage: %w", err)
	}
	s.DiskUsedPercent = du.UsedPercent

	if avg, err := load.AvgWithContext(ctx); err == nil {
		s.Load1 = avg.Load1
	}

	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to list processes: %w", err)
	}
	s.Processes = len(pids)
	return s, nil
}

func (d *Driver) metric(ctx context.Context, name, target string) (float64, error) {
	switch name {
	case "cpu":
		percents, err := cpu.PercentWithContext(ctx, cpuSampleInterval, false)
		if err != nil {
			return 0, fmt.Errorf("failed to read cpu usage: %w", err)
		}
		if len(percents) == 0 {
			return 0, fmt.Errorf("no cpu reading available")
		}
		return percents[0], nil
	case "memory", "mem":
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to read memory usage: %w", err)
		}
		return vm.UsedPercent, nil
	case "disk":
		path := target
		if path == "" {
			path = "/"
		}
		du, err := disk.UsageWithContext(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("failed to read disk usage for %q: %w", path, err)
		}
		return du.UsedPercent, nil
	case "load", "load1":
		avg, err := load.AvgWithContext(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to read load average: %w", err)
		}
		return avg.Load1, nil
	case "processes":
		pids, err := process.PidsWithContext(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to list processes: %w", err)
		}
		return float64(len(pids)), nil
	case "process":
		count, err := d.countProcesses(ctx, target)
		if err != nil {
			return 0, err
		}
		return float64(count), nil
	default:
		return 0, fmt.Errorf("%w: unknown metric %q", agent.ErrValidation, name)
	}
}

func (d *Driver) countProcesses(ctx context.Context, name string) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list processes: %w", err)
	}
	count := 0
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.EqualFold(pname, name) {
			count++
		}
	}
	return count, nil
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func waitStep(ctx context.Context, value string) error {
	ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || ms < 0 {
		return fmt.Errorf("%w: wait expects milliseconds, got %q", agent.ErrAction, value)
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}
