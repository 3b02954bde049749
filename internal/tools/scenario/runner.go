package scenario

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"
)

// Config controls scenario execution.
type Config struct {
	Addr        string
	GrantKey    string
	Issuer      string
	Audience    string
	FirstUserID int64
	Timeout     time.Duration
	Assertions  AssertionMode
	Verbose     bool
	Logger      *log.Logger
}

// DefaultConfig returns default runner configuration.
func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:8080",
		Audience:    "arena",
		FirstUserID: 9100,
		Timeout:     15 * time.Second,
		Assertions:  AssertionStrict,
		Verbose:     false,
	}
}

// pointTimeout bounds how long a script waits for live play to produce a
// point. A rally against a pinned paddle resolves well inside this window.
const pointTimeout = 90 * time.Second

// Runner executes Lua scenarios against the arena WebSocket API.
type Runner struct {
	addr       string
	grants     grantSigner
	assertions Assertions
	logger     *log.Logger
	verbose    bool
	timeout    time.Duration
	nextUserID int64
}

// NewRunner prepares a scenario runner. Connections open lazily, one per
// scripted player.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Addr == "" {
		return nil, errors.New("server address is required")
	}

	grants, err := newKeyGrantSigner(cfg.Issuer, cfg.Audience, cfg.GrantKey)
	if err != nil {
		return nil, err
	}

	return newRunnerWithDeps(cfg, runnerDeps{addr: cfg.Addr, grants: grants})
}

// newRunnerWithDeps builds a Runner from pre-built dependencies.
// Config defaults (logger, timeout, user ids) are applied here so they are
// testable.
func newRunnerWithDeps(cfg Config, deps runnerDeps) (*Runner, error) {
	if deps.addr == "" {
		return nil, errors.New("server address is required")
	}
	if deps.grants == nil {
		return nil, errors.New("grant signer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	firstUserID := cfg.FirstUserID
	if firstUserID <= 0 {
		firstUserID = 9100
	}

	assertions := Assertions{Mode: cfg.Assertions, Logger: logger}

	return &Runner{
		addr:       deps.addr,
		grants:     deps.grants,
		assertions: assertions,
		logger:     logger,
		verbose:    cfg.Verbose,
		timeout:    timeout,
		nextUserID: firstUserID,
	}, nil
}

// RunFile loads and executes a scenario file.
func RunFile(ctx context.Context, cfg Config, path string) error {
	runner, err := NewRunner(cfg)
	if err != nil {
		return err
	}

	scenario, err := LoadScenarioFromFile(path)
	if err != nil {
		return err
	}
	return runner.RunScenario(ctx, scenario)
}

// RunScenario executes the scenario steps over live player connections.
func (r *Runner) RunScenario(ctx context.Context, scenario *Scenario) error {
	if scenario == nil {
		return errors.New("scenario is required")
	}
	r.logf("scenario start: %s (%d steps)", scenario.Name, len(scenario.Steps))
	state := &scenarioState{players: map[string]*player{}}
	defer state.closeAll()

	for index, step := range scenario.Steps {
		step := step
		stepNumber := index + 1
		r.logf("step %d/%d start: %s", stepNumber, len(scenario.Steps), step.Kind)
		stepStart := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout(step))
		err := r.runStep(stepCtx, state, step)
		cancel()
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", index+1, step.Kind, err)
		}
		r.logf("step %d/%d done: %s (%s)", stepNumber, len(scenario.Steps), step.Kind, time.Since(stepStart))
	}
	r.logf("scenario done: %s", scenario.Name)
	return nil
}

// stepTimeout stretches the per-step budget for waits that need a full rally.
func (r *Runner) stepTimeout(step Step) time.Duration {
	if step.Kind == "await_point" && r.timeout < pointTimeout {
		return pointTimeout
	}
	return r.timeout
}

func (r *Runner) logf(format string, args ...any) {
	if !r.verbose || r.logger == nil {
		return
	}
	r.logger.Printf(format, args...)
}
