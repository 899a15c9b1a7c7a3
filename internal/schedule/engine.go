// Package schedule evaluates recurrence rules against wall-clock time and
// triggers shift/unshift operations when a rule fires.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/focusshift/shiftd/internal/domain"
)

// DefaultTickInterval is the evaluation cadence. Rules have minute
// granularity, so anything at or below one minute is correct.
const DefaultTickInterval = 60 * time.Second

// minuteKeyLayout identifies one wall-clock minute for de-duplication.
const minuteKeyLayout = "2006-01-02 15:04"

// failureBufferSize bounds the failure channel; a slow consumer loses old
// reports rather than blocking evaluation.
const failureBufferSize = 16

// Dispatcher executes the device transitions a fired rule requests.
// Implementation: the usecase orchestrator, which serializes these calls with
// user-initiated ones.
type Dispatcher interface {
	Shift(ctx context.Context, duration time.Duration) error
	Unshift(ctx context.Context) error
}

// Failure reports a scheduled action that could not complete. One rule's
// failure never stops the engine or other rules.
type Failure struct {
	Rule domain.Schedule
	Err  error
	At   time.Time
}

// Engine owns the mutable rule set and runs the periodic evaluation tick.
type Engine struct {
	store      domain.PreferenceStore
	dispatcher Dispatcher
	clock      domain.Clock
	interval   time.Duration
	logger     *zap.Logger

	mu    sync.Mutex
	rules []domain.Schedule
	// Last minute each rule fired in, keyed by rule ID. Guarantees
	// exactly-once firing per matching minute even if the tick cadence ever
	// drops below one minute.
	lastFired map[uuid.UUID]string

	failures chan Failure
	inflight sync.WaitGroup

	// Tick source, replaceable in tests so the loop runs under a fake clock.
	newTicks func(time.Duration) (<-chan time.Time, func())
}

func wallClockTicks(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// NewEngine creates a schedule engine. Call Load before Run to pick up
// persisted rules.
func NewEngine(
	store domain.PreferenceStore,
	dispatcher Dispatcher,
	clock domain.Clock,
	interval time.Duration,
	logger *zap.Logger,
) *Engine {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		clock:      clock,
		interval:   interval,
		logger:     logger,
		lastFired:  make(map[uuid.UUID]string),
		failures:   make(chan Failure, failureBufferSize),
		newTicks:   wallClockTicks,
	}
}

// Failures returns the structured failure report channel. Sends never block.
func (e *Engine) Failures() <-chan Failure {
	return e.failures
}

// Load reads the persisted rule set from the store.
func (e *Engine) Load() error {
	rules, err := e.store.LoadSchedules()
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	return nil
}

// Rules returns a copy of the current rule set in insertion order.
func (e *Engine) Rules() []domain.Schedule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Schedule, len(e.rules))
	copy(out, e.rules)
	return out
}

// validateRule pins the invariant that an enabled rule always has at least
// one day selected; a dayless enabled rule could never fire.
func validateRule(rule domain.Schedule) error {
	if rule.Enabled && len(rule.Days) == 0 {
		return fmt.Errorf("schedule %s has no days selected", rule.ID)
	}
	return nil
}

// Add appends a rule and persists the set.
func (e *Engine) Add(rule domain.Schedule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule)
	return e.persistLocked()
}

// Update replaces the rule with a matching ID and persists the set.
func (e *Engine) Update(rule domain.Schedule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].ID == rule.ID {
			e.rules[i] = rule
			return e.persistLocked()
		}
	}
	return fmt.Errorf("schedule %s not found", rule.ID)
}

// Remove deletes the rule with the given ID and persists the set.
func (e *Engine) Remove(id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			delete(e.lastFired, id)
			return e.persistLocked()
		}
	}
	return fmt.Errorf("schedule %s not found", id)
}

// Toggle flips the enabled flag of the rule with the given ID.
func (e *Engine) Toggle(id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].ID == id {
			flipped := e.rules[i]
			flipped.Enabled = !flipped.Enabled
			if err := validateRule(flipped); err != nil {
				return err
			}
			e.rules[i] = flipped
			return e.persistLocked()
		}
	}
	return fmt.Errorf("schedule %s not found", id)
}

func (e *Engine) persistLocked() error {
	if err := e.store.SaveSchedules(e.rules); err != nil {
		return fmt.Errorf("failed to persist schedules: %w", err)
	}
	return nil
}

// Run evaluates rules once immediately, then on every tick until the context
// is canceled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("schedule engine started",
		zap.Duration("interval", e.interval),
		zap.Int("rules", len(e.Rules())))

	e.evaluate(ctx)

	ticks, stop := e.newTicks(e.interval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("schedule engine stopping")
			e.inflight.Wait()
			return ctx.Err()
		case <-ticks:
			e.evaluate(ctx)
		}
	}
}

// evaluate fires every enabled rule whose weekday, hour, and minute match
// the current instant and which has not already fired in this minute.
// Dispatch is asynchronous; a slow device operation never delays evaluation
// of the remaining rules or later ticks.
func (e *Engine) evaluate(ctx context.Context) {
	now := e.clock.Now()
	key := now.Format(minuteKeyLayout)

	e.mu.Lock()
	var due []domain.Schedule
	for _, rule := range e.rules {
		if !rule.Matches(now) {
			continue
		}
		if e.lastFired[rule.ID] == key {
			continue
		}
		e.lastFired[rule.ID] = key
		due = append(due, rule)
	}
	e.mu.Unlock()

	for _, rule := range due {
		rule := rule
		e.inflight.Add(1)
		go func() {
			defer e.inflight.Done()
			e.execute(ctx, rule, now)
		}()
	}
}

func (e *Engine) execute(ctx context.Context, rule domain.Schedule, at time.Time) {
	e.logger.Info("executing schedule",
		zap.String("id", rule.ID.String()),
		zap.String("action", rule.Action.DisplayName()),
		zap.String("time", rule.Time.String()))

	var err error
	switch rule.Action {
	case domain.ActionShift:
		err = e.dispatcher.Shift(ctx, 0)
	case domain.ActionUnshift:
		err = e.dispatcher.Unshift(ctx)
	default:
		err = fmt.Errorf("unknown schedule action %q", rule.Action)
	}

	if err == nil {
		e.logger.Info("scheduled action completed",
			zap.String("id", rule.ID.String()),
			zap.String("action", string(rule.Action)))
		return
	}

	e.logger.Error("scheduled action failed",
		zap.String("id", rule.ID.String()),
		zap.String("action", string(rule.Action)),
		zap.Error(err))

	select {
	case e.failures <- Failure{Rule: rule, Err: err, At: at}:
	default:
		e.logger.Debug("failure report dropped, consumer not keeping up")
	}
}
