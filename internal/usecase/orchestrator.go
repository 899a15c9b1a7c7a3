// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/focusshift/shiftd/internal/domain"
	"github.com/focusshift/shiftd/internal/profile"
)

const artifactFileName = "restrictions.mobileconfig"

// updateBufferSize bounds the state update channel; a slow consumer loses
// intermediate updates rather than blocking device operations.
const updateBufferSize = 16

// Orchestrator owns the in-memory device state and executes state
// transitions against the control channel. Mutating operations (Shift,
// Unshift, BootstrapSupervision, RemoveSupervision) are serialized with one
// mutex so a scheduled action never races a user-initiated one. Detect is
// advisory and may run concurrently.
type Orchestrator struct {
	controller domain.DeviceController
	builder    *profile.Builder
	guard      domain.SessionGuard
	prefs      domain.PreferenceStore
	processes  domain.ProcessManager
	clock      domain.Clock
	logger     *zap.Logger

	opMu sync.Mutex // serializes mutating operations

	stateMu    sync.RWMutex
	device     *domain.Device
	shifted    bool
	processing bool

	updates chan domain.StateUpdate
}

// NewOrchestrator creates the device state orchestrator.
func NewOrchestrator(
	controller domain.DeviceController,
	builder *profile.Builder,
	guard domain.SessionGuard,
	prefs domain.PreferenceStore,
	processes domain.ProcessManager,
	clock domain.Clock,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		controller: controller,
		builder:    builder,
		guard:      guard,
		prefs:      prefs,
		processes:  processes,
		clock:      clock,
		logger:     logger,
		updates:    make(chan domain.StateUpdate, updateBufferSize),
	}
}

// Updates returns the state change notification channel. The consuming layer
// decides which loop integrates the updates; sends never block.
func (o *Orchestrator) Updates() <-chan domain.StateUpdate {
	return o.updates
}

// Snapshot returns a copy of the current device state.
func (o *Orchestrator) Snapshot() domain.Snapshot {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()

	snap := domain.Snapshot{IsShifted: o.shifted, Processing: o.processing}
	if o.device != nil {
		d := *o.device
		snap.Device = &d
	}
	return snap
}

func (o *Orchestrator) publish(reason string) {
	update := domain.StateUpdate{
		Snapshot: o.Snapshot(),
		Reason:   reason,
		At:       o.clock.Now(),
	}
	select {
	case o.updates <- update:
	default:
		o.logger.Debug("state update dropped, consumer not keeping up",
			zap.String("reason", reason))
	}
}

func (o *Orchestrator) setProcessing(v bool) {
	o.stateMu.Lock()
	o.processing = v
	o.stateMu.Unlock()
}

// Detect runs the device listing command and updates the device snapshot.
// Returns nil without error when no device is attached; absence is an
// expected steady state.
func (o *Orchestrator) Detect(ctx context.Context) (*domain.Device, error) {
	device, err := o.controller.ListFirstDevice(ctx)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, nil
	}

	o.stateMu.Lock()
	device.IsShifted = o.shifted
	device.LastSeenAt = o.clock.Now()
	o.device = device
	o.stateMu.Unlock()

	o.publish("detect")
	d := *device
	return &d, nil
}

// IsSupervised queries whether the connected device is under management.
func (o *Orchestrator) IsSupervised(ctx context.Context) (bool, error) {
	return o.controller.IsSupervised(ctx)
}

// InstalledApps fetches the application records from the device.
func (o *Orchestrator) InstalledApps(ctx context.Context) ([]domain.InstalledApp, error) {
	return o.controller.InstalledApps(ctx)
}

// Shift builds a fresh restriction artifact from the current blocklists and
// installs it on the device. On success the snapshot becomes shifted and, if
// a duration was given, a focus session starts. On install failure no state
// changes.
func (o *Orchestrator) Shift(ctx context.Context, duration time.Duration) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	o.setProcessing(true)
	defer o.setProcessing(false)

	blockedApps, err := o.prefs.BlockedApps()
	if err != nil {
		return fmt.Errorf("failed to read blocked apps: %w", err)
	}
	blockedDomains, err := o.prefs.BlockedDomains()
	if err != nil {
		return fmt.Errorf("failed to read blocked domains: %w", err)
	}

	artifact, err := o.builder.Build(blockedApps, blockedDomains)
	if err != nil {
		return err
	}

	// Scoped temporary location, unique per invocation. Cleanup is best
	// effort; a leaked temp file is a disk-space concern, not a correctness
	// one.
	tmpDir, err := os.MkdirTemp("", "shiftd-profile-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	artifactPath := filepath.Join(tmpDir, artifactFileName)
	if err := os.WriteFile(artifactPath, artifact.Content, 0600); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}

	if err := o.controller.InstallProfile(ctx, artifactPath); err != nil {
		o.logger.Error("profile install failed", zap.Error(err))
		return err
	}

	o.stateMu.Lock()
	o.shifted = true
	if o.device != nil {
		o.device.IsShifted = true
	}
	o.stateMu.Unlock()

	if _, err := o.guard.Start(duration); err != nil {
		// Device is shifted; the session is advisory. Report but don't
		// roll back.
		o.logger.Warn("failed to start focus session", zap.Error(err))
	}

	o.logger.Info("device shifted",
		zap.Int("blocked_apps", len(blockedApps)),
		zap.Int("blocked_domains", len(blockedDomains)),
		zap.String("profile_uuid", artifact.ProfileUUID))
	o.publish("shift")
	return nil
}

// Unshift removes the restriction profile. It consults the session guard
// first and fails with *domain.SessionActiveError while a focus session is
// active, without touching the control channel. Unshifting an already
// unshifted device is a no-op.
func (o *Orchestrator) Unshift(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	o.setProcessing(true)
	defer o.setProcessing(false)

	canUnshift, err := o.guard.CanUnshift()
	if err != nil {
		return fmt.Errorf("failed to check focus session: %w", err)
	}
	if !canUnshift {
		session, serr := o.guard.Current()
		remaining := "unknown"
		if serr == nil && session != nil {
			remaining = session.RemainingString(o.clock.Now())
		}
		return &domain.SessionActiveError{Remaining: remaining}
	}

	o.stateMu.RLock()
	alreadyUnshifted := !o.shifted
	o.stateMu.RUnlock()
	if alreadyUnshifted {
		o.logger.Debug("device already unshifted, nothing to do")
		return nil
	}

	if err := o.controller.RemoveProfile(ctx, profile.Identifier); err != nil {
		o.logger.Error("profile removal failed", zap.Error(err))
		return err
	}

	o.stateMu.Lock()
	o.shifted = false
	if o.device != nil {
		o.device.IsShifted = false
	}
	o.stateMu.Unlock()

	if err := o.guard.Clear(); err != nil {
		o.logger.Warn("failed to clear focus session", zap.Error(err))
	}

	o.logger.Info("device unshifted")
	o.publish("unshift")
	return nil
}

// BootstrapSupervision runs the one-time supervision workflow:
// verify → backup → prepare → restore. The prepare step wipes and re-enrolls
// the device, which restarts during it. A failed step aborts the remaining
// steps; the workflow is not resumable and a failed run leaves the device in
// an indeterminate state requiring manual verification before retrying.
func (o *Orchestrator) BootstrapSupervision(ctx context.Context, progress func(string)) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	o.setProcessing(true)
	defer o.setProcessing(false)

	if progress == nil {
		progress = func(string) {}
	}

	if err := o.checkNoConflictingOperation(); err != nil {
		return err
	}

	supervised, err := o.controller.IsSupervised(ctx)
	if err != nil {
		return fmt.Errorf("supervision check failed: %w", err)
	}
	if supervised {
		return domain.ErrAlreadySupervised
	}

	backupDir, err := os.MkdirTemp("", "shiftd-backup-*")
	if err != nil {
		return fmt.Errorf("failed to create backup dir: %w", err)
	}
	// Best-effort cleanup regardless of outcome; a full device backup is
	// large and must not accumulate.
	defer func() {
		if err := os.RemoveAll(backupDir); err != nil {
			o.logger.Warn("failed to remove temporary backup", zap.String("dir", backupDir), zap.Error(err))
		}
	}()

	progress("Creating backup of your device... (this may take a few minutes)")
	if err := o.controller.Backup(ctx, backupDir); err != nil {
		return fmt.Errorf("backup step failed: %w", err)
	}
	o.logger.Info("device backup created", zap.String("dir", backupDir))

	progress("Supervising your device... (it will restart)")
	if err := o.controller.Prepare(ctx); err != nil {
		return fmt.Errorf("supervision step failed: %w", err)
	}
	o.logger.Info("device supervised")

	progress("Restoring your data... (almost done)")
	if err := o.controller.Restore(ctx, backupDir); err != nil {
		return fmt.Errorf("restore step failed: %w", err)
	}
	o.logger.Info("backup restored")

	progress("Setup complete!")
	o.publish("supervise")
	return nil
}

// RemoveSupervision is the emergency teardown. It deliberately bypasses the
// session guard (the escape hatch when the lock itself is believed stuck),
// then clears the snapshot and all persisted state.
func (o *Orchestrator) RemoveSupervision(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	o.setProcessing(true)
	defer o.setProcessing(false)

	if err := o.controller.RemoveSupervision(ctx); err != nil {
		return err
	}

	o.stateMu.Lock()
	o.device = nil
	o.shifted = false
	o.stateMu.Unlock()

	if err := o.prefs.ClearAll(); err != nil {
		o.logger.Warn("failed to clear stored state", zap.Error(err))
	}

	o.logger.Warn("supervision removed, device is no longer managed")
	o.publish("remove-supervision")
	return nil
}

// checkNoConflictingOperation refuses to start an irreversible workflow
// while another control tool instance is mid-operation.
func (o *Orchestrator) checkNoConflictingOperation() error {
	if o.processes == nil {
		return nil
	}
	pids, err := o.processes.FindByName("cfgutil")
	if err != nil {
		o.logger.Debug("process scan failed, continuing anyway", zap.Error(err))
		return nil
	}
	if len(pids) > 0 {
		return fmt.Errorf("another device operation appears to be in progress (pids %v)", pids)
	}
	return nil
}
