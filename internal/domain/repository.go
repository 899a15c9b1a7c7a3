package domain

import (
	"context"
	"time"
)

// Clock abstracts wall-clock time so the scheduler and session guard can be
// tested without waiting.
type Clock interface {
	Now() time.Time
}

// CommandRunner executes an external command and returns its combined
// stdout+stderr output. A nonzero exit status yields a *CommandError carrying
// the status and captured text. The runner never retries and holds no state
// between calls; callers bound execution time via the context.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// DeviceController is the typed boundary to the external device control tool.
// Implementation: internal/cfgutil wraps the cfgutil executable.
type DeviceController interface {
	// ListFirstDevice returns the first connected device, or nil if none.
	// Unparsable or empty listing output means "no device", not an error.
	ListFirstDevice(ctx context.Context) (*Device, error)

	// IsSupervised queries the supervision attribute of the connected device.
	IsSupervised(ctx context.Context) (bool, error)

	// InstallProfile installs the restriction profile at the given path.
	InstallProfile(ctx context.Context, path string) error

	// RemoveProfile removes an installed profile by identifier.
	RemoveProfile(ctx context.Context, identifier string) error

	// InstalledApps returns the application records reported by the device.
	InstalledApps(ctx context.Context) ([]InstalledApp, error)

	// Backup writes a full device backup to the given directory.
	Backup(ctx context.Context, dir string) error

	// Prepare wipes and re-enrolls the device under supervision.
	// The device restarts and re-enumerates during this step.
	Prepare(ctx context.Context) error

	// Restore restores a previously created backup onto the device.
	Restore(ctx context.Context, dir string) error

	// RemoveSupervision tears down device management entirely.
	RemoveSupervision(ctx context.Context) error
}

// PreferenceStore persists user preferences, schedules, and the focus
// session. Implementation: internal/store (encrypted SQLCipher document
// store).
type PreferenceStore interface {
	// BlockedApps returns the blocked bundle identifiers.
	BlockedApps() ([]string, error)

	// SetBlockedApps replaces the blocked bundle identifier list.
	SetBlockedApps(apps []string) error

	// BlockedDomains returns the blocked web domains.
	BlockedDomains() ([]string, error)

	// SetBlockedDomains replaces the blocked domain list.
	SetBlockedDomains(domains []string) error

	// SaveFocusSession persists the active focus session.
	SaveFocusSession(session FocusSession) error

	// LoadFocusSession returns the persisted session, or nil if none.
	LoadFocusSession() (*FocusSession, error)

	// ClearFocusSession removes any persisted session.
	ClearFocusSession() error

	// SaveSchedules replaces the persisted schedule list.
	SaveSchedules(schedules []Schedule) error

	// LoadSchedules returns all persisted schedules (insertion order).
	LoadSchedules() ([]Schedule, error)

	// ClearAll wipes every stored document.
	ClearAll() error

	// Close releases store resources.
	Close() error
}

// SessionGuard gates unshift operations behind the focus session lock.
type SessionGuard interface {
	// Start records a session ending duration from now. A zero duration
	// records nothing and returns nil.
	Start(duration time.Duration) (*FocusSession, error)

	// Current returns the active session, or nil. Expired records are
	// treated as absent and purged best-effort.
	Current() (*FocusSession, error)

	// Clear removes any recorded session unconditionally.
	Clear() error

	// CanUnshift reports whether no session is active.
	CanUnshift() (bool, error)
}

// ProcessManager handles OS process queries.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool
}
