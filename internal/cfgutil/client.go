package cfgutil

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/focusshift/shiftd/internal/domain"
)

// Client exposes the control tool subcommands as typed operations.
type Client struct {
	path   string
	runner domain.CommandRunner
	logger *zap.Logger
}

// NewClient creates a client for the control tool at the given path.
func NewClient(path string, runner domain.CommandRunner, logger *zap.Logger) *Client {
	if path == "" {
		path = DefaultPath
	}
	return &Client{path: path, runner: runner, logger: logger}
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	c.logger.Debug("running control command", zap.Strings("args", args))
	out, err := c.runner.Run(ctx, c.path, args...)
	if err != nil {
		c.logger.Debug("control command failed", zap.Strings("args", args), zap.Error(err))
	}
	return out, err
}

// ListFirstDevice returns the first connected device, or nil if none is
// attached. Empty or unparsable listing output is a normal steady state, not
// an error.
func (c *Client) ListFirstDevice(ctx context.Context) (*domain.Device, error) {
	out, err := c.run(ctx, "list")
	if err != nil {
		return nil, err
	}
	return parseDeviceList(out), nil
}

// IsSupervised queries the supervision attribute of the connected device.
func (c *Client) IsSupervised(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, "get", "IsSupervised")
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(out), "true"), nil
}

// InstallProfile installs the profile document at the given path.
func (c *Client) InstallProfile(ctx context.Context, path string) error {
	_, err := c.run(ctx, "install-profile", path)
	return err
}

// RemoveProfile removes an installed profile by identifier.
func (c *Client) RemoveProfile(ctx context.Context, identifier string) error {
	_, err := c.run(ctx, "remove-profile", identifier)
	return err
}

// InstalledApps returns the application records reported by the device.
func (c *Client) InstalledApps(ctx context.Context) ([]domain.InstalledApp, error) {
	out, err := c.run(ctx, "list-apps")
	if err != nil {
		return nil, err
	}
	return parseInstalledApps(out), nil
}

// Backup writes a full device backup to the given directory.
func (c *Client) Backup(ctx context.Context, dir string) error {
	_, err := c.run(ctx, "backup", dir)
	return err
}

// Prepare wipes and re-enrolls the device under supervision. The device
// restarts during this step.
func (c *Client) Prepare(ctx context.Context) error {
	_, err := c.run(ctx, "prepare", "--supervised", "--skip-language", "--skip-region")
	return err
}

// Restore restores a previously created backup onto the device.
func (c *Client) Restore(ctx context.Context, dir string) error {
	_, err := c.run(ctx, "restore", dir)
	return err
}

// RemoveSupervision tears down device management entirely.
func (c *Client) RemoveSupervision(ctx context.Context) error {
	_, err := c.run(ctx, "remove-supervision")
	return err
}

// Ensure Client implements domain.DeviceController.
var _ domain.DeviceController = (*Client)(nil)
