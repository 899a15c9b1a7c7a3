package infra

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
)

// LaunchdLabel identifies the schedule monitor LaunchAgent.
const LaunchdLabel = "com.focusshift.shiftd"

// LaunchAgent plist template. The agent keeps the schedule monitor running
// across logins so scheduled shifts fire without the CLI being open.
const launchAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
        <string>monitor</string>
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <dict>
        <key>Crashed</key>
        <true/>
    </dict>

    <key>StandardOutPath</key>
    <string>{{.LogPath}}</string>

    <key>StandardErrorPath</key>
    <string>{{.ErrorLogPath}}</string>

    <key>ProcessType</key>
    <string>Background</string>

    <key>ThrottleInterval</key>
    <integer>10</integer>
</dict>
</plist>`

const logDir = "/var/tmp"

type plistConfig struct {
	Label          string
	ExecutablePath string
	LogPath        string
	ErrorLogPath   string
}

// LaunchdManager installs the schedule monitor as a user LaunchAgent.
type LaunchdManager struct {
	plistDir  string
	plistPath string
}

// NewLaunchdManager creates a manager targeting the user's LaunchAgents
// directory.
func NewLaunchdManager() *LaunchdManager {
	home, _ := os.UserHomeDir()
	launchAgentsDir := filepath.Join(home, "Library/LaunchAgents")
	return &LaunchdManager{
		plistDir:  launchAgentsDir,
		plistPath: filepath.Join(launchAgentsDir, LaunchdLabel+".plist"),
	}
}

// generatePlistContent creates plist content for the given exec path.
func (m *LaunchdManager) generatePlistContent(execPath string) ([]byte, error) {
	config := plistConfig{
		Label:          LaunchdLabel,
		ExecutablePath: execPath,
		LogPath:        filepath.Join(logDir, "shiftd.log"),
		ErrorLogPath:   filepath.Join(logDir, "shiftd.error.log"),
	}

	tmpl, err := template.New("plist").Parse(launchAgentTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plist template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, config); err != nil {
		return nil, fmt.Errorf("failed to execute plist template: %w", err)
	}

	return buf.Bytes(), nil
}

// Install creates and loads the LaunchAgent plist.
func (m *LaunchdManager) Install(execPath string) error {
	if err := os.MkdirAll(m.plistDir, 0755); err != nil {
		return err
	}

	content, err := m.generatePlistContent(execPath)
	if err != nil {
		return fmt.Errorf("failed to generate plist content: %w", err)
	}

	if err := os.WriteFile(m.plistPath, content, 0644); err != nil {
		return err
	}

	return m.load()
}

// Uninstall unloads and removes the plist.
func (m *LaunchdManager) Uninstall() error {
	_ = m.unload() // Ignore errors if not loaded
	return os.Remove(m.plistPath)
}

// IsInstalled checks if the plist is installed.
func (m *LaunchdManager) IsInstalled() bool {
	_, err := os.Stat(m.plistPath)
	return err == nil
}

// PlistPath returns the plist file path.
func (m *LaunchdManager) PlistPath() string {
	return m.plistPath
}

// load loads the plist using launchctl.
// Note: `launchctl load` is deprecated but still works on macOS.
func (m *LaunchdManager) load() error {
	return exec.Command("launchctl", "load", m.plistPath).Run()
}

// unload unloads the plist using launchctl.
func (m *LaunchdManager) unload() error {
	return exec.Command("launchctl", "unload", m.plistPath).Run()
}
