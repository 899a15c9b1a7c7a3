package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePlistContent(t *testing.T) {
	m := NewLaunchdManager()

	content, err := m.generatePlistContent("/usr/local/bin/shiftd")
	require.NoError(t, err)

	plist := string(content)
	assert.Contains(t, plist, "<string>"+LaunchdLabel+"</string>")
	assert.Contains(t, plist, "<string>/usr/local/bin/shiftd</string>")
	assert.Contains(t, plist, "<string>monitor</string>")
	assert.Contains(t, plist, "<key>RunAtLoad</key>")
}

func TestPlistPath(t *testing.T) {
	m := NewLaunchdManager()
	assert.Contains(t, m.PlistPath(), "Library/LaunchAgents/"+LaunchdLabel+".plist")
}
