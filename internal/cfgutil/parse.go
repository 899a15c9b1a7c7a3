package cfgutil

import (
	"strings"
	"time"

	"github.com/focusshift/shiftd/internal/domain"
)

// parseDeviceList extracts the first device record from `list` output.
// Each line carries tab-delimited fields such as:
//
//	Type: iPhone16,2	ECID: 0x1A2B	UDID: 00008130-000A	Name: Ethan's iPhone
//
// Only the first record is consulted. Returns nil when the output is empty or
// carries no UDID field; device absence is an expected steady state.
func parseDeviceList(output string) *domain.Device {
	var firstLine string
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) != "" {
			firstLine = line
			break
		}
	}
	if firstLine == "" {
		return nil
	}

	udid := ""
	name := "iPhone"
	for _, field := range strings.Split(firstLine, "\t") {
		trimmed := strings.TrimSpace(field)
		switch {
		case strings.HasPrefix(trimmed, "UDID:"):
			udid = strings.TrimSpace(strings.TrimPrefix(trimmed, "UDID:"))
		case strings.HasPrefix(trimmed, "Name:"):
			name = strings.TrimSpace(strings.TrimPrefix(trimmed, "Name:"))
		}
	}
	if udid == "" {
		return nil
	}

	return &domain.Device{
		UDID:        udid,
		Name:        name,
		IsConnected: true,
		LastSeenAt:  time.Now(),
	}
}

// parseInstalledApps extracts app records from `list-apps` output. Lines are
// tab-delimited (bundle-identifier, display-name); the display name falls
// back to the identifier when absent. Header lines starting with "ECID" are
// skipped.
func parseInstalledApps(output string) []domain.InstalledApp {
	var apps []domain.InstalledApp
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "ECID") {
			continue
		}
		fields := strings.Split(line, "\t")
		bundleID := strings.TrimSpace(fields[0])
		if bundleID == "" {
			continue
		}
		name := bundleID
		if len(fields) >= 2 && strings.TrimSpace(fields[1]) != "" {
			name = strings.TrimSpace(fields[1])
		}
		apps = append(apps, domain.InstalledApp{BundleID: bundleID, Name: name})
	}
	return apps
}
