// Package profile builds the restriction configuration profile installed on
// the device when it is shifted.
package profile

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/uuid"
)

// Identifier is the profile identifier used for install and removal.
// It must match in all profile operations.
const Identifier = "com.focusshift.restrictions"

const (
	appsPayloadIdentifier      = Identifier + ".apps"
	webFilterPayloadIdentifier = Identifier + ".webfilter"
)

// Restrictions profile template. Every interpolated string goes through the
// xml escape func; bundle identifiers and domains come from a user-editable
// list and must not be able to break the document structure.
const restrictionsTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>PayloadContent</key>
    <array>
        <dict>
            <key>PayloadType</key>
            <string>com.apple.applicationaccess</string>
            <key>PayloadVersion</key>
            <integer>1</integer>
            <key>PayloadIdentifier</key>
            <string>{{.AppsPayloadIdentifier}}</string>
            <key>PayloadUUID</key>
            <string>{{.AppsPayloadUUID}}</string>
            <key>PayloadDisplayName</key>
            <string>App Restrictions</string>
            <key>blacklistedAppBundleIDs</key>
            <array>
{{- range .BlockedApps}}
                <string>{{xml .}}</string>
{{- end}}
            </array>
        </dict>
        <dict>
            <key>PayloadType</key>
            <string>com.apple.webcontent-filter</string>
            <key>PayloadVersion</key>
            <integer>1</integer>
            <key>PayloadIdentifier</key>
            <string>{{.WebFilterPayloadIdentifier}}</string>
            <key>PayloadUUID</key>
            <string>{{.WebFilterPayloadUUID}}</string>
            <key>ContentFilterUUID</key>
            <string>{{.ContentFilterUUID}}</string>
            <key>PayloadDisplayName</key>
            <string>Web Content Filter</string>
            <key>FilterType</key>
            <string>BuiltIn</string>
            <key>AutoFilterEnabled</key>
            <false/>
            <key>PermittedURLs</key>
            <array/>
            <key>WhitelistedBookmarks</key>
            <array/>
            <key>UserDefinedName</key>
            <string>FocusShift Web Filter</string>
            <key>FilterDataProviderBundleIdentifier</key>
            <string>com.apple.ManagedConfiguration.ManagedContentFilter</string>
            <key>PluginBundleID</key>
            <string>com.apple.ManagedConfiguration.ManagedContentFilter</string>
            <key>VendorConfig</key>
            <dict>
                <key>FilterBrowsers</key>
                <true/>
                <key>FilterSockets</key>
                <true/>
                <key>UserDefinedBlockList</key>
                <array>
{{- range .BlockedDomains}}
                    <string>{{xml .}}</string>
{{- end}}
                </array>
            </dict>
        </dict>
    </array>

    <key>PayloadDisplayName</key>
    <string>FocusShift Restrictions</string>
    <key>PayloadDescription</key>
    <string>Restricts distracting apps and websites when in focus mode</string>
    <key>PayloadIdentifier</key>
    <string>{{.ProfileIdentifier}}</string>
    <key>PayloadRemovalDisallowed</key>
    <true/>
    <key>PayloadType</key>
    <string>Configuration</string>
    <key>PayloadUUID</key>
    <string>{{.ProfileUUID}}</string>
    <key>PayloadVersion</key>
    <integer>1</integer>
</dict>
</plist>
`

// Artifact is one freshly built restriction profile. The UUIDs are minted per
// build and never reused; the device treats UUID identity, not content, as
// the unit of replace-vs-duplicate.
type Artifact struct {
	Identifier  string
	ProfileUUID string
	Content     []byte
}

type templateData struct {
	ProfileIdentifier          string
	ProfileUUID                string
	AppsPayloadIdentifier      string
	AppsPayloadUUID            string
	WebFilterPayloadIdentifier string
	WebFilterPayloadUUID       string
	ContentFilterUUID          string
	BlockedApps                []string
	BlockedDomains             []string
}

// Builder generates restriction artifacts.
type Builder struct {
	tmpl *template.Template
}

// NewBuilder parses the profile template once.
func NewBuilder() *Builder {
	tmpl := template.Must(template.New("restrictions").
		Funcs(template.FuncMap{"xml": escapeXML}).
		Parse(restrictionsTemplate))
	return &Builder{tmpl: tmpl}
}

// Build produces a restriction artifact for the given blocklists. Empty
// inputs are valid and produce a profile with empty restriction arrays.
// Duplicates are dropped preserving first occurrence; domains are normalized
// to lowercase.
func (b *Builder) Build(blockedApps, blockedDomains []string) (Artifact, error) {
	profileUUID := uuid.NewString()

	data := templateData{
		ProfileIdentifier:          Identifier,
		ProfileUUID:                profileUUID,
		AppsPayloadIdentifier:      appsPayloadIdentifier,
		AppsPayloadUUID:            uuid.NewString(),
		WebFilterPayloadIdentifier: webFilterPayloadIdentifier,
		WebFilterPayloadUUID:       uuid.NewString(),
		ContentFilterUUID:          uuid.NewString(),
		BlockedApps:                dedupe(blockedApps),
		BlockedDomains:             normalizeDomains(blockedDomains),
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return Artifact{}, fmt.Errorf("failed to render profile: %w", err)
	}

	return Artifact{
		Identifier:  Identifier,
		ProfileUUID: profileUUID,
		Content:     buf.Bytes(),
	}, nil
}

// dedupe removes duplicates preserving first-occurrence order.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// normalizeDomains lowercases and de-duplicates domains.
func normalizeDomains(domains []string) []string {
	lowered := make([]string, 0, len(domains))
	for _, d := range domains {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(d)))
	}
	return dedupe(lowered)
}

// escapeXML escapes a string for safe embedding in plist text content.
func escapeXML(s string) string {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return ""
	}
	return buf.String()
}
