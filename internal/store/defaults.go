package store

// Default blocklists seeded when the user has never saved their own. Social
// and entertainment apps are blocked out of the box; essential apps (Phone,
// Messages, Settings, Camera) are never part of the defaults.

var defaultBlockedApps = []string{
	"com.burbn.instagram",      // Instagram
	"com.atebits.Tweetie2",     // Twitter/X
	"com.zhiliaoapp.musically", // TikTok
	"com.facebook.Facebook",    // Facebook
	"com.snapchat.snapchat",    // Snapchat
	"com.reddit.Reddit",        // Reddit
	"com.linkedin.LinkedIn",    // LinkedIn
	"com.discord",              // Discord
	"com.google.ios.youtube",   // YouTube
	"com.netflix.Netflix",      // Netflix
	"com.hulu.plus",            // Hulu
	"com.disney.disneyplus",    // Disney+
	"tv.twitch",                // Twitch
	"com.hbo.hbonow",           // HBO Max
}

var defaultBlockedDomains = []string{
	"instagram.com",
	"twitter.com",
	"x.com",
	"tiktok.com",
	"facebook.com",
	"youtube.com",
	"netflix.com",
	"reddit.com",
	"snapchat.com",
}

// DefaultBlockedApps returns a copy of the default blocked bundle IDs.
func DefaultBlockedApps() []string {
	out := make([]string, len(defaultBlockedApps))
	copy(out, defaultBlockedApps)
	return out
}

// DefaultBlockedDomains returns a copy of the default blocked domains.
func DefaultBlockedDomains() []string {
	out := make([]string, len(defaultBlockedDomains))
	copy(out, defaultBlockedDomains)
	return out
}
