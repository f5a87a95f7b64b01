package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// ClientInfo holds parsed information from a User-Agent string
type ClientInfo struct {
	DeviceType string `json:"device_type"` // mobile, tablet, desktop, bot
	OS         string `json:"os"`          // Android 12, iOS 15, Windows 10, etc.
	Browser    string `json:"browser"`     // Chrome, Safari, Firefox, etc.
	BrowserVer string `json:"browser_ver"`
	IsBot      bool   `json:"is_bot"`
}

// ParseUserAgent parses a User-Agent string and extracts client information
func ParseUserAgent(userAgent string) ClientInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return ClientInfo{DeviceType: "unknown", OS: "Unknown", Browser: "Unknown"}
	}

	parser := ua.New(userAgent)
	name, version := parser.Browser()
	if name == "" {
		name = "Unknown"
	}

	info := ClientInfo{
		OS:         osName(parser),
		Browser:    name,
		BrowserVer: version,
		IsBot:      parser.Bot(),
	}

	switch {
	case info.IsBot:
		info.DeviceType = "bot"
	case parser.Mobile() && isTablet(userAgent):
		info.DeviceType = "tablet"
	case parser.Mobile():
		info.DeviceType = "mobile"
	default:
		info.DeviceType = "desktop"
	}
	return info
}

func osName(parser *ua.UserAgent) string {
	osInfo := parser.OSInfo()
	if osInfo.Name == "" {
		return "Unknown"
	}
	if osInfo.Version != "" {
		return osInfo.Name + " " + osInfo.Version
	}
	return osInfo.Name
}

// isTablet checks if the user agent indicates a tablet device
func isTablet(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	for _, indicator := range []string{"ipad", "tablet", "kindle", "nexus 7", "nexus 9", "nexus 10", "sm-t"} {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
