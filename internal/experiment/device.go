package experiment

import "strings"

var botMarkers = []string{"bot", "crawler", "spider", "slurp", "headless"}

// DeviceType derives a coarse device class from a User-Agent header:
// "bot", "tablet", "mobile", "desktop", or "" when it cannot tell.
func DeviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return ""
	}

	for _, m := range botMarkers {
		if strings.Contains(ua, m) {
			return "bot"
		}
	}

	switch {
	case strings.Contains(ua, "ipad"), strings.Contains(ua, "tablet"),
		strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return "tablet"
	case strings.Contains(ua, "mobi"), strings.Contains(ua, "iphone"), strings.Contains(ua, "android"):
		return "mobile"
	case strings.Contains(ua, "windows"), strings.Contains(ua, "macintosh"),
		strings.Contains(ua, "x11"), strings.Contains(ua, "linux"), strings.Contains(ua, "cros"):
		return "desktop"
	}
	return ""
}
