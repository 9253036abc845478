// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
uaparse.go - Minimal User-Agent Classification

The bot classifier (internal/botclassify) only needs the raw User-Agent
string, but the browser/os/device_type dimension breakdowns (spec §4.G)
need something to group by. Nothing in the example corpus pulls in a
dedicated user-agent parsing library, so this applies the same
substring-token idiom botclassify/classify.go already uses for its own UA
signals, rather than hand-rolling a general-purpose parser.
*/

package api

import "strings"

func parseBrowser(ua string) string {
	switch {
	case strings.Contains(ua, "Edg/"):
		return "Edge"
	case strings.Contains(ua, "OPR/"):
		return "Opera"
	case strings.Contains(ua, "Firefox/"):
		return "Firefox"
	case strings.Contains(ua, "Chrome/"):
		return "Chrome"
	case strings.Contains(ua, "Safari/") && strings.Contains(ua, "Version/"):
		return "Safari"
	default:
		return "Other"
	}
}

func parseOS(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		return "iOS"
	case strings.Contains(ua, "Mac OS X"), strings.Contains(ua, "Macintosh"):
		return "macOS"
	case strings.Contains(ua, "Android"):
		return "Android"
	case strings.Contains(ua, "Linux"):
		return "Linux"
	default:
		return "Other"
	}
}

func parseDeviceType(ua string) string {
	switch {
	case strings.Contains(ua, "iPad"), strings.Contains(ua, "Tablet"):
		return "tablet"
	case strings.Contains(ua, "Mobi"), strings.Contains(ua, "Android"), strings.Contains(ua, "iPhone"):
		return "mobile"
	default:
		return "desktop"
	}
}
