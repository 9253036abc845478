// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package api

import "testing"

func TestParseBrowser(t *testing.T) {
	cases := map[string]string{
		"Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36":          "Chrome",
		"Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 (KHTML, like Gecko) Edg/120.0":                            "Edge",
		"Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 (KHTML, like Gecko) OPR/100.0":                            "Opera",
		"Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0":                                    "Firefox",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15": "Safari",
		"curl/8.4.0": "Other",
	}
	for ua, want := range cases {
		if got := parseBrowser(ua); got != want {
			t.Errorf("parseBrowser(%q) = %q, want %q", ua, got, want)
		}
	}
}

func TestParseOS(t *testing.T) {
	cases := map[string]string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64)":                     "Windows",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)":               "macOS",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8)":                      "Android",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)":        "iOS",
		"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)":                 "iOS",
		"Mozilla/5.0 (X11; Linux x86_64)":                               "Linux",
		"curl/8.4.0": "Other",
	}
	for ua, want := range cases {
		if got := parseOS(ua); got != want {
			t.Errorf("parseOS(%q) = %q, want %q", ua, got, want)
		}
	}
}

func TestParseDeviceType(t *testing.T) {
	cases := map[string]string{
		"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)":                              "tablet",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobi":                              "mobile",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)":                     "mobile",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0":  "desktop",
	}
	for ua, want := range cases {
		if got := parseDeviceType(ua); got != want {
			t.Errorf("parseDeviceType(%q) = %q, want %q", ua, got, want)
		}
	}
}
