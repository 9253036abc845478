// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package delivery

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
)

// ValidateWebhookURL checks scheme and resolves the host, rejecting
// anything that could point a webhook at the runner's own network: the
// teacher's ValidateWebhookURL only checked scheme/host presence, which is
// enough for a trusted newsletter operator but not for alert/subscription
// targets a website owner controls, so this also resolves the hostname
// and rejects loopback/link-local/private/unique-local/multicast/
// unspecified/broadcast addresses.
func ValidateWebhookURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https scheme")
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("webhook URL must have a host")
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("failed to resolve webhook host %q: %w", host, err)
	}
	for _, ip := range ips {
		if err := rejectUnsafeIP(ip); err != nil {
			return fmt.Errorf("webhook host %q resolves to a disallowed address: %w", host, err)
		}
	}
	return nil
}

func rejectUnsafeIP(ip net.IP) error {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return fmt.Errorf("unparseable address")
	}
	addr = addr.Unmap()

	switch {
	case addr.IsLoopback():
		return fmt.Errorf("loopback address")
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return fmt.Errorf("link-local address")
	case addr.IsPrivate():
		return fmt.Errorf("private address")
	case addr.IsUnspecified():
		return fmt.Errorf("unspecified address")
	case addr.IsMulticast():
		return fmt.Errorf("multicast address")
	case isUniqueLocal(addr):
		return fmt.Errorf("unique-local address")
	case isBroadcast(addr):
		return fmt.Errorf("broadcast address")
	}
	return nil
}

// isUniqueLocal reports whether addr is an IPv6 unique-local address
// (fc00::/7); netip has no built-in predicate for this range.
func isUniqueLocal(addr netip.Addr) bool {
	return addr.Is6() && !addr.Is4In6() && (addr.As16()[0]&0xfe) == 0xfc
}

func isBroadcast(addr netip.Addr) bool {
	return addr.Is4() && addr == netip.MustParseAddr("255.255.255.255")
}
