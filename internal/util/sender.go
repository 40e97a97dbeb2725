// Package util has small helpers for presenting raw From headers. The scan
// pipeline treats the header as an opaque key; these are display-only.
package util

import (
	"net/mail"
	"strings"
)

// DisplayName extracts a human-friendly name from a From header.
// E.g., "Twitter <notify@twitter.com>" -> "Twitter". Falls back to the
// address, then to the raw header.
func DisplayName(fromHeader string) string {
	fromHeader = strings.TrimSpace(fromHeader)
	if fromHeader == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(fromHeader); err == nil && addr != nil {
		if name := strings.TrimSpace(addr.Name); name != "" {
			return name
		}
		return addr.Address
	}
	// Unparsable header; best-effort strip of a trailing <...> part.
	if idx := strings.Index(fromHeader, "<"); idx > 0 {
		if name := strings.Trim(strings.TrimSpace(fromHeader[:idx]), `"'`); name != "" {
			return name
		}
	}
	return fromHeader
}

// Address extracts the bare lowercase address from a From header, or ""
// if none parses.
func Address(fromHeader string) string {
	if fromHeader == "" {
		return ""
	}
	addr, err := mail.ParseAddress(fromHeader)
	if err != nil || addr == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(addr.Address))
}
