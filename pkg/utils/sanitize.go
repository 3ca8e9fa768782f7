package utils

import (
	"regexp"
	"strings"
)

var (
	reFolderStrip    = regexp.MustCompile(`[^\w\s-]`)
	reFolderSpaces   = regexp.MustCompile(`\s+`)
	maxFolderNameLen = 50
)

// SanitizeFolderName converts an arbitrary name (typically a sender) into a
// filesystem-safe folder name: disallowed characters removed, whitespace
// collapsed to underscores, length capped. Empty input becomes "UnknownSender".
func SanitizeFolderName(name string) string {
	if strings.TrimSpace(name) == "" {
		name = "UnknownSender"
	}
	name = strings.TrimSpace(reFolderStrip.ReplaceAllString(name, ""))
	name = reFolderSpaces.ReplaceAllString(name, "_")
	if name == "" {
		name = "UnknownSender"
	}
	if len(name) > maxFolderNameLen {
		name = name[:maxFolderNameLen]
	}
	return name
}
