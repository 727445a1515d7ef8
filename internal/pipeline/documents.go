package pipeline

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// StatementObjectPath is where an uploaded statement is stored:
// statements/{userID}/{yyyy/mm/dd}/{id}-{filename}.
func StatementObjectPath(userID string, at time.Time, id, filename string) string {
	return path.Join(
		StatementsPrefix,
		userID,
		at.UTC().Format("2006/01/02"),
		fmt.Sprintf("%s-%s", id, sanitizeFilename(filename)),
	)
}

// sanitizeFilename keeps the base name and replaces anything outside [A-Za-z0-9._-].
func sanitizeFilename(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "statement"
	}
	clean := strings.Trim(unsafeFilenameChars.ReplaceAllString(base, "_"), "_")
	if clean == "" {
		return "statement"
	}
	return clean
}
