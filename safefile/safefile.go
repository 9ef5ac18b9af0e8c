// Package safefile provides the file-safety primitives shared across the
// codexa intake pipeline: upload filename sanitization, storage-name
// construction, path traversal guards, and bounded I/O helpers.
package safefile

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// MaxUploadNameLen caps the sanitized filename length used in storage names.
const MaxUploadNameLen = 128

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("safefile: path traversal detected")

// SafePath validates that joining base and userInput does not escape base.
// Returns the cleaned path or ErrPathTraversal.
func SafePath(base, userInput string) (string, error) {
	if strings.Contains(userInput, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(base, filepath.Clean("/"+userInput))
	if !strings.HasPrefix(cleaned, filepath.Clean(base)+string(filepath.Separator)) &&
		cleaned != filepath.Clean(base) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// SanitizeFilename strips any directory components from an uploaded filename
// and maps it onto the characters safe for storage names: alphanumerics,
// underscore, hyphen, and dot. Spaces become underscores. An empty or fully
// rejected name falls back to "upload".
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r == ' ':
			sb.WriteByte('_')
		case isNameChar(r):
			sb.WriteRune(r)
		}
	}
	out := strings.Trim(sb.String(), ".")
	if out == "" {
		out = "upload"
	}
	if len(out) > MaxUploadNameLen {
		out = out[:MaxUploadNameLen]
	}
	return out
}

// StorageName builds the on-disk name for an upload received at t:
// "20060102T150405Z__<digest-prefix>__<sanitized-filename>". The digest
// prefix keeps two same-named uploads arriving within the same second from
// sharing a path; each record owns its stored file exclusively.
func StorageName(t time.Time, digest, originalName string) string {
	p := digest
	if len(p) > 8 {
		p = p[:8]
	}
	return t.UTC().Format("20060102T150405Z") + "__" + p + "__" + SanitizeFilename(originalName)
}

// Stem returns the filename without its final extension.
func Stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LimitedReadAll reads at most maxBytes from r and errors if the limit
// is exceeded, so a single oversized upload cannot exhaust memory.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("safefile: input exceeds %d bytes", maxBytes)
	}
	return data, nil
}

func isNameChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
