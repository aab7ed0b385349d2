// Package fspath normalizes and validates the virtual file and directory
// paths used throughout the engine's logical file views (lix_file,
// lix_directory). Behavior is ported from the original Rust engine's
// filesystem path module: NFC normalization, strict segment rules, and
// distinct file-vs-directory trailing-slash conventions.
package fspath

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/lixdb/lix/internal/lixerr"
)

// Parsed is the decomposition of a normalized file path.
type Parsed struct {
	NormalizedPath string
	DirectoryPath  string
	Name           string
	Extension      string
}

// NormalizeFilePath validates and NFC-normalizes a file path: it must start
// with "/", must not end with "/", must not be the bare root "/", must not
// contain "//" or "\\", and every segment must satisfy segment rules.
func NormalizeFilePath(path string) (string, error) {
	normalized := norm.NFC.String(path)
	if !strings.HasPrefix(normalized, "/") {
		return "", fmt.Errorf("%w: file path must start with '/': %q", lixerr.ErrInvalidID, path)
	}
	if normalized == "/" {
		return "", fmt.Errorf("%w: file path must not be bare '/': %q", lixerr.ErrInvalidID, path)
	}
	if strings.HasSuffix(normalized, "/") {
		return "", fmt.Errorf("%w: file path must not end with '/': %q", lixerr.ErrInvalidID, path)
	}
	if strings.Contains(normalized, "\\") {
		return "", fmt.Errorf("%w: file path must not contain '\\\\': %q", lixerr.ErrInvalidID, path)
	}
	if strings.Contains(normalized, "//") {
		return "", fmt.Errorf("%w: file path must not contain '//': %q", lixerr.ErrInvalidID, path)
	}
	if _, err := segments(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// NormalizeDirectoryPath validates and NFC-normalizes a directory path: it
// must start AND end with "/" and must not be the bare root "/".
func NormalizeDirectoryPath(path string) (string, error) {
	normalized := norm.NFC.String(path)
	if !strings.HasPrefix(normalized, "/") || !strings.HasSuffix(normalized, "/") {
		return "", fmt.Errorf("%w: directory path must start and end with '/': %q", lixerr.ErrInvalidID, path)
	}
	if normalized == "/" {
		return "", fmt.Errorf("%w: directory path must not be bare '/': %q", lixerr.ErrInvalidID, path)
	}
	if strings.Contains(normalized, "\\") || strings.Contains(normalized, "//") {
		return "", fmt.Errorf("%w: directory path malformed: %q", lixerr.ErrInvalidID, path)
	}
	if _, err := segments(strings.TrimSuffix(normalized, "/")); err != nil {
		return "", err
	}
	return normalized, nil
}

// ParseFilePath splits a normalized file path into directory, base name,
// and extension components.
func ParseFilePath(path string) (Parsed, error) {
	normalized, err := NormalizeFilePath(path)
	if err != nil {
		return Parsed{}, err
	}
	idx := strings.LastIndex(normalized, "/")
	dir := normalized[:idx+1]
	base := normalized[idx+1:]
	name, ext := base, ""
	if dot := strings.LastIndex(base, "."); dot > 0 {
		name, ext = base[:dot], base[dot+1:]
	}
	return Parsed{
		NormalizedPath: normalized,
		DirectoryPath:  dir,
		Name:           name,
		Extension:      ext,
	}, nil
}

// Depth returns the number of path segments (directory nesting level).
func Depth(normalizedPath string) int {
	trimmed := strings.Trim(normalizedPath, "/")
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "/"))
}

// AncestorDirectories returns every directory-path prefix of normalizedPath,
// from the immediate parent up to the top-level directory, in that order.
// The root "/" itself is not included.
func AncestorDirectories(normalizedPath string) []string {
	trimmed := strings.Trim(normalizedPath, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) <= 1 {
		return nil
	}
	var out []string
	for i := len(parts) - 1; i > 0; i-- {
		out = append(out, "/"+strings.Join(parts[:i], "/")+"/")
	}
	return out
}

func segments(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, "/")
	for _, seg := range parts {
		if err := validateSegment(seg); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

func validateSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("%w: empty path segment", lixerr.ErrInvalidID)
	}
	if seg == "." || seg == ".." {
		return fmt.Errorf("%w: path segment %q is not allowed", lixerr.ErrInvalidID, seg)
	}
	if !hasValidPercentEncoding(seg) {
		return fmt.Errorf("%w: invalid percent-encoding in segment %q", lixerr.ErrInvalidID, seg)
	}
	i := 0
	for i < len(seg) {
		c := seg[i]
		if c == '%' {
			i += 3 // already validated by hasValidPercentEncoding
			continue
		}
		if !isValidSegmentChar(c) {
			return fmt.Errorf("%w: invalid character %q in path segment %q", lixerr.ErrInvalidID, string(c), seg)
		}
		i++
	}
	return nil
}

func isValidSegmentChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == '~', c == '-':
		return true
	default:
		return false
	}
}

func hasValidPercentEncoding(seg string) bool {
	for i := 0; i < len(seg); i++ {
		if seg[i] != '%' {
			continue
		}
		if i+2 >= len(seg) || !isHexDigit(seg[i+1]) || !isHexDigit(seg[i+2]) {
			return false
		}
	}
	return true
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
