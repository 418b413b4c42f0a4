// Package pathmap implements the deterministic, filesystem-free translation
// of a Windows-style source-relative path into its Linux target-relative
// path, per spec component C2: top-level folder localization, the Desktop
// expansion, and per-browser profile redirection.
package pathmap

import (
	"path"
	"strings"
)

// Mapping is the static configuration driving path translation. It is
// loaded once and never mutated at runtime.
type Mapping struct {
	// FolderMapping is a bijective partial mapping of top-level English
	// folder names to their localized counterparts, e.g.
	// "Documents" -> "Документы".
	FolderMapping map[string]string `yaml:"folder_mapping"`

	// DesktopRename expands a single segment (conventionally "Desktop")
	// into a sequence of segments, e.g. "Desktop" -> ["Desktops", "Desktop1"].
	DesktopRename map[string][]string `yaml:"desktop_rename"`

	// BrowserRedirect maps a browser name (the second segment of a
	// "BrowserData/<browser>/..." path) to the path, relative to the
	// user's home directory, of that browser's profile root.
	BrowserRedirect map[string]string `yaml:"browser_redirect"`
}

// browserDataSegment is the fixed top-level segment recognized for browser
// profile redirection.
const browserDataSegment = "BrowserData"

// Translate converts a Windows-style path into a target-relative (or, if
// applyBase is true, target-absolute) path.
//
//   - input: the Windows-style source-relative path (may use backslashes).
//   - base: the target home directory; only used when applyBase is true.
//   - networkPrefix: if non-empty and input begins with it, the prefix is
//     stripped before translation (used for network-mounted sources that
//     hand back prefixed paths).
//   - mapping: the static folder/desktop/browser mapping.
//   - applyBase: whether to prepend base to the translated path.
//
// Translate never touches the filesystem; for a given (input, base, prefix,
// mapping, applyBase) its output is pure.
func Translate(input, base, networkPrefix string, mapping Mapping, applyBase bool) string {
	normalized := strings.ReplaceAll(input, `\`, "/")

	if networkPrefix != "" {
		normalizedPrefix := strings.ReplaceAll(networkPrefix, `\`, "/")
		if strings.HasPrefix(normalized, normalizedPrefix) {
			normalized = normalized[len(normalizedPrefix):]
		}
	}

	normalized = strings.TrimPrefix(normalized, "/")

	segments := strings.Split(normalized, "/")
	translated := make([]string, 0, len(segments)+1)
	for _, segment := range segments {
		if expansion, ok := mapping.DesktopRename[segment]; ok {
			translated = append(translated, expansion...)
		} else if localized, ok := mapping.FolderMapping[segment]; ok {
			translated = append(translated, localized)
		} else {
			translated = append(translated, segment)
		}
	}

	translated = applyBrowserRedirect(translated, mapping)

	if applyBase && base != "" {
		return path.Join(append([]string{base}, translated...)...)
	}
	return path.Join(translated...)
}

// applyBrowserRedirect checks whether segments begins with
// "BrowserData/<browser>/..." and, if so, replaces that prefix with the
// browser's configured profile root, keeping the remainder of the path.
func applyBrowserRedirect(segments []string, mapping Mapping) []string {
	if len(segments) < 2 || segments[0] != browserDataSegment {
		return segments
	}
	browser := segments[1]
	root, ok := mapping.BrowserRedirect[browser]
	if !ok {
		return segments
	}

	remainder := segments[2:]
	rootSegments := strings.Split(strings.Trim(root, "/"), "/")
	result := make([]string, 0, len(rootSegments)+len(remainder))
	result = append(result, rootSegments...)
	result = append(result, remainder...)
	return result
}
