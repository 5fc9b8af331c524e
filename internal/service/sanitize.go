package service

import (
	"html"
	"path"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// cleanText strips all markup from user supplied text. Entities are decoded
// first so encoded tags are stripped too; the sanitized output is stored as is.
func cleanText(s string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(html.UnescapeString(s)))
}

const maxFileNameLen = 128

// cleanFileName reduces a client file name to a safe object key segment.
func cleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if len(out) > maxFileNameLen {
		out = out[len(out)-maxFileNameLen:]
	}
	if out == "" {
		out = "file"
	}
	return out
}
