// Package storage holds helpers shared by the raw-markup blob stores.
package storage

import (
	"path"
	"strings"
)

// ContentTypeHTML is the content type used for archived page markup.
const ContentTypeHTML = "text/html; charset=utf-8"

// ArchivePath builds the content-addressed object path for a target's raw
// markup: <prefix>/<target_id>/<fingerprint>.html.
func ArchivePath(prefix, targetID, fingerprint string) string {
	prefix = strings.Trim(prefix, "/")
	name := fingerprint + ".html"
	if prefix == "" {
		return path.Join(targetID, name)
	}
	return path.Join(prefix, targetID, name)
}
