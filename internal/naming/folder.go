package naming

import (
	"path/filepath"
	"strings"
)

// FolderID reduces a source-relative path to its scheduling unit: the
// first-level folder, which on DVR exports is one camera. Files sitting
// directly under the source root share the "." bucket.
func FolderID(relPath string) string {
	rel := filepath.ToSlash(relPath)
	if i := strings.Index(rel, "/"); i > 0 {
		return rel[:i]
	}
	return "."
}
