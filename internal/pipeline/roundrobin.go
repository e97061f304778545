package pipeline

import (
	"path/filepath"
	"sort"

	"github.com/backmassage/davpress/internal/naming"
)

// Safety cap on organizer passes. At batch 1 this still covers ten thousand
// files in a single folder.
const maxRoundRobinPasses = 10000

// OrganizeRoundRobin reorders a queue so every first-level folder gets
// service in turn: batch files from each folder, then the next folder,
// cycling until the queue is drained. Folders cycle in sorted order. When
// continueAfter names a folder the rotation starts at the one after it, so
// a rescan resumes the rotation instead of restarting it at the
// alphabetically first folder.
func OrganizeRoundRobin(files []string, srcRoot string, batch int, continueAfter string) []string {
	if len(files) == 0 {
		return nil
	}
	if batch < 1 {
		batch = 1
	}

	groups := make(map[string][]string)
	for _, f := range files {
		id := folderIDFor(f, srcRoot)
		groups[id] = append(groups[id], f)
	}
	order := make([]string, 0, len(groups))
	for id := range groups {
		order = append(order, id)
	}
	sort.Strings(order)

	if continueAfter != "" {
		for i, id := range order {
			if id == continueAfter {
				next := (i + 1) % len(order)
				order = append(order[next:], order[:next]...)
				break
			}
		}
	}

	out := make([]string, 0, len(files))
	for pass := 0; pass < maxRoundRobinPasses && len(out) < len(files); pass++ {
		for _, id := range order {
			g := groups[id]
			if len(g) == 0 {
				continue
			}
			n := batch
			if n > len(g) {
				n = len(g)
			}
			out = append(out, g[:n]...)
			groups[id] = g[n:]
		}
	}
	return out
}

// FolderCount returns the number of distinct first-level folders among the
// given files. The runner sizes its processing rounds from it.
func FolderCount(files []string, srcRoot string) int {
	seen := make(map[string]struct{})
	for _, f := range files {
		seen[folderIDFor(f, srcRoot)] = struct{}{}
	}
	return len(seen)
}

func folderIDFor(path, srcRoot string) string {
	rel, err := filepath.Rel(srcRoot, path)
	if err != nil {
		rel = path
	}
	return naming.FolderID(rel)
}
