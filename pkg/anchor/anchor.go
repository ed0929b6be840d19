// Package anchor extracts named sub-sections from memory files.
//
// A section is delimited by HTML comment markers so it survives any markdown
// renderer:
//
//	<!-- ANCHOR:decisions -->
//	...
//	<!-- /ANCHOR:decisions -->
//
// Anchor ids are matched case-insensitively and whitespace inside the
// markers is ignored. A section ends at the first matching close marker
// after its open marker.
package anchor

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNotFound is returned when the content has no complete section for the
// requested anchor.
var ErrNotFound = errors.New("anchor not found")

var marker = regexp.MustCompile(`(?i)<!--\s*(/?)\s*ANCHOR\s*:\s*([A-Za-z0-9_.\-]+)\s*-->`)

// Extract returns the trimmed content between the open and close markers of
// id.
func Extract(content, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrNotFound
	}

	start := -1
	for _, m := range marker.FindAllStringSubmatchIndex(content, -1) {
		closing := m[3] > m[2]
		name := content[m[4]:m[5]]
		if !strings.EqualFold(name, id) {
			continue
		}
		switch {
		case !closing && start < 0:
			start = m[1]
		case closing && start >= 0:
			return strings.TrimSpace(content[start:m[0]]), nil
		}
	}
	return "", ErrNotFound
}

// List returns the ids of every opened anchor, in order of appearance,
// lowercased and without duplicates.
func List(content string) []string {
	var (
		ids  []string
		seen = make(map[string]struct{})
	)
	for _, m := range marker.FindAllStringSubmatch(content, -1) {
		if m[1] == "/" {
			continue
		}
		id := strings.ToLower(m[2])
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Wrap returns body enclosed in markers for id.
func Wrap(id, body string) string {
	return "<!-- ANCHOR:" + id + " -->\n" + strings.TrimSpace(body) + "\n<!-- /ANCHOR:" + id + " -->\n"
}
