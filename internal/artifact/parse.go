// Package artifact turns an assistant reply written in the boltArtifact
// protocol into an ordered list of build actions.
//
//	<boltArtifact title="...">
//	  <boltAction type="file" filePath="src/App.tsx">...</boltAction>
//	  <boltAction type="shell">npm run dev</boltAction>
//	</boltArtifact>
//
// Parsing never fails: malformed or conversational replies degrade to a
// best-effort action list.
package artifact

import (
	"regexp"
	"strings"
	"time"
)

const (
	DefaultTitle  = "Project Files"
	RecoveryTitle = "Generated Project"
	FallbackTitle = "Generate Project"

	fallbackDescription = "AI is generating your project..."
)

var (
	artifactRe = regexp.MustCompile(`(?s)<boltArtifact\b([^>]*)>(.*?)</boltArtifact>`)
	actionRe   = regexp.MustCompile(`(?s)<boltAction\b([^>]*)>(.*?)</boltAction>`)
	attrRe     = regexp.MustCompile(`([A-Za-z_][\w-]*)\s*=\s*"([^"]*)"`)
)

// now is swapped in tests.
var now = time.Now

// Parse extracts actions from raw in document order. startID is the 1-based
// position of the first action within the session; on the first call of a
// session (startID == 1) ids are offset by the current time in milliseconds
// so that they stay unique across sessions. Two first calls issued within the
// same millisecond tick can collide.
func Parse(raw string, startID int) []Action {
	return parse(raw, startID, true)
}

func parse(raw string, startID int, allowRecovery bool) []Action {
	m := artifactRe.FindStringSubmatch(raw)
	if m == nil {
		if allowRecovery && actionRe.MatchString(raw) {
			wrapped := `<boltArtifact title="` + RecoveryTitle + `">` + raw + `</boltArtifact>`
			return parse(wrapped, startID, false)
		}
		return []Action{{
			ID:          idBase(startID) + int64(startID),
			Kind:        KindRunScript,
			Title:       FallbackTitle,
			Description: fallbackDescription,
			Code:        raw,
		}}
	}

	attrs := parseAttrs(m[1])
	title, ok := attrs["title"]
	if !ok {
		title = DefaultTitle
	}

	base := idBase(startID)
	next := int64(startID)
	nextID := func() int64 {
		id := base + next
		next++
		return id
	}

	actions := []Action{{
		ID:    nextID(),
		Kind:  KindCreateFolder,
		Title: title,
	}}

	for _, am := range actionRe.FindAllStringSubmatch(m[2], -1) {
		a := parseAttrs(am[1])
		body := strings.TrimSpace(am[2])

		switch a["type"] {
		case "file":
			path := a["filePath"]
			label := path
			if label == "" {
				label = "file"
			}
			actions = append(actions, Action{
				ID:    nextID(),
				Kind:  KindCreateFile,
				Title: "Create " + label,
				Path:  path,
				Code:  body,
			})
		case "shell":
			actions = append(actions, Action{
				ID:    nextID(),
				Kind:  KindRunScript,
				Title: "Run command",
				Code:  body,
			})
		}
	}

	return actions
}

func idBase(startID int) int64 {
	if startID == 1 {
		return now().UnixMilli()
	}
	return 0
}

func parseAttrs(s string) map[string]string {
	out := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(s, -1) {
		if _, seen := out[m[1]]; !seen {
			out[m[1]] = m[2]
		}
	}
	return out
}
