package extract

import (
	"fmt"
	"strings"

	"github.com/standardbeagle/semidx/internal/types"
)

// networkCallNames are call targets recognized as network/IPC
// introductions.
var networkCallNames = map[string]bool{
	"fetch": true, "axios": true, "get": true, "post": true, "put": true, "delete": true,
	"invoke": true, "send": true, "emit": true,
}

var fileIOCallNames = map[string]bool{
	"readFile": true, "writeFile": true, "open": true, "readFileSync": true, "writeFileSync": true,
	"ReadFile": true, "WriteFile": true, "Open": true, "Create": true,
}

// applyInsertionRules walks s.Calls and s.StateChanges to append the
// deterministic pattern-to-phrase insertions that don't require
// framework-specific context (those live in framework.go).
func applyInsertionRules(s *types.SemanticSummary) {
	for _, c := range s.Calls {
		bare := strings.TrimPrefix(c.Name, "ext:")
		if networkCallNames[bare] {
			s.Insertions = append(s.Insertions, "network call introduced")
			continue
		}
		if fileIOCallNames[bare] {
			s.Insertions = append(s.Insertions, "file I/O operation")
		}
	}
}

// effectInsertion renders the useEffect dependency-array phrase:
// "effect on [deps]", "effect on mount" (empty array), or
// "effect on every render" (no array argument at all).
func effectInsertion(deps []string, hasDepsArg bool) string {
	if !hasDepsArg {
		return "effect on every render"
	}
	if len(deps) == 0 {
		return "effect on mount"
	}
	return fmt.Sprintf("effect on %s", strings.Join(deps, ", "))
}
