package extract

import "strings"

// extractImportPath pulls the module/path literal out of an import
// statement's raw text across the supported grammars: it looks for the
// first quoted string, which covers Go, JS/TS, Rust `use` paths quoted
// in string form is rare so this also handles bare paths after
// "import"/"use"/"from".
func extractImportPath(text string) string {
	if q := quotedLiteral(text); q != "" {
		return q
	}
	text = strings.TrimSpace(text)
	for _, kw := range []string{"import", "use", "from", "require", "include", "namespace"} {
		if strings.HasPrefix(text, kw+" ") {
			text = strings.TrimSpace(strings.TrimPrefix(text, kw+" "))
			break
		}
	}
	text = strings.TrimSuffix(text, ";")
	if idx := strings.IndexAny(text, " \t({"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

func quotedLiteral(text string) string {
	for _, q := range []byte{'"', '\'', '`'} {
		start := strings.IndexByte(text, q)
		if start < 0 {
			continue
		}
		end := strings.IndexByte(text[start+1:], q)
		if end < 0 {
			continue
		}
		return text[start+1 : start+1+end]
	}
	return ""
}

// isLocalImportPath classifies an import target as repo-local (relative
// path, or a path-looking module specifier) versus an external
// dependency.
func isLocalImportPath(path string) bool {
	if path == "" {
		return false
	}
	if strings.HasPrefix(path, ".") {
		return true
	}
	if strings.HasPrefix(path, "/") {
		return true
	}
	// Go-style internal paths within the indexed module tree read as
	// dotted-looking once canonicalized; heuristically, anything with a
	// recognizable domain-style host (a dot before the first slash) is
	// treated as an external package path, everything else as local.
	firstSlash := strings.IndexByte(path, '/')
	if firstSlash < 0 {
		return true
	}
	host := path[:firstSlash]
	return !strings.Contains(host, ".")
}
