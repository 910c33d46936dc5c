// Package errs defines the typed error taxonomy surfaced across the
// protocol and CLI boundary.
package errs

import (
	"fmt"
	"time"
)

// Kind is the stable error-code tag exported to both the protocol and
// the CLI exit-code mapping.
type Kind string

const (
	KindFileNotFound        Kind = "file_not_found"
	KindUnsupportedLanguage Kind = "unsupported_language"
	KindParseFailure        Kind = "parse_failure"
	KindExtractionFailure   Kind = "extraction_failure"
	KindGitError            Kind = "git_error"
	KindSymbolNotFound      Kind = "symbol_not_found"
	KindModuleNotFound      Kind = "module_not_found"
	KindStaleIndex          Kind = "stale_index"
	KindTruncated           Kind = "truncated"
)

// ExitCode maps a Kind to its CLI exit code.
func (k Kind) ExitCode() int {
	switch k {
	case KindFileNotFound:
		return 1
	case KindUnsupportedLanguage:
		return 2
	case KindParseFailure:
		return 3
	case KindExtractionFailure:
		return 4
	case KindGitError:
		return 5
	default:
		return 4
	}
}

// Error is the common shape for every typed error in the system:
// a kind, a human message, an optional hint, and a timestamp for
// diagnostics.
type Error struct {
	Kind      Kind
	Message   string
	Hint      string
	Op        string
	Path      string
	Timestamp time.Time
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Path)
	}
	if e.Hint != "" {
		msg = fmt.Sprintf("%s (hint: %s)", msg, e.Hint)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func new_(kind Kind, op, path, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Message: msg, Timestamp: time.Now(), Err: err}
}

func FileNotFound(path string, err error) *Error {
	return new_(KindFileNotFound, "resolve", path, "path does not exist", err)
}

func UnsupportedLanguage(path, ext string) *Error {
	e := new_(KindUnsupportedLanguage, "language_for", path, fmt.Sprintf("no parser registered for extension %q", ext), nil)
	return e
}

func ParseFailure(path string, err error) *Error {
	return new_(KindParseFailure, "parse", path, "parser returned an error tree", err)
}

func ExtractionFailure(path string, err error) *Error {
	return new_(KindExtractionFailure, "extract", path, "internal extractor invariant violated", err)
}

func GitError(op string, err error) *Error {
	return new_(KindGitError, op, "", "git command failed", err)
}

// SymbolNotFound always carries the full-hash hint.
func SymbolNotFound(hash string) *Error {
	e := new_(KindSymbolNotFound, "get_symbol", "", fmt.Sprintf("no symbol with hash %q", hash), nil)
	e.Hint = "use full shardHash:symbolHash"
	return e
}

func ModuleNotFound(name string) *Error {
	e := new_(KindModuleNotFound, "resolve_module", "", fmt.Sprintf("no module named %q", name), nil)
	e.Hint = "call get_overview to list known modules"
	return e
}

func StaleIndex(reason string, err error) *Error {
	return new_(KindStaleIndex, "reindex", "", reason, err)
}

// Truncated is not an error in the protocol sense (truncation is a
// partial result) but shares the Error shape for encoder convenience
// when a response is rendered as a diagnostic notice rather than data.
func Truncated(nextOffset int) *Error {
	return new_(KindTruncated, "paginate", "", fmt.Sprintf("response exceeds configured token budget, next_offset=%d", nextOffset), nil)
}
