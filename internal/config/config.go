// Package config loads the per-repository index configuration from a
// KDL document at the repository root.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	"github.com/bmatcuk/doublestar/v4"
)

// ConfigFileName is the file indexing looks for at the repository root.
const ConfigFileName = ".semidx.kdl"

// Index holds indexing-scope knobs.
type Index struct {
	MaxFileSize      int64
	MaxTotalSizeMB   int64
	MaxFileCount     int
	FollowSymlinks   bool
	RespectGitignore bool
	WatchDebounceMs  int
}

// Performance holds worker-pool knobs for the parallel reindex.
type Performance struct {
	MaxGoroutines int
}

// Config is the fully-resolved per-repository configuration.
type Config struct {
	Root    string
	Index   Index
	Perf    Performance
	Include []string
	Exclude []string
}

// Default returns the built-in defaults applied before any KDL
// document is parsed.
func Default(root string) *Config {
	return &Config{
		Root: root,
		Index: Index{
			MaxFileSize:      10 * 1024 * 1024,
			MaxTotalSizeMB:   500,
			MaxFileCount:     50000,
			FollowSymlinks:   false,
			RespectGitignore: true,
			WatchDebounceMs:  500,
		},
		Perf:    Performance{MaxGoroutines: 4},
		Include: nil,
		Exclude: defaultExclusions(),
	}
}

// Load reads ConfigFileName from root, if present, and overlays it onto
// the defaults. A missing config file is not an error.
func Load(root string) (*Config, error) {
	cfg := Default(root)

	path := filepath.Join(root, ConfigFileName)
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "index":
			applyIndexSection(cfg, n)
		case "performance":
			applyPerfSection(cfg, n)
		case "include":
			cfg.Include = collectStringArgs(n)
		case "exclude":
			cfg.Exclude = append(cfg.Exclude, collectStringArgs(n)...)
		}
	}
	return cfg, nil
}

func applyIndexSection(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "max_file_size":
			if s, ok := firstStringArg(cn); ok {
				if sz, err := parseSize(s); err == nil {
					cfg.Index.MaxFileSize = sz
				}
			} else if v, ok := firstIntArg(cn); ok {
				cfg.Index.MaxFileSize = int64(v)
			}
		case "max_total_size_mb":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.MaxTotalSizeMB = int64(v)
			}
		case "max_file_count":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.MaxFileCount = v
			}
		case "follow_symlinks":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Index.FollowSymlinks = b
			}
		case "respect_gitignore":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Index.RespectGitignore = b
			}
		case "watch_debounce_ms":
			if v, ok := firstIntArg(cn); ok {
				cfg.Index.WatchDebounceMs = v
			}
		}
	}
}

func applyPerfSection(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		if nodeName(cn) == "max_goroutines" {
			if v, ok := firstIntArg(cn); ok {
				cfg.Perf.MaxGoroutines = v
			}
		}
	}
}

// Matches reports whether relPath should be indexed given cfg's
// include/exclude glob lists: exclude wins, include (when non-empty)
// is otherwise required.
func (c *Config) Matches(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, pat := range c.Exclude {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return false
		}
	}
	if len(c.Include) == 0 {
		return true
	}
	for _, pat := range c.Include {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return true
		}
	}
	return false
}

// ExcludedDir reports whether a directory is excluded wholesale, for
// callers that prune directory trees (the watcher). Include patterns
// are file-targeted and don't apply here; a directory is only pruned
// when an exclude glob would reject everything inside it.
func (c *Config) ExcludedDir(relDir string) bool {
	relDir = strings.TrimSuffix(filepath.ToSlash(relDir), "/")
	probe := relDir + "/_"
	for _, pat := range c.Exclude {
		if ok, _ := doublestar.Match(pat, probe); ok {
			return true
		}
	}
	return false
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	b, ok := n.Arguments[0].Value.(bool)
	return b, ok
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	s, ok := n.Arguments[0].Value.(string)
	return s, ok
}

func collectStringArgs(n *document.Node) []string {
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		mult, s = 1024*1024*1024, strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		mult, s = 1024*1024, strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		mult, s = 1024, strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}

// defaultExclusions covers the categories that matter for a
// multi-language source index: dependency and build-artifact dirs,
// minified bundles, compiled objects.
func defaultExclusions() []string {
	return []string{
		"**/.*/**",
		"**/node_modules/**",
		"**/vendor/**",
		"**/.venv/**",
		"**/venv/**",
		"**/__pycache__/**",
		"**/target/**",
		"**/dist/**",
		"**/build/**",
		"**/out/**",
		"**/bin/**",
		"**/obj/**",
		"**/.git/**",
		"**/*.min.js",
		"**/*.min.css",
		"**/*.pyc",
		"**/*.class",
		"**/*.o",
		"**/*.so",
		"**/*.dll",
		"**/*.exe",
	}
}
