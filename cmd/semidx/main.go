// Command semidx is the CLI binding over the semantic index core: the
// same operations the stdio protocol exposes, mapped to subcommands,
// plus the MCP server itself under `serve`.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/semidx/internal/cachepath"
	"github.com/standardbeagle/semidx/internal/config"
	"github.com/standardbeagle/semidx/internal/encode"
	"github.com/standardbeagle/semidx/internal/errs"
	"github.com/standardbeagle/semidx/internal/fresh"
	"github.com/standardbeagle/semidx/internal/gitutil"
	"github.com/standardbeagle/semidx/internal/langregistry"
	"github.com/standardbeagle/semidx/internal/protocol"
	"github.com/standardbeagle/semidx/internal/query"
	"github.com/standardbeagle/semidx/internal/shard"
	"github.com/standardbeagle/semidx/internal/types"
	"github.com/standardbeagle/semidx/internal/watch"
)

var version = "0.1.0"

func main() {
	configureLogging()

	app := &cli.App{
		Name:                   "semidx",
		Usage:                  "Semantic code index and query engine for AI coding agents",
		Version:                version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Repository root (default: current directory)",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: text, toon, json",
				Value: "toon",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Verbose logging",
			},
			&cli.BoolFlag{
				Name:  "progress",
				Usage: "Report reindex progress on stderr",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
			return nil
		},
		Commands: []*cli.Command{
			analyzeCommand(),
			searchCommand(),
			queryCommand(),
			traceCommand(),
			validateCommand(),
			indexCommand(),
			cacheCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		var typed *errs.Error
		if errors.As(err, &typed) {
			fmt.Fprintln(os.Stderr, typed.Error())
			os.Exit(typed.Kind.ExitCode())
		}
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configureLogging reads the SEMIDX_LOG environment variable
// (debug|info|warn|error), defaulting to warn so stdio stays clean for
// protocol use.
func configureLogging() {
	level := slog.LevelWarn
	switch strings.ToLower(os.Getenv("SEMIDX_LOG")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// session bundles everything a subcommand needs.
type session struct {
	engine *query.Engine
	guard  *fresh.Guard
	format string
}

func open(c *cli.Context) (*session, error) {
	root := c.String("root")
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = cwd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, errs.FileNotFound(abs, err)
	}

	repo, err := gitutil.Open(abs)
	if err != nil {
		return nil, err
	}
	root = repo.Root()

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	remote := repo.RemoteURL(c.Context)
	repoHash, err := cachepath.RepoHash(root, remote)
	if err != nil {
		return nil, err
	}
	cacheRoot, err := cachepath.Ensure(repoHash)
	if err != nil {
		return nil, err
	}

	langs := langregistry.New()
	writer, err := shard.Open(root, cacheRoot, cfg, langs)
	if err != nil {
		return nil, err
	}
	engine := query.New(root, cfg, langs, writer, repo)
	return &session{engine: engine, guard: fresh.New(engine), format: c.String("format")}, nil
}

// emit renders a typed payload in the session's format.
func (s *session) emit(kind string, v any) error {
	if s.format == "json" {
		data, err := json.MarshalIndent(map[string]any{"_type": kind, "result": v}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Print(encode.Marshal(kind, v))
	return nil
}

// admit runs the freshness guard, reporting progress when asked.
func (s *session) admit(c *cli.Context) error {
	note, err := s.guard.Ensure(c.Context)
	if err != nil {
		return err
	}
	if c.Bool("progress") && note.Status != "fresh" {
		fmt.Fprintf(os.Stderr, "index %s: %d files in %dms\n", note.Status, note.FilesUpdated, note.DurationMs)
	}
	return nil
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Extract semantic summaries for a file",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "start-line", Usage: "Focus range start"},
			&cli.IntFlag{Name: "end-line", Usage: "Focus range end"},
			&cli.StringFlag{Name: "module", Usage: "Analyze an indexed module instead of a path"},
		},
		Action: func(c *cli.Context) error {
			s, err := open(c)
			if err != nil {
				return err
			}
			opts := query.AnalyzeOptions{
				Path:      c.Args().First(),
				Module:    c.String("module"),
				StartLine: c.Int("start-line"),
				EndLine:   c.Int("end-line"),
			}
			if opts.Path == "" && opts.Module == "" {
				return cli.Exit("analyze: a path or --module is required", 1)
			}
			if opts.Module != "" {
				if err := s.admit(c); err != nil {
					return err
				}
			}
			resp, err := s.engine.Analyze(opts)
			if err != nil {
				return err
			}
			return s.emit("analysis", resp)
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the index",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Usage: "symbols | semantic | raw | hybrid", Value: "hybrid"},
			&cli.StringFlag{Name: "kind", Usage: "Filter by symbol kind"},
			&cli.StringFlag{Name: "risk", Usage: "Filter by risk level"},
			&cli.StringFlag{Name: "module", Usage: "Filter by module"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Max results", Value: query.DefaultLimit},
			&cli.IntFlag{Name: "offset", Usage: "Pagination offset"},
			&cli.BoolFlag{Name: "source", Usage: "Include symbol source"},
		},
		Action: func(c *cli.Context) error {
			if c.Args().First() == "" {
				return cli.Exit("search: a query is required", 1)
			}
			s, err := open(c)
			if err != nil {
				return err
			}
			if err := s.admit(c); err != nil {
				return err
			}
			resp, err := s.engine.Search(c.Context, query.SearchOptions{
				Query:         c.Args().First(),
				Mode:          query.SearchMode(c.String("mode")),
				Kind:          types.SymbolKind(c.String("kind")),
				Risk:          types.RiskLevel(c.String("risk")),
				Module:        c.String("module"),
				Limit:         c.Int("limit"),
				Offset:        c.Int("offset"),
				IncludeSource: c.Bool("source"),
			})
			if err != nil {
				return err
			}
			return s.emit("search_results", resp)
		},
	}
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "Point lookups over the index",
		Subcommands: []*cli.Command{
			{
				Name:  "context",
				Usage: "Branch, HEAD, and index status",
				Action: func(c *cli.Context) error {
					s, err := open(c)
					if err != nil {
						return err
					}
					if err := s.admit(c); err != nil {
						return err
					}
					info, err := s.engine.Context(c.Context)
					if err != nil {
						return err
					}
					return s.emit("context", info)
				},
			},
			{
				Name:  "overview",
				Usage: "Bounded repository overview",
				Flags: []cli.Flag{&cli.IntFlag{Name: "max-modules", Usage: "Module summary cap"}},
				Action: func(c *cli.Context) error {
					s, err := open(c)
					if err != nil {
						return err
					}
					if err := s.admit(c); err != nil {
						return err
					}
					overview, err := s.engine.Overview(c.Int("max-modules"))
					if err != nil {
						return err
					}
					return s.emit("overview", overview)
				},
			},
			{
				Name:      "symbol",
				Usage:     "Full symbol shard(s) by hash",
				ArgsUsage: "<shardHash:symbolHash>...",
				Action: func(c *cli.Context) error {
					s, err := open(c)
					if err != nil {
						return err
					}
					if err := s.admit(c); err != nil {
						return err
					}
					shards, err := s.engine.Symbols(query.SymbolLocator{Hashes: c.Args().Slice()})
					if err != nil {
						return err
					}
					return s.emit("symbols", struct {
						Symbols []*types.SymbolShard `json:"symbols"`
					}{shards})
				},
			},
			{
				Name:      "source",
				Usage:     "Raw source for a symbol hash",
				ArgsUsage: "<shardHash:symbolHash>",
				Action: func(c *cli.Context) error {
					s, err := open(c)
					if err != nil {
						return err
					}
					if err := s.admit(c); err != nil {
						return err
					}
					blocks, err := s.engine.Source(query.SymbolLocator{Hashes: c.Args().Slice()}, 0, 0)
					if err != nil {
						return err
					}
					return s.emit("source", struct {
						Blocks []*query.SourceBlock `json:"blocks"`
					}{blocks})
				},
			},
			{
				Name:      "file",
				Usage:     "Symbols belonging to a file",
				ArgsUsage: "<path>",
				Action: func(c *cli.Context) error {
					s, err := open(c)
					if err != nil {
						return err
					}
					if err := s.admit(c); err != nil {
						return err
					}
					entries, err := s.engine.File(c.Args().First())
					if err != nil {
						return err
					}
					return s.emit("file_symbols", struct {
						File    string                   `json:"file"`
						Symbols []types.SymbolIndexEntry `json:"symbols"`
					}{c.Args().First(), entries})
				},
			},
			{
				Name:  "callgraph",
				Usage: "Call-graph edges or summary",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "symbol", Usage: "Restrict to one symbol hash"},
					&cli.StringFlag{Name: "module", Usage: "Restrict to one module"},
					&cli.BoolFlag{Name: "summary", Usage: "Aggregate stats only"},
					&cli.IntFlag{Name: "limit", Usage: "Edges per page", Value: 50},
					&cli.IntFlag{Name: "offset", Usage: "Pagination offset"},
				},
				Action: func(c *cli.Context) error {
					s, err := open(c)
					if err != nil {
						return err
					}
					if err := s.admit(c); err != nil {
						return err
					}
					resp, err := s.engine.CallGraph(query.GraphOptions{
						SymbolHash:  c.String("symbol"),
						Module:      c.String("module"),
						SummaryOnly: c.Bool("summary"),
						Limit:       c.Int("limit"),
						Offset:      c.Int("offset"),
					})
					if err != nil {
						return err
					}
					return s.emit("callgraph", resp)
				},
			},
			{
				Name:      "diff",
				Usage:     "Typed deltas between two refs",
				ArgsUsage: "<base-ref> [target-ref]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "summary", Usage: "Per-kind counts only"},
					&cli.IntFlag{Name: "limit", Usage: "Max deltas", Value: 50},
					&cli.IntFlag{Name: "offset", Usage: "Pagination offset"},
				},
				Action: func(c *cli.Context) error {
					s, err := open(c)
					if err != nil {
						return err
					}
					resp, err := s.engine.AnalyzeDiff(c.Context, query.DiffOptions{
						BaseRef:     c.Args().Get(0),
						TargetRef:   c.Args().Get(1),
						Limit:       c.Int("limit"),
						Offset:      c.Int("offset"),
						SummaryOnly: c.Bool("summary"),
					})
					if err != nil {
						return err
					}
					return s.emit("diff", resp)
				},
			},
			{
				Name:  "duplicates",
				Usage: "Duplicate symbol clusters",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "threshold", Usage: "Similarity floor", Value: 0.85},
					&cli.IntFlag{Name: "min-lines", Usage: "Smallest symbol considered", Value: 5},
					&cli.StringFlag{Name: "module", Usage: "Scope to one module"},
					&cli.IntFlag{Name: "limit", Usage: "Max clusters", Value: query.DefaultLimit},
					&cli.IntFlag{Name: "offset", Usage: "Pagination offset"},
					&cli.StringFlag{Name: "sort-by", Usage: "similarity | size | count"},
				},
				Action: func(c *cli.Context) error {
					s, err := open(c)
					if err != nil {
						return err
					}
					if err := s.admit(c); err != nil {
						return err
					}
					resp, err := s.engine.FindDuplicates(query.DuplicateOptions{
						Threshold: c.Float64("threshold"),
						MinLines:  c.Int("min-lines"),
						Module:    c.String("module"),
						Limit:     c.Int("limit"),
						Offset:    c.Int("offset"),
						SortBy:    c.String("sort-by"),
					})
					if err != nil {
						return err
					}
					return s.emit("duplicates", resp)
				},
			},
		},
	}
}

func traceCommand() *cli.Command {
	return &cli.Command{
		Name:      "trace",
		Usage:     "Reverse call-graph traversal: who calls this symbol",
		ArgsUsage: "<shardHash:symbolHash>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "depth", Usage: "Traversal depth 1-5", Value: 1},
			&cli.IntFlag{Name: "limit", Usage: "Max callers", Value: query.DefaultLimit},
		},
		Action: func(c *cli.Context) error {
			if c.Args().First() == "" {
				return cli.Exit("trace: a symbol hash is required", 1)
			}
			s, err := open(c)
			if err != nil {
				return err
			}
			if err := s.admit(c); err != nil {
				return err
			}
			resp, err := s.engine.Callers(c.Args().First(), c.Int("depth"), c.Int("limit"))
			if err != nil {
				return err
			}
			return s.emit("callers", resp)
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Complexity metrics and risk classification",
		ArgsUsage: "[file-or-module-or-hash]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Usage: "Max rows", Value: query.DefaultLimit},
			&cli.IntFlag{Name: "offset", Usage: "Pagination offset"},
		},
		Action: func(c *cli.Context) error {
			s, err := open(c)
			if err != nil {
				return err
			}
			if err := s.admit(c); err != nil {
				return err
			}
			opts := query.ValidateOptions{Limit: c.Int("limit"), Offset: c.Int("offset")}
			target := c.Args().First()
			switch {
			case target == "":
			case strings.Contains(target, ":"):
				opts.SymbolHash = target
			case strings.ContainsAny(target, "/\\") || filepath.Ext(target) != "":
				opts.FilePath = target
			default:
				opts.Module = target
			}
			resp, err := s.engine.Validate(opts)
			if err != nil {
				return err
			}
			return s.emit("metrics", resp)
		},
	}
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Index management",
		Subcommands: []*cli.Command{
			{
				Name:  "refresh",
				Usage: "Reconcile the index with the source tree",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "force", Usage: "Force a full rebuild"}},
				Action: func(c *cli.Context) error {
					s, err := open(c)
					if err != nil {
						return err
					}
					note, err := s.guard.Refresh(c.Context, c.Bool("force"))
					if err != nil {
						return err
					}
					return s.emit("index_status", note)
				},
			},
			{
				Name:  "check",
				Usage: "Classify drift without reindexing",
				Action: func(c *cli.Context) error {
					s, err := open(c)
					if err != nil {
						return err
					}
					res, err := s.guard.Check(c.Context)
					if err != nil {
						return err
					}
					return s.emit("index_status", struct {
						Status       string   `json:"status"`
						IndexedSHA   string   `json:"indexed_sha,omitempty"`
						CurrentSHA   string   `json:"current_sha,omitempty"`
						ChangedFiles []string `json:"changed_files,omitempty"`
						DriftRatio   float64  `json:"drift_ratio,omitempty"`
					}{string(res.Status), res.IndexedSHA, res.CurrentSHA, res.ChangedFiles, res.DriftRatio})
				},
			},
			{
				Name:  "clear",
				Usage: "Delete the repository's index",
				Action: func(c *cli.Context) error {
					s, err := open(c)
					if err != nil {
						return err
					}
					if err := s.guard.Clear(); err != nil {
						return err
					}
					return s.emit("index_status", struct {
						Status string `json:"status"`
					}{"cleared"})
				},
			},
		},
	}
}

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Cache directory management",
		Subcommands: []*cli.Command{
			{
				Name:  "path",
				Usage: "Print the repository's cache directory",
				Action: func(c *cli.Context) error {
					s, err := open(c)
					if err != nil {
						return err
					}
					fmt.Println(s.engine.Reader().Store().Root)
					return nil
				},
			},
			{
				Name:  "clear",
				Usage: "Delete the repository's cache directory",
				Action: func(c *cli.Context) error {
					s, err := open(c)
					if err != nil {
						return err
					}
					return s.guard.Clear()
				},
			},
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the query protocol over stdio",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-watch", Usage: "Disable the file watcher"},
		},
		Action: func(c *cli.Context) error {
			s, err := open(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if !c.Bool("no-watch") {
				w, err := startWatcher(ctx, s)
				if err != nil {
					slog.Warn("file watcher disabled", "err", err)
				} else {
					defer w.Close()
				}
			}

			srv := protocol.New(s.engine, s.guard)
			return srv.Run(ctx)
		},
	}
}

// startWatcher keeps the on-disk index current between queries (the
// Working layer overlay is not written by the watcher): each
// debounced batch runs a partial reindex under the writer lock, so a
// query arriving right after an edit usually finds the index already
// fresh instead of paying the reindex at admission time.
func startWatcher(ctx context.Context, s *session) (*watch.Watcher, error) {
	cfg := s.engine.Config()
	debounce := time.Duration(cfg.Index.WatchDebounceMs) * time.Millisecond
	accept := func(rel string) bool {
		if strings.HasSuffix(rel, "/") {
			return !cfg.ExcludedDir(rel)
		}
		return cfg.Matches(rel)
	}
	w, err := watch.New(s.engine.RepoRoot(), debounce, accept)
	if err != nil {
		return nil, err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-w.Batches():
				if !ok {
					return
				}
				paths := make([]string, 0, len(batch))
				for _, ev := range batch {
					paths = append(paths, ev.Path)
				}
				err := s.engine.WithWriteLock(func() error {
					sha := ""
					if s.engine.Repo().IsGitRepo(ctx) {
						if head, headErr := s.engine.Repo().HeadSHA(ctx); headErr == nil {
							sha = head
						}
					}
					_, werr := s.engine.Writer().PartialReindex(paths, sha)
					return werr
				})
				if err != nil {
					slog.Warn("watch-triggered reindex failed", "files", len(paths), "err", err)
				}
			}
		}
	}()
	return w, nil
}
