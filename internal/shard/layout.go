// Package shard implements the Shard Writer: the
// on-disk sharded cache layout, full-write and partial-reindex
// algorithms, and the BM25/call-graph/module-registry maintenance that
// goes with them.
package shard

import "path/filepath"

// Store pins the directory layout under one repository's cache root.
type Store struct {
	Root string
}

func NewStore(root string) *Store { return &Store{Root: root} }

func (s *Store) OverviewPath() string       { return filepath.Join(s.Root, "repo_overview.json") }
func (s *Store) SymbolIndexPath() string    { return filepath.Join(s.Root, "symbol_index.jsonl") }
func (s *Store) BM25IndexPath() string      { return filepath.Join(s.Root, "bm25_index.json") }
func (s *Store) ModuleRegistryPath() string { return filepath.Join(s.Root, "module_registry.jsonl") }
func (s *Store) MetaPath() string           { return filepath.Join(s.Root, "meta.toml") }

func (s *Store) ModulesDir() string { return filepath.Join(s.Root, "modules") }
func (s *Store) SymbolsDir() string { return filepath.Join(s.Root, "symbols") }
func (s *Store) GraphsDir() string  { return filepath.Join(s.Root, "graphs") }
func (s *Store) LayersDir() string  { return filepath.Join(s.Root, "layers") }

func (s *Store) CallGraphPath() string   { return filepath.Join(s.GraphsDir(), "call_graph.jsonl") }
func (s *Store) ImportGraphPath() string { return filepath.Join(s.GraphsDir(), "import_graph.jsonl") }
func (s *Store) ModuleGraphPath() string { return filepath.Join(s.GraphsDir(), "module_graph.jsonl") }

func (s *Store) ModuleShardPath(shortName string) string {
	return filepath.Join(s.ModulesDir(), shortName+".json")
}

func (s *Store) SymbolShardPath(shardHash, symbolHash string) string {
	return filepath.Join(s.SymbolsDir(), shardHash+":"+symbolHash+".json")
}

func (s *Store) LayerDir(layer string) string {
	return filepath.Join(s.LayersDir(), layer)
}

// WorkingSnapshotPath holds the per-file mtime/size snapshot the
// Working layer's drift check compares against.
func (s *Store) WorkingSnapshotPath() string {
	return filepath.Join(s.LayerDir("working"), "snapshot.json")
}

// BranchMetaPath holds the Branch layer's indexed SHA and merge-base.
func (s *Store) BranchMetaPath() string {
	return filepath.Join(s.LayerDir("branch"), "meta.json")
}
