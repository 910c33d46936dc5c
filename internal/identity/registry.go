package identity

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/standardbeagle/semidx/internal/types"
)

// schemaVersion is bumped whenever the persisted registry row shape
// changes.
const schemaVersion = 1

type registryRow struct {
	SchemaVersion int    `json:"schema_version"`
	FullPath      string `json:"full_path"`
	ShortName     string `json:"short_name"`
	ShardPath     string `json:"shard_path"`
	FilePath      string `json:"file_path"`
}

// AddResult is the outcome of Registry.Add.
type AddResult struct {
	Short        string
	Conflict     bool
	ExistingFull string
	NewFull      string
	CollidingShort    string
	CollidingOldShort string
}

// Registry is the Module Registry: a bidirectional,
// persisted full-path <-> short-name table with O(1) point lookup both
// ways, built on an in-memory map loaded once and flushed as JSON
// Lines, without requiring an embedded database.
type Registry struct {
	mu          sync.RWMutex
	fullToEntry map[string]*types.ModuleRegistryEntry
	shortToFull map[string]string
	// leafDepth remembers, per leaf name, how many suffix components a
	// past conflict forced short names onto. A later module with the
	// same leaf starts at that depth, so resolving {game.player,
	// ui.player} and then adding audio.player yields "audio.player",
	// not a reclaimed bare "player".
	leafDepth map[string]int
	path      string
}

// NewRegistry creates an empty, unpersisted registry.
func NewRegistry(path string) *Registry {
	return &Registry{
		fullToEntry: make(map[string]*types.ModuleRegistryEntry),
		shortToFull: make(map[string]string),
		leafDepth:   make(map[string]int),
		path:        path,
	}
}

// Load bulk-loads a registry from its JSON-Lines file. A missing file is
// not an error; it means "no modules indexed yet".
func Load(path string) (*Registry, error) {
	r := NewRegistry(path)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: open registry: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var row registryRow
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("identity: decode registry row: %w", err)
		}
		r.fullToEntry[row.FullPath] = &types.ModuleRegistryEntry{
			FullPath: row.FullPath, ShortName: row.ShortName, ShardPath: row.ShardPath, FilePath: row.FilePath,
		}
		r.shortToFull[row.ShortName] = row.FullPath
		r.noteLeafDepth(row.FullPath, row.ShortName)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("identity: scan registry: %w", err)
	}
	return r, nil
}

// Flush persists the full registry as JSON Lines, one row per module,
// overwriting the prior file.
func (r *Registry) Flush() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tmp := r.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("identity: create registry staging file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, e := range r.fullToEntry {
		row := registryRow{SchemaVersion: schemaVersion, FullPath: e.FullPath, ShortName: e.ShortName, ShardPath: e.ShardPath, FilePath: e.FilePath}
		b, err := json.Marshal(row)
		if err != nil {
			f.Close()
			return err
		}
		w.Write(b)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

// Resolve maps a full module path to its short name (invariant: full ->
// short is O(1)).
func (r *Registry) Resolve(fullPath string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.fullToEntry[fullPath]
	if !ok {
		return "", false
	}
	return e.ShortName, true
}

// ResolveShort maps a short name back to its full path (short -> full is
// also O(1)).
func (r *Registry) ResolveShort(short string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	full, ok := r.shortToFull[short]
	return full, ok
}

// Entry returns the full registry entry for a module, if known.
func (r *Registry) Entry(fullPath string) (*types.ModuleRegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.fullToEntry[fullPath]
	return e, ok
}

func components(full string) []string {
	return strings.Split(full, ".")
}

// keepSuffix returns the short name formed by keeping the last n dotted
// components of full (n=1 is just the leaf name). Strip depth counts
// how many leading components are stripped away, which is the same
// thing read from the other end.
func keepSuffix(full string, n int) string {
	parts := components(full)
	if n >= len(parts) {
		return full
	}
	if n < 1 {
		n = 1
	}
	return strings.Join(parts[len(parts)-n:], ".")
}

// Add registers a new module, computing a conflict-aware short name:
// start from the shallowest suffix (the bare
// leaf name) that is unique among already-registered modules; on
// collision, re-lengthen both the new and the colliding module's short
// names in lockstep until they differ, updating the existing entry
// (including its shard path) in place.
func (r *Registry) Add(fullPath, filePath string) AddResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.fullToEntry[fullPath]; ok {
		return AddResult{Short: e.ShortName}
	}

	depth := 1
	if d := r.leafDepth[keepSuffix(fullPath, 1)]; d > depth {
		depth = d
	}
	for {
		candidate := keepSuffix(fullPath, depth)
		existingFull, collides := r.shortToFull[candidate]
		if !collides {
			r.insertLocked(fullPath, candidate, filePath)
			return AddResult{Short: candidate}
		}
		if existingFull == fullPath {
			r.insertLocked(fullPath, candidate, filePath)
			return AddResult{Short: candidate}
		}
		// Collision with a different module: expand both until they
		// differ.
		oldExistingShort := candidate
		newShort, existingShort := r.resolveConflictLocked(fullPath, existingFull)
		r.insertLocked(fullPath, newShort, filePath)
		return AddResult{
			Short: newShort, Conflict: true,
			ExistingFull: existingFull, NewFull: fullPath, CollidingShort: existingShort, CollidingOldShort: oldExistingShort,
		}
	}
}

// resolveConflictLocked expands newFull and existingFull's strip depths
// in lockstep until their short names differ, updating the existing
// module's entry (and shard path) in place. Caller must hold r.mu.
func (r *Registry) resolveConflictLocked(newFull, existingFull string) (newShort, existingShort string) {
	existingEntry := r.fullToEntry[existingFull]
	delete(r.shortToFull, existingEntry.ShortName)

	// free reports whether a candidate short is unclaimed, or claimed
	// only by the module it is being assigned to.
	free := func(short, owner string) bool {
		full, taken := r.shortToFull[short]
		return !taken || full == owner
	}

	depth := 2
	if d := r.leafDepth[keepSuffix(newFull, 1)]; d > depth {
		depth = d
	}
	for {
		ns := keepSuffix(newFull, depth)
		es := keepSuffix(existingFull, depth)
		if ns != es && free(ns, newFull) && free(es, existingFull) {
			existingEntry.ShortName = es
			existingEntry.ShardPath = shardPathFor(es)
			r.shortToFull[es] = existingFull
			r.noteLeafDepth(existingFull, es)
			return ns, es
		}
		depth++
		if depth > 64 {
			// Pathological equal-suffix paths; fall back to the full
			// path as the short name to guarantee termination.
			existingEntry.ShortName = existingFull
			existingEntry.ShardPath = shardPathFor(existingFull)
			r.shortToFull[existingFull] = existingFull
			return newFull, existingFull
		}
	}
}

func (r *Registry) insertLocked(fullPath, short, filePath string) {
	r.fullToEntry[fullPath] = &types.ModuleRegistryEntry{
		FullPath: fullPath, ShortName: short, ShardPath: shardPathFor(short), FilePath: filePath,
	}
	r.shortToFull[short] = fullPath
	r.noteLeafDepth(fullPath, short)
}

// noteLeafDepth records how deep a leaf name's short forms have been
// pushed. Caller must hold r.mu.
func (r *Registry) noteLeafDepth(fullPath, short string) {
	leaf := keepSuffix(fullPath, 1)
	if d := len(components(short)); d > r.leafDepth[leaf] {
		r.leafDepth[leaf] = d
	}
}

func shardPathFor(short string) string {
	return "modules/" + short + ".json"
}

// Remove deletes a module's registry entry, e.g. when its last
// constituent file is deleted.
func (r *Registry) Remove(fullPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.fullToEntry[fullPath]
	if !ok {
		return
	}
	delete(r.shortToFull, e.ShortName)
	delete(r.fullToEntry, fullPath)
}

// All returns every registered entry, for overview building.
func (r *Registry) All() []*types.ModuleRegistryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.ModuleRegistryEntry, 0, len(r.fullToEntry))
	for _, e := range r.fullToEntry {
		out = append(out, e)
	}
	return out
}
