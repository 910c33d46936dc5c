package shard

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/standardbeagle/semidx/internal/types"
)

// Reader provides read-side access to one repository's persisted shard
// set. It holds no state beyond the Store layout, so queries can open
// one per request without coordination; mutation goes through Writer
// under the writer lock.
type Reader struct {
	store *Store
}

// NewReader wraps a Store for reading.
func NewReader(store *Store) *Reader { return &Reader{store: store} }

func (r *Reader) Store() *Store { return r.store }

// SymbolIndex loads every symbol index row. A missing index file reads
// as an empty index, not an error.
func (r *Reader) SymbolIndex() ([]types.SymbolIndexEntry, error) {
	return readJSONLines[types.SymbolIndexEntry](r.store.SymbolIndexPath())
}

// SymbolShard loads the full persisted record for one symbol.
func (r *Reader) SymbolShard(id types.SymbolID) (*types.SymbolShard, bool, error) {
	shardHash, symbolHash := hashPair(id)
	rec := &types.SymbolShard{}
	found, err := readJSON(r.store.SymbolShardPath(shardHash, symbolHash), rec)
	if err != nil || !found {
		return nil, false, err
	}
	return rec, true, nil
}

// ModuleShard loads one module shard by its short name.
func (r *Reader) ModuleShard(short string) (*types.ModuleShard, bool, error) {
	ms := &types.ModuleShard{}
	found, err := readJSON(r.store.ModuleShardPath(short), ms)
	if err != nil || !found {
		return nil, false, err
	}
	return ms, true, nil
}

// Overview loads the persisted repository overview.
func (r *Reader) Overview() (*types.Overview, bool, error) {
	o := &types.Overview{}
	found, err := readJSON(r.store.OverviewPath(), o)
	if err != nil || !found {
		return nil, false, err
	}
	return o, true, nil
}

// Meta loads the persisted meta record; found is false when the
// repository has never been indexed.
func (r *Reader) Meta() (*types.Meta, bool, error) {
	m := &types.Meta{}
	found, err := readTOML(r.store.MetaPath(), m)
	if err != nil || !found {
		return nil, false, err
	}
	return m, true, nil
}

// CallGraph loads every persisted call-graph edge.
func (r *Reader) CallGraph() ([]types.CallGraphEdge, error) {
	return readJSONLines[types.CallGraphEdge](r.store.CallGraphPath())
}

// ImportGraph loads every persisted import-graph edge.
func (r *Reader) ImportGraph() ([]types.ImportGraphEdge, error) {
	return readJSONLines[types.ImportGraphEdge](r.store.ImportGraphPath())
}

func readJSONLines[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("shard: open %s: %w", path, err)
	}
	defer f.Close()

	var rows []T
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("shard: decode row in %s: %w", path, err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("shard: scan %s: %w", path, err)
	}
	return rows, nil
}
