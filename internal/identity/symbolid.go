// Package identity implements the identity and module registry:
// deterministic SymbolId hashing, module-path canonicalization,
// and conflict-aware short-name assignment.
package identity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/semidx/internal/types"
)

// hash64 is the single hashing primitive backing both SymbolId
// generation and fingerprinting: xxhash is
// already a dependency for fingerprinting, so identity hashing reuses
// it rather than importing a second hash library.
func hash64(s string) uint64 {
	return xxhash.Sum64String(s)
}

// CanonicalModulePath converts a repository-relative file path such as
// "src/game/player.ts" into a dotted module path "src.game.player".
func CanonicalModulePath(relPath string) string {
	p := strings.TrimSuffix(relPath, pathExt(relPath))
	p = strings.Trim(p, "/")
	p = strings.ReplaceAll(p, "/", ".")
	return p
}

func pathExt(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[i:]
	}
	return ""
}

// SymbolIDFor computes the stable SymbolID for a symbol:
//
//	shardHash  = hash64(moduleCanonicalPath)
//	symbolHash = hash64(moduleCanonicalPath || "::" || name || "::" || kindTag || "::" || paramArity)
func SymbolIDFor(modulePath, name string, kind types.SymbolKind, paramArity int) types.SymbolID {
	shard := hash64(modulePath)
	key := modulePath + "::" + name + "::" + string(kind) + "::" + strconv.Itoa(paramArity)
	sym := hash64(key)
	return types.SymbolID{ShardHash: shard, SymbolHash: sym}
}

// ParseSymbolID parses the canonical "shardHash:symbolHash" rendering.
// It rejects anything that is not two full 16-hex-character halves;
// short hashes are never accepted.
func ParseSymbolID(s string) (types.SymbolID, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || len(parts[0]) != 16 || len(parts[1]) != 16 {
		return types.SymbolID{}, fmt.Errorf("identity: not a full shardHash:symbolHash pair: %q", s)
	}
	shard, err := strconv.ParseUint(parts[0], 16, 64)
	if err != nil {
		return types.SymbolID{}, fmt.Errorf("identity: invalid shard hash: %w", err)
	}
	sym, err := strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return types.SymbolID{}, fmt.Errorf("identity: invalid symbol hash: %w", err)
	}
	return types.SymbolID{ShardHash: shard, SymbolHash: sym}, nil
}
