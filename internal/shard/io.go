package shard

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// writeJSONAtomic marshals v and writes it to path via a temp file plus
// rename, so a crash mid-write never leaves a torn file in place:
// a failed write leaves the previous consistent index intact.
func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("shard: mkdir %s: %w", filepath.Dir(path), err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("shard: marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("shard: write staging %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("shard: swap %s: %w", path, err)
	}
	return nil
}

// writeJSONLines writes rows as JSON Lines with the same
// staging-then-rename discipline as writeJSONAtomic.
func writeJSONLines[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("shard: mkdir %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("shard: create staging %s: %w", tmp, err)
	}
	bw := bufio.NewWriter(f)
	for _, row := range rows {
		b, err := json.Marshal(row)
		if err != nil {
			f.Close()
			return fmt.Errorf("shard: marshal row for %s: %w", path, err)
		}
		bw.Write(b)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) (bool, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("shard: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("shard: decode %s: %w", path, err)
	}
	return true, nil
}

// writeTOMLAtomic is writeJSONAtomic for the meta record, which is kept
// as TOML so an operator can read the indexed SHA without tooling.
func writeTOMLAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("shard: mkdir %s: %w", filepath.Dir(path), err)
	}
	b, err := toml.Marshal(v)
	if err != nil {
		return fmt.Errorf("shard: marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("shard: write staging %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("shard: swap %s: %w", path, err)
	}
	return nil
}

func readTOML(path string, v any) (bool, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("shard: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("shard: decode %s: %w", path, err)
	}
	return true, nil
}
