package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// Save writes the index to two files next to path: path itself (a dense
// matrix blob) and path+".ids" (the sidecar id list, one id per line, in
// row order). Both are written to temp files and renamed into place, so a
// crash mid-write never leaves a half-written index on disk.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	ids := append([]string(nil), idx.ids...)
	vecs := make([][]float32, len(idx.vecs))
	copy(vecs, idx.vecs)
	idx.mu.RUnlock()

	if err := writeAtomic(path, func(f *os.File) error {
		return writeMatrix(f, vecs)
	}); err != nil {
		return err
	}
	if err := writeAtomic(path+".ids", func(f *os.File) error {
		w := bufio.NewWriter(f)
		for _, id := range ids {
			if _, err := fmt.Fprintln(w, id); err != nil {
				return err
			}
		}
		return w.Flush()
	}); err != nil {
		return err
	}

	idx.mu.Lock()
	idx.dirty = false
	idx.mu.Unlock()
	return nil
}

// Load replaces the index contents with the matrix and id list at path. A
// missing file is treated as an empty index, not an error, so a fresh
// deployment starts clean.
func (idx *Index) Load(path string) error {
	ids, err := loadIDs(path + ".ids")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	vecs, err := loadMatrix(path, idx.provider.Dimension())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(ids) != len(vecs) {
		return fmt.Errorf("vector: id list length %d does not match matrix rows %d", len(ids), len(vecs))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.ids = ids
	idx.vecs = vecs
	idx.byID = make(map[string]int, len(ids))
	for i, id := range ids {
		idx.byID[id] = i
	}
	idx.dirty = false
	return nil
}

func writeAtomic(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".vector-*")
	if err != nil {
		return fmt.Errorf("vector: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("vector: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vector: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("vector: rename into %s: %w", path, err)
	}
	return nil
}

func writeMatrix(f *os.File, vecs [][]float32) error {
	w := bufio.NewWriter(f)
	var rows, cols uint32
	rows = uint32(len(vecs))
	if rows > 0 {
		cols = uint32(len(vecs[0]))
	}
	if err := binary.Write(w, binary.LittleEndian, rows); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, cols); err != nil {
		return err
	}
	for _, v := range vecs {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return w.Flush()
}

func loadMatrix(path string, fallbackDim int) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	var rows, cols uint32
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return nil, fmt.Errorf("vector: read header: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &cols); err != nil {
		return nil, fmt.Errorf("vector: read header: %w", err)
	}
	if cols == 0 {
		cols = uint32(fallbackDim)
	}
	vecs := make([][]float32, rows)
	for i := range vecs {
		row := make([]float32, cols)
		if err := binary.Read(r, binary.LittleEndian, &row); err != nil {
			return nil, fmt.Errorf("vector: read row %d: %w", i, err)
		}
		vecs[i] = row
	}
	return vecs, nil
}

func loadIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ids = append(ids, scanner.Text())
	}
	return ids, scanner.Err()
}
