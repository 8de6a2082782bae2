package ingest

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"retail-insights/internal/models"
)

const cacheVersion = "v1"

// Cache stores parsed datasets as gob files named by content fingerprint.
type Cache struct {
	dir string
}

func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// cachedDataset is the on-disk form. Cells are float64 or string only.
type cachedDataset struct {
	Version string
	Columns []string
	Rows    []map[string]any
}

func (c *Cache) filename(fingerprint string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.gob", fingerprint, cacheVersion))
}

func (c *Cache) Save(fingerprint string, ds *models.Dataset) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	snapshot := cachedDataset{
		Version: cacheVersion,
		Columns: ds.Columns(),
		Rows:    make([]map[string]any, ds.Len()),
	}
	for i, r := range ds.Rows() {
		snapshot.Rows[i] = r
	}

	tmp, err := os.CreateTemp(c.dir, "ingest-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(snapshot); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.filename(fingerprint))
}

// Load returns the cached dataset for fingerprint. A missing entry is
// reported as os.ErrNotExist.
func (c *Cache) Load(fingerprint string) (*models.Dataset, error) {
	file, err := os.Open(c.filename(fingerprint))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var snapshot cachedDataset
	if err := gob.NewDecoder(file).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode cache: %w", err)
	}
	if snapshot.Version != cacheVersion {
		return nil, fmt.Errorf("cache version %q: %w", snapshot.Version, os.ErrNotExist)
	}

	rows := make([]models.Record, len(snapshot.Rows))
	for i, r := range snapshot.Rows {
		if r == nil {
			r = map[string]any{}
		}
		rows[i] = r
	}
	return models.NewDataset(snapshot.Columns, rows), nil
}
