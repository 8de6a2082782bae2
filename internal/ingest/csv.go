// Package ingest turns uploaded CSV bytes into a models.Dataset: header
// canonicalization, per-cell numeric inference and a fingerprint-keyed cache
// of parsed results.
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	apperrors "retail-insights/internal/errors"
	"retail-insights/internal/models"
)

const (
	batchSize  = 10000
	maxWorkers = 10
)

// missingMarkers are cell values read as null.
var missingMarkers = map[string]bool{
	"":     true,
	"nan":  true,
	"null": true,
	"na":   true,
	"n/a":  true,
	"none": true,
}

// Fingerprint identifies CSV content independent of where it came from.
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}

// Parse reads a whole CSV document. The first row is the header. Rows may be
// ragged: missing trailing cells are null and surplus cells are ignored.
func Parse(ctx context.Context, src io.Reader) (*models.Dataset, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperrors.BadRequest("CSV is empty")
	}
	if err != nil {
		return nil, apperrors.BadRequestWrap(err, "CSV header could not be read")
	}
	columns := canonicalHeaders(header)

	var rows []models.Record
	batch := make([][]string, 0, batchSize)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.BadRequestWrap(err, "malformed CSV")
		}
		batch = append(batch, rec)

		if len(batch) >= batchSize {
			parsed, err := parseBatch(ctx, columns, batch)
			if err != nil {
				return nil, err
			}
			rows = append(rows, parsed...)
			batch = make([][]string, 0, batchSize)
		}
	}
	if len(batch) > 0 {
		parsed, err := parseBatch(ctx, columns, batch)
		if err != nil {
			return nil, err
		}
		rows = append(rows, parsed...)
	}

	if len(rows) == 0 {
		return nil, apperrors.Validation("CSV has a header but no data rows")
	}
	return models.NewDataset(columns, rows), nil
}

// parseBatch converts raw rows to records in parallel. Each worker writes only
// its own slot, so the output keeps input order.
func parseBatch(ctx context.Context, columns []string, batch [][]string) ([]models.Record, error) {
	out := make([]models.Record, len(batch))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	for start := 0; start < len(batch); start += batchSize / maxWorkers {
		end := min(start+batchSize/maxWorkers, len(batch))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				out[i] = toRecord(columns, batch[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func toRecord(columns, fields []string) models.Record {
	r := make(models.Record, len(columns))
	for i, col := range columns {
		if i >= len(fields) {
			break
		}
		if v, ok := parseCell(fields[i]); ok {
			r[col] = v
		}
	}
	return r
}

// parseCell infers a numeric value where the whole cell parses as one and
// keeps text otherwise. Missing markers yield ok=false.
func parseCell(raw string) (any, bool) {
	s := strings.TrimSpace(raw)
	if missingMarkers[strings.ToLower(s)] {
		return nil, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		lower := strings.ToLower(s)
		// ParseFloat accepts "inf" and "infinity"; keep those as text.
		if !strings.Contains(lower, "inf") {
			return f, true
		}
	}
	return s, true
}

// Source is where a dataset was loaded from.
type Source struct {
	Name        string
	Fingerprint string
	Bytes       int
	FromCache   bool
	Duration    time.Duration
}

// Loader parses CSV content, consulting the cache first when one is set.
type Loader struct {
	cache  *Cache
	logger *slog.Logger
}

func NewLoader(cache *Cache, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{cache: cache, logger: logger}
}

// Load parses data, named name for logging.
func (l *Loader) Load(ctx context.Context, name string, data []byte) (*models.Dataset, Source, error) {
	start := time.Now()
	src := Source{Name: name, Fingerprint: Fingerprint(data), Bytes: len(data)}

	if l.cache != nil {
		ds, err := l.cache.Load(src.Fingerprint)
		if err == nil {
			src.FromCache = true
			src.Duration = time.Since(start)
			l.logger.Info("dataset loaded from cache", "name", name, "fingerprint", src.Fingerprint, "records", ds.Len())
			return ds, src, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("ingest cache unreadable", "fingerprint", src.Fingerprint, "error", err)
		}
	}

	ds, err := Parse(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, src, err
	}
	if l.cache != nil {
		if err := l.cache.Save(src.Fingerprint, ds); err != nil {
			l.logger.Warn("failed to save ingest cache", "error", err)
		}
	}

	src.Duration = time.Since(start)
	l.logger.Info("csv processing complete",
		"name", name,
		"records", ds.Len(),
		"columns", len(ds.Columns()),
		"duration", src.Duration,
		"rate", fmt.Sprintf("%.0f records/sec", float64(ds.Len())/src.Duration.Seconds()),
	)
	return ds, src, nil
}

// LoadFile reads and parses a CSV file from disk.
func (l *Loader) LoadFile(ctx context.Context, path string) (*models.Dataset, Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Source{Name: path}, fmt.Errorf("read %s: %w", path, err)
	}
	return l.Load(ctx, path, data)
}
