package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"retail-insights/internal/analytics"
	apperrors "retail-insights/internal/errors"
	"retail-insights/internal/ingest"
	"retail-insights/internal/models"
	"retail-insights/internal/observability"
)

const DefaultMaxSessions = 32

// session is one uploaded dataset and everything derived from it. The
// enriched data and full report are computed once at upload and never
// mutated afterwards.
type session struct {
	info     DatasetInfo
	enriched *analytics.Enriched
	report   *models.Report
	lastUsed atomic.Int64
}

// DatasetInfo describes a session to API callers.
type DatasetInfo struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Fingerprint string              `json:"fingerprint"`
	Records     int                 `json:"records"`
	Columns     []string            `json:"columns"`
	Customers   int                 `json:"customers"`
	Views       []string            `json:"views"`
	Diagnostics []models.Diagnostic `json:"diagnostics"`
	FromCache   bool                `json:"from_cache"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Analytics owns dataset sessions. Every operation takes a session handle;
// there is no process-wide current dataset.
type Analytics struct {
	mu            sync.RWMutex
	sessions      map[string]*session
	byFingerprint map[string]string
	maxSessions   int

	engine *analytics.Engine
	loader *ingest.Loader
	logger *slog.Logger

	uploads          atomic.Int64
	recordsProcessed atomic.Int64
	reportsServed    atomic.Int64
	evictions        atomic.Int64
	startedAt        time.Time
}

func NewAnalytics(engine *analytics.Engine, loader *ingest.Loader, maxSessions int, logger *slog.Logger) *Analytics {
	if logger == nil {
		logger = slog.Default()
	}
	if engine == nil {
		engine = analytics.NewEngine(analytics.DefaultOptions(), logger)
	}
	if loader == nil {
		loader = ingest.NewLoader(nil, logger)
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Analytics{
		sessions:      make(map[string]*session),
		byFingerprint: make(map[string]string),
		maxSessions:   maxSessions,
		engine:        engine,
		loader:        loader,
		logger:        logger,
		startedAt:     time.Now(),
	}
}

// Upload parses CSV content into a new session. Uploading content identical
// to a live session returns that session instead.
func (a *Analytics) Upload(ctx context.Context, name string, data []byte) (*DatasetInfo, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.upload")
	defer span.Finish()
	span.SetTag("dataset.name", name)
	span.SetTag("dataset.bytes", strconv.Itoa(len(data)))

	if info, ok := a.lookupFingerprint(ingest.Fingerprint(data)); ok {
		span.SetTag("dataset.id", info.ID)
		span.SetTag("dataset.deduplicated", "true")
		a.logger.Info("upload matches existing dataset", "id", info.ID, "name", name)
		return info, nil
	}

	raw, src, err := a.loader.Load(ctx, name, data)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return a.open(ctx, raw, src, span)
}

// LoadFile opens a session from a CSV file on disk.
func (a *Analytics) LoadFile(ctx context.Context, path string) (*DatasetInfo, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.load_file")
	defer span.Finish()
	span.SetTag("dataset.path", path)

	raw, src, err := a.loader.LoadFile(ctx, path)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if info, ok := a.lookupFingerprint(src.Fingerprint); ok {
		return info, nil
	}
	return a.open(ctx, raw, src, span)
}

func (a *Analytics) open(ctx context.Context, raw *models.Dataset, src ingest.Source, span *observability.Span) (*DatasetInfo, error) {
	if err := ctx.Err(); err != nil {
		span.SetError(err)
		return nil, err
	}

	report, enriched := a.engine.Analyze(raw)
	s := &session{
		enriched: enriched,
		report:   report,
		info: DatasetInfo{
			ID:          uuid.NewString(),
			Name:        src.Name,
			Fingerprint: src.Fingerprint,
			Records:     raw.Len(),
			Columns:     enriched.Data.Columns(),
			Customers:   len(enriched.Customers),
			Views:       report.Views.Keys(),
			Diagnostics: report.Diagnostics,
			FromCache:   src.FromCache,
			CreatedAt:   time.Now().UTC(),
		},
	}
	s.touch()

	a.mu.Lock()
	// An identical upload may have opened while this one was analyzed.
	if existing, ok := a.sessionByFingerprintLocked(src.Fingerprint); ok {
		a.mu.Unlock()
		span.SetTag("dataset.id", existing.info.ID)
		span.SetTag("dataset.deduplicated", "true")
		info := existing.info
		return &info, nil
	}
	a.evictLocked()
	a.sessions[s.info.ID] = s
	a.byFingerprint[s.info.Fingerprint] = s.info.ID
	a.mu.Unlock()

	a.uploads.Add(1)
	a.recordsProcessed.Add(int64(raw.Len()))
	span.SetTag("dataset.id", s.info.ID)
	span.SetTag("dataset.views", strconv.Itoa(len(s.info.Views)))

	a.logger.Info("dataset session opened",
		"id", s.info.ID,
		"name", s.info.Name,
		"records", s.info.Records,
		"views", len(s.info.Views),
		"diagnostics", len(s.info.Diagnostics),
	)
	info := s.info
	return &info, nil
}

// evictLocked drops least recently used sessions until one more fits.
func (a *Analytics) evictLocked() {
	for len(a.sessions) >= a.maxSessions {
		var oldestID string
		var oldest int64
		for id, s := range a.sessions {
			if used := s.lastUsed.Load(); oldestID == "" || used < oldest {
				oldestID, oldest = id, used
			}
		}
		victim := a.sessions[oldestID]
		a.removeLocked(oldestID, victim)
		a.evictions.Add(1)
		a.logger.Info("dataset session evicted", "id", oldestID, "name", victim.info.Name)
	}
}

func (s *session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// removeLocked drops a session and its fingerprint entry when the entry still
// points at it.
func (a *Analytics) removeLocked(id string, s *session) {
	delete(a.sessions, id)
	if a.byFingerprint[s.info.Fingerprint] == id {
		delete(a.byFingerprint, s.info.Fingerprint)
	}
}

func (a *Analytics) sessionByFingerprintLocked(fp string) (*session, bool) {
	id, ok := a.byFingerprint[fp]
	if !ok {
		return nil, false
	}
	s, ok := a.sessions[id]
	if !ok {
		return nil, false
	}
	s.touch()
	return s, true
}

func (a *Analytics) lookupFingerprint(fp string) (*DatasetInfo, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.sessionByFingerprintLocked(fp)
	if !ok {
		return nil, false
	}
	info := s.info
	return &info, true
}

func (a *Analytics) get(id string) (*session, error) {
	a.mu.RLock()
	s, ok := a.sessions[id]
	a.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("dataset %q not found", id))
	}
	s.touch()
	return s, nil
}

func (a *Analytics) Info(id string) (*DatasetInfo, error) {
	s, err := a.get(id)
	if err != nil {
		return nil, err
	}
	info := s.info
	return &info, nil
}

// List returns every live session, newest first.
func (a *Analytics) List() []DatasetInfo {
	a.mu.RLock()
	out := make([]DatasetInfo, 0, len(a.sessions))
	for _, s := range a.sessions {
		out = append(out, s.info)
	}
	a.mu.RUnlock()
	slices.SortFunc(out, func(x, y DatasetInfo) int {
		return y.CreatedAt.Compare(x.CreatedAt)
	})
	return out
}

func (a *Analytics) Delete(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[id]
	if !ok {
		return apperrors.NotFound(fmt.Sprintf("dataset %q not found", id))
	}
	a.removeLocked(id, s)
	return nil
}

// Report returns the full, unfiltered report of a session.
func (a *Analytics) Report(ctx context.Context, id string) (*models.Report, error) {
	_, span := observability.StartSpan(ctx, "analytics.report")
	defer span.Finish()
	span.SetTag("dataset.id", id)

	s, err := a.get(id)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	a.reportsServed.Add(1)
	return s.report, nil
}

// View returns one named view of a session's full report. A view that was
// dropped reports why, using the code of its diagnostic.
func (a *Analytics) View(ctx context.Context, id, name string) (any, error) {
	report, err := a.Report(ctx, id)
	if err != nil {
		return nil, err
	}
	if payload, ok := report.View(name); ok {
		return payload, nil
	}
	if _, ok := analytics.Lookup(name); !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("unknown view %q", name))
	}
	for _, d := range report.Diagnostics {
		if d.View == name {
			return nil, diagnosticError(d)
		}
	}
	return nil, apperrors.InsufficientData(fmt.Sprintf("view %q is not available", name))
}

func diagnosticError(d models.Diagnostic) error {
	msg := fmt.Sprintf("view %s unavailable: %s", d.View, d.Message)
	switch d.Kind {
	case analytics.KindSchemaMissing:
		return apperrors.SchemaMissing(msg)
	case analytics.KindTypeCoercion:
		return apperrors.TypeCoercion(nil, msg)
	case analytics.KindInsufficientData:
		return apperrors.InsufficientData(msg)
	default:
		return apperrors.Computation(nil, msg)
	}
}

// Filter runs the catalog over the subset of a session selected by req. An
// empty subset is an insufficient-data error, not an empty report.
func (a *Analytics) Filter(ctx context.Context, id string, req FilterRequest) (*models.Report, error) {
	_, span := observability.StartSpan(ctx, "analytics.filter")
	defer span.Finish()
	span.SetTag("dataset.id", id)

	s, err := a.get(id)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	filter, err := req.Filter()
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	data := s.enriched.Data
	if req.Category != "" {
		data, err = byCategory(data, req.Category)
		if err != nil {
			span.SetError(err)
			return nil, err
		}
	}
	if filter.IsZero() && req.Category == "" {
		a.reportsServed.Add(1)
		return s.report, nil
	}

	report, err := a.engine.AnalyzeFiltered(data, filter)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	a.reportsServed.Add(1)
	span.SetTag("report.views", strconv.Itoa(len(report.Views)))
	return report, nil
}

// byCategory keeps records whose category equals category exactly.
func byCategory(ds *models.Dataset, category string) (*models.Dataset, error) {
	if !ds.Has(models.ColCategory) {
		return nil, apperrors.SchemaMissing(fmt.Sprintf("cannot filter on missing column %q", models.ColCategory))
	}
	out := ds.Where(func(r models.Record) bool {
		k, ok := r.Key(models.ColCategory)
		return ok && k == category
	})
	if out.Len() == 0 {
		return nil, apperrors.InsufficientData("no data matches the selected filters")
	}
	return out, nil
}

// Stats is for monitoring.
func (a *Analytics) Stats() map[string]any {
	a.mu.RLock()
	sessions := len(a.sessions)
	a.mu.RUnlock()

	return map[string]any{
		"sessions":          sessions,
		"max_sessions":      a.maxSessions,
		"uploads":           a.uploads.Load(),
		"records_processed": a.recordsProcessed.Load(),
		"reports_served":    a.reportsServed.Load(),
		"evictions":         a.evictions.Load(),
		"catalog_views":     len(analytics.Catalog()),
		"uptime_seconds":    int64(time.Since(a.startedAt).Seconds()),
	}
}
