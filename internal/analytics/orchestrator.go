package analytics

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	apperrors "retail-insights/internal/errors"
	"retail-insights/internal/models"
)

const (
	KindSchemaMissing    = "schema_missing"
	KindTypeCoercion     = "type_coercion"
	KindInsufficientData = "insufficient_data"
	KindComputation      = "computation_failed"
)

func kindOf(code apperrors.ErrorCode) string {
	switch code {
	case apperrors.CodeSchemaMissing:
		return KindSchemaMissing
	case apperrors.CodeTypeCoercion:
		return KindTypeCoercion
	case apperrors.CodeInsufficientData:
		return KindInsufficientData
	default:
		return KindComputation
	}
}

// Engine runs the view catalog. It holds configuration only; every call
// works on its own copy of the dataset it is handed.
type Engine struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		opts:   opts.withDefaults(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) Options() Options {
	return e.opts
}

// Enrich runs the enrichment stage and logs what it had to skip.
func (e *Engine) Enrich(raw *models.Dataset) *Enriched {
	start := time.Now()
	out := Enrich(raw)
	for _, d := range out.Diagnostics {
		e.logger.Debug("enrichment step skipped", "kind", d.Kind, "detail", d.Message)
	}
	e.logger.Info("dataset enriched",
		"records", out.Data.Len(),
		"columns", len(out.Data.Columns()),
		"customers", len(out.Customers),
		"duration", time.Since(start),
	)
	return out
}

// Analyze enriches raw and runs the catalog over the result.
func (e *Engine) Analyze(raw *models.Dataset) (*models.Report, *Enriched) {
	enriched := e.Enrich(raw)
	report := e.Run(enriched.Data)
	report.Diagnostics = append(slices.Clone(enriched.Diagnostics), report.Diagnostics...)
	return report, enriched
}

// AnalyzeFiltered applies f to an enriched dataset and runs the catalog over
// the subset. An empty subset returns the insufficient-data error and no
// report.
func (e *Engine) AnalyzeFiltered(enriched *models.Dataset, f Filter) (*models.Report, error) {
	subset, err := f.Apply(enriched)
	if err != nil {
		e.logger.Info("filter produced no report", "error", err)
		return nil, err
	}
	e.logger.Debug("filter applied", "before", enriched.Len(), "after", subset.Len())
	return e.Run(subset), nil
}

// Run computes every catalog view whose required columns are present on a
// copy of ds. Views that fail are dropped and recorded as diagnostics; no view
// failure escapes Run.
func (e *Engine) Run(ds *models.Dataset) *models.Report {
	working := ds.Clone()
	opts := e.opts
	if opts.ReferenceDate.IsZero() {
		opts.ReferenceDate = e.now()
	}
	vc := newViewContext(working, opts)
	report := &models.Report{
		Views:       models.Mapping{},
		Diagnostics: []models.Diagnostic{},
		GeneratedAt: e.now(),
	}
	if HasRequired("rfm_segments", working.Columns()) {
		if seg, err := vc.Segmentation(); err != nil {
			kind := kindOf(apperrors.CodeOf(err))
			e.logger.Warn("segments not joined", "kind", kind, "error", err)
			report.Diagnostics = append(report.Diagnostics, models.Diagnostic{
				Stage:   StageSegmentation,
				Kind:    kind,
				Message: err.Error(),
			})
		} else {
			AttachSegments(working, seg)
		}
	}
	columns := working.Columns()

	for _, v := range catalog {
		if missing := Missing(v.Required, columns); len(missing) > 0 {
			e.logger.Debug("view skipped", "view", v.Name, "missing", missing)
			report.Diagnostics = append(report.Diagnostics, models.Diagnostic{
				Stage:   StageCatalog,
				View:    v.Name,
				Kind:    KindSchemaMissing,
				Message: fmt.Sprintf("missing columns %v", missing),
			})
			continue
		}
		payload, err := compute(v, vc)
		if err != nil {
			kind := kindOf(apperrors.CodeOf(err))
			e.logger.Warn("view dropped", "view", v.Name, "kind", kind, "error", err)
			report.Diagnostics = append(report.Diagnostics, models.Diagnostic{
				Stage:   StageCatalog,
				View:    v.Name,
				Kind:    kind,
				Message: err.Error(),
			})
			continue
		}
		report.Views = append(report.Views, models.Entry{Key: v.Name, Value: payload})
	}

	e.summarize(working, report)
	return report
}

// compute runs one view, converting a panic into a computation failure.
func compute(v View, vc *ViewContext) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = apperrors.Computation(fmt.Errorf("panic: %v", r), "view "+v.Name+" failed")
		}
	}()
	return v.Compute(vc)
}

// ComputeView runs a single named view over ds without enrichment.
func (e *Engine) ComputeView(ds *models.Dataset, name string) (any, error) {
	v, ok := Lookup(name)
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("unknown view %q", name))
	}
	if err := assertComputable(v, ds); err != nil {
		return nil, err
	}
	opts := e.opts
	if opts.ReferenceDate.IsZero() {
		opts.ReferenceDate = e.now()
	}
	return compute(v, newViewContext(ds.Clone(), opts))
}

func (e *Engine) summarize(ds *models.Dataset, report *models.Report) {
	report.Summary.TotalTransactions = ds.Len()
	note := func(err error) {
		report.Diagnostics = append(report.Diagnostics, models.Diagnostic{
			Stage:   StageSummary,
			Kind:    kindOf(apperrors.CodeOf(err)),
			Message: err.Error(),
		})
	}

	if ds.Has(models.ColPurchaseAmount) {
		if vals, err := numericColumn(ds, models.ColPurchaseAmount); err != nil {
			note(err)
		} else if len(vals) > 0 {
			total := 0.0
			for _, v := range vals {
				total += v
			}
			report.Summary.TotalSales = models.Round2(total)
			report.Summary.AverageSales = models.Round2(total / float64(len(vals)))
		}
	}
	if ds.Has(models.ColRating) {
		if vals, err := numericColumn(ds, models.ColRating); err != nil {
			note(err)
		} else if len(vals) > 0 {
			total := 0.0
			for _, v := range vals {
				total += v
			}
			report.Summary.AverageRating = models.Round2(total / float64(len(vals)))
		}
	}

	report.Categories = distinct(ds, models.ColCategory)
	report.Locations = distinct(ds, models.ColLocation)
	if ds.Has(models.ColDate) {
		seen := make(map[string]bool)
		for _, r := range ds.Rows() {
			if t, ok := timeCell(r, models.ColDate); ok {
				seen[t.Format("2006-01-02")] = true
			}
		}
		dates := make([]string, 0, len(seen))
		for d := range seen {
			dates = append(dates, d)
		}
		slices.Sort(dates)
		report.AvailableDates = dates
	}
}

// distinct lists the values of col in first-seen order.
func distinct(ds *models.Dataset, col string) []string {
	out := []string{}
	if !ds.Has(col) {
		return out
	}
	seen := make(map[string]bool)
	for _, r := range ds.Rows() {
		k, ok := stringCell(r, col)
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
