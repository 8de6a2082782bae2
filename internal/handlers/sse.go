package handlers

import (
	"encoding/json"
	stderrors "errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	apperrors "retail-insights/internal/errors"
	"retail-insights/internal/models"
	"retail-insights/internal/services"
)

const maxDiagnostics = 50

var summaryTemplate = template.Must(template.New("summary").Parse(`
<div id="summary-cards" class="cards">
<div class="card"><h3>Total Sales</h3><p><strong>${{printf "%.2f" .Summary.TotalSales}}</strong></p></div>
<div class="card"><h3>Transactions</h3><p>{{.Summary.TotalTransactions}}</p></div>
<div class="card"><h3>Average Sale</h3><p>${{printf "%.2f" .Summary.AverageSales}}</p></div>
<div class="card"><h3>Average Rating</h3><p>{{printf "%.2f" .Summary.AverageRating}}</p></div>
</div>`))

var diagnosticsTemplate = template.Must(template.New("diagnostics").Parse(`
<div id="diagnostics">
{{if .Items}}<ul class="diagnostics">
{{range .Items}}<li><span class="kind-badge">{{.Kind}}</span> {{if .View}}<code>{{.View}}</code> {{end}}{{.Message}}</li>
{{end}}</ul>{{if gt .Hidden 0}}<p>and {{.Hidden}} more</p>{{end}}{{else}}<p>All views computed.</p>{{end}}
</div>`))

var statusTemplate = template.Must(template.New("status").Parse(
	`<div id="status" class="status status-{{.Level}}">{{.Message}}</div>`))

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

type diagnosticsData struct {
	Items  []models.Diagnostic
	Hidden int
}

func renderSummary(report *models.Report) (string, error) {
	var buf strings.Builder
	err := summaryTemplate.Execute(&buf, report)
	return buf.String(), err
}

func renderDiagnostics(diags []models.Diagnostic) (string, error) {
	data := diagnosticsData{Items: diags}
	if len(diags) > maxDiagnostics {
		data.Items = diags[:maxDiagnostics]
		data.Hidden = len(diags) - maxDiagnostics
	}
	var buf strings.Builder
	err := diagnosticsTemplate.Execute(&buf, data)
	return buf.String(), err
}

func renderStatus(level, message string) string {
	var buf strings.Builder
	if err := statusTemplate.Execute(&buf, map[string]string{"Level": level, "Message": message}); err != nil {
		return `<div id="status" class="status status-error">render failed</div>`
	}
	return buf.String()
}

// reportSignals is what the charts bind to on the client.
func reportSignals(report *models.Report) ([]byte, error) {
	return json.Marshal(map[string]any{
		"views":          report.Views,
		"categories":     report.Categories,
		"locations":      report.Locations,
		"availableDates": report.AvailableDates,
	})
}

// sendReport patches summary cards, diagnostics and chart signals.
func (h *SSEHandlers) sendReport(sse *datastar.ServerSentEventGenerator, report *models.Report) {
	summary, err := renderSummary(report)
	if err != nil {
		h.logger.Error("render summary", "error", err)
		return
	}
	if err := sse.PatchElements(summary); err != nil {
		h.logger.Warn("patch summary", "error", err)
		return
	}

	diagnostics, err := renderDiagnostics(report.Diagnostics)
	if err != nil {
		h.logger.Error("render diagnostics", "error", err)
		return
	}
	if err := sse.PatchElements(diagnostics); err != nil {
		h.logger.Warn("patch diagnostics", "error", err)
		return
	}

	signals, err := reportSignals(report)
	if err != nil {
		h.logger.Error("marshal report signals", "error", err)
		return
	}
	if err := sse.PatchSignals(signals); err != nil {
		h.logger.Warn("patch signals", "error", err)
		return
	}
	sse.PatchElements(renderStatus("ok", "Report updated"))
}

func (h *SSEHandlers) sendError(sse *datastar.ServerSentEventGenerator, err error) {
	level := "error"
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInsufficientData, apperrors.CodeValidation, apperrors.CodeSchemaMissing:
		level = "warn"
	}
	h.logger.Info("sse request failed", "error", err)
	sse.PatchElements(renderStatus(level, userMessage(err)))
}

func userMessage(err error) string {
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return "Something went wrong"
}

// HandleRefresh streams the full report of a dataset.
func (h *SSEHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	report, err := h.analytics.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		h.sendError(sse, err)
		return
	}
	h.sendReport(sse, report)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// filterSignals is the client-side signal store the filter form binds to.
type filterSignals struct {
	Filter services.FilterRequest `json:"filter"`
}

// HandleFilter reads the filter signals and streams the filtered report.
func (h *SSEHandlers) HandleFilter(w http.ResponseWriter, r *http.Request) {
	var signals filterSignals
	readErr := datastar.ReadSignals(r, &signals)

	sse := datastar.NewSSE(w, r)
	if readErr != nil {
		h.sendError(sse, apperrors.BadRequestWrap(readErr, "invalid filter signals"))
		return
	}

	report, err := h.analytics.Filter(r.Context(), r.PathValue("id"), signals.Filter)
	if err != nil {
		h.sendError(sse, err)
		return
	}
	h.sendReport(sse, report)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
