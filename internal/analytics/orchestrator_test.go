package analytics

import (
	"encoding/json"
	"reflect"
	"slices"
	"strings"
	"testing"

	apperrors "retail-insights/internal/errors"
	"retail-insights/internal/models"
)

func TestEngine_Run(t *testing.T) {
	report := testEngine(Options{}).Run(enrichedFixture(t))

	keys := report.Views.Keys()
	for _, name := range []string{"gender_distribution", "sales_by_month", "sales_forecast", "churned_customers", "cross_sell_upsell_opportunities"} {
		if !slices.Contains(keys, name) {
			t.Errorf("Expected view %s in %v", name, keys)
		}
	}
	for _, name := range []string{"sales_by_store", "sales_by_store_size", "rfm_segments", "sales_by_segment"} {
		if slices.Contains(keys, name) {
			t.Errorf("view %s should have been dropped", name)
		}
	}

	months := viewMapping(t, report, "sales_by_month").Keys()
	want := []string{"2023-01", "2023-02", "2023-03", "2023-04", "2023-05", "2023-06"}
	if !reflect.DeepEqual(months, want) {
		t.Errorf("Expected months %v, got %v", want, months)
	}

	var rfm *models.Diagnostic
	for i, d := range report.Diagnostics {
		if d.View == "rfm_segments" {
			rfm = &report.Diagnostics[i]
		}
	}
	if rfm == nil || rfm.Kind != KindInsufficientData {
		t.Errorf("Expected an insufficient_data diagnostic for rfm_segments, got %+v", rfm)
	}
}

func TestEngine_RunSummary(t *testing.T) {
	report := testEngine(Options{}).Run(enrichedFixture(t))

	want := models.Summary{TotalSales: 350, TotalTransactions: 6, AverageSales: 58.33, AverageRating: 3.67}
	if report.Summary != want {
		t.Errorf("Expected summary %+v, got %+v", want, report.Summary)
	}
	if !reflect.DeepEqual(report.Categories, []string{"Clothing", "Footwear", "Accessories"}) {
		t.Errorf("unexpected categories %v", report.Categories)
	}
	if !reflect.DeepEqual(report.Locations, []string{"Kansas", "Ohio", "Texas"}) {
		t.Errorf("unexpected locations %v", report.Locations)
	}
	if len(report.AvailableDates) != 6 || report.AvailableDates[0] != "2023-01-15" {
		t.Errorf("unexpected available dates %v", report.AvailableDates)
	}
}

func TestEngine_RunWithSegments(t *testing.T) {
	input := enrichedFixture(t)
	report := testEngine(Options{Clusters: 2}).Run(input)

	segments := viewMapping(t, report, "rfm_segments")
	total := 0
	for _, e := range segments {
		total += e.Value.(int)
	}
	if total != 4 {
		t.Errorf("Expected 4 segmented customers, got %d", total)
	}
	if _, ok := report.View("sales_by_segment"); !ok {
		t.Error("sales_by_segment should be computed once segments are joined")
	}
	if input.Has(models.ColSegment) {
		t.Error("Run must not modify the caller's dataset")
	}
}

func TestEngine_MissingColumnsNeverAppear(t *testing.T) {
	ds := models.NewDataset([]string{models.ColGender}, []models.Record{
		{models.ColGender: "Female"},
		{models.ColGender: "Male"},
		{models.ColGender: "Female"},
	})
	report := testEngine(Options{}).Run(ds)

	if keys := report.Views.Keys(); !reflect.DeepEqual(keys, []string{"gender_distribution"}) {
		t.Errorf("Expected only gender_distribution, got %v", keys)
	}
	for _, e := range report.Views {
		if !HasRequired(e.Key, ds.Columns()) {
			t.Errorf("view %s appeared without its required columns", e.Key)
		}
	}

	skipped := 0
	for _, d := range report.Diagnostics {
		if d.Stage == StageCatalog && d.Kind == KindSchemaMissing {
			skipped++
		}
	}
	if skipped != len(Catalog())-1 {
		t.Errorf("Expected %d schema_missing diagnostics, got %d", len(Catalog())-1, skipped)
	}
}

func TestEngine_ViewFailureIsContained(t *testing.T) {
	ds := models.NewDataset(
		[]string{models.ColCategory, models.ColPurchaseAmount, models.ColGender},
		[]models.Record{
			{models.ColCategory: "A", models.ColPurchaseAmount: "abc", models.ColGender: "Male"},
		},
	)
	report := testEngine(Options{}).Run(ds)

	if _, ok := report.View("sales_by_category"); ok {
		t.Error("sales_by_category should be dropped")
	}
	if _, ok := report.View("gender_distribution"); !ok {
		t.Error("gender_distribution should survive another view's failure")
	}
	found := false
	for _, d := range report.Diagnostics {
		if d.View == "sales_by_category" && d.Kind == KindTypeCoercion {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a type_coercion diagnostic, got %+v", report.Diagnostics)
	}
}

func TestCompute_RecoversPanics(t *testing.T) {
	boom := View{Name: "boom", Compute: func(*ViewContext) (any, error) {
		panic("index out of range")
	}}
	payload, err := compute(boom, newViewContext(salesFixture(), DefaultOptions()))
	if payload != nil {
		t.Errorf("Expected no payload, got %v", payload)
	}
	if !apperrors.Is(err, apperrors.CodeComputation) {
		t.Errorf("Expected computation failure, got %v", err)
	}
}

func TestEngine_Analyze(t *testing.T) {
	raw := salesFixture()
	report, enriched := testEngine(Options{}).Analyze(raw)

	if !enriched.Data.Has(models.ColRecency) {
		t.Error("Analyze should enrich before running the catalog")
	}
	if _, ok := report.View("sales_by_season"); !ok {
		t.Error("derived views should be computed after enrichment")
	}
	if raw.Has(models.ColYear) {
		t.Error("Analyze must not modify the raw dataset")
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("report should serialize: %v", err)
	}
	if !strings.Contains(string(data), `"graphs":{"age_distribution":`) {
		t.Errorf("views should serialize in catalog order, got %.120s", data)
	}
}

func TestEngine_AnalyzeMergesEnrichmentDiagnostics(t *testing.T) {
	ds := models.NewDataset([]string{models.ColGender}, []models.Record{{models.ColGender: "Male"}})
	report, _ := testEngine(Options{}).Analyze(ds)

	if len(report.Diagnostics) == 0 || report.Diagnostics[0].Stage != StageEnrichment {
		t.Errorf("enrichment diagnostics should lead the report, got %+v", report.Diagnostics)
	}
}

func TestEngine_AnalyzeFiltered(t *testing.T) {
	engine := testEngine(Options{})
	enriched := enrichedFixture(t)

	report, err := engine.AnalyzeFiltered(enriched, Filter{Location: "Ohio"})
	if err != nil {
		t.Fatalf("AnalyzeFiltered() error: %v", err)
	}
	if report.Summary.TotalTransactions != 2 {
		t.Errorf("Expected 2 transactions, got %d", report.Summary.TotalTransactions)
	}

	report, err = engine.AnalyzeFiltered(enriched, Filter{Location: "Atlantis"})
	if !apperrors.Is(err, apperrors.CodeInsufficientData) {
		t.Errorf("Expected insufficient data, got %v", err)
	}
	if report != nil {
		t.Error("an empty filter result should produce no report")
	}
}

func TestEngine_ComputeView(t *testing.T) {
	engine := testEngine(Options{})
	ds := salesFixture()

	tests := []struct {
		name     string
		view     string
		wantCode apperrors.ErrorCode
	}{
		{"computable", "gender_distribution", ""},
		{"unknown view", "nope", apperrors.CodeNotFound},
		{"missing columns", "sales_by_season", apperrors.CodeSchemaMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := engine.ComputeView(ds, tt.view)
			if tt.wantCode == "" {
				if err != nil || payload == nil {
					t.Errorf("Expected payload, got %v / %v", payload, err)
				}
				return
			}
			if !apperrors.Is(err, tt.wantCode) {
				t.Errorf("Expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestEngine_AnalyzeNonFiniteAmount(t *testing.T) {
	ds := models.NewDataset(
		[]string{models.ColCustomerID, models.ColDate, models.ColPurchaseAmount, models.ColCategory, models.ColGender},
		[]models.Record{
			{models.ColCustomerID: "C1", models.ColDate: "2023-01-10", models.ColPurchaseAmount: 40.0, models.ColCategory: "A", models.ColGender: "Male"},
			{models.ColCustomerID: "C1", models.ColDate: "2023-02-01", models.ColPurchaseAmount: "inf", models.ColCategory: "B", models.ColGender: "Male"},
			{models.ColCustomerID: "C2", models.ColDate: "2023-03-05", models.ColPurchaseAmount: 25.0, models.ColCategory: "A", models.ColGender: "Female"},
		},
	)
	report, _ := testEngine(Options{}).Analyze(ds)

	if _, err := json.Marshal(report); err != nil {
		t.Fatalf("report with a non-finite amount should still serialize: %v", err)
	}
	if report.Summary.TotalSales != 0 || report.Summary.AverageSales != 0 {
		t.Errorf("Expected sales cards to be left empty, got %+v", report.Summary)
	}
	if _, ok := report.View("sales_by_category"); ok {
		t.Error("sales_by_category should be dropped")
	}
	if _, ok := report.View("gender_distribution"); !ok {
		t.Error("gender_distribution does not read amounts and should survive")
	}

	kinds := make(map[string]string)
	for _, d := range report.Diagnostics {
		if d.View != "" {
			kinds[d.View] = d.Kind
		} else {
			kinds[d.Stage] = d.Kind
		}
	}
	if kinds["sales_by_category"] != KindTypeCoercion {
		t.Errorf("Expected sales_by_category type_coercion, got %q", kinds["sales_by_category"])
	}
	if kinds[StageSummary] != KindTypeCoercion {
		t.Errorf("Expected a summary type_coercion diagnostic, got %+v", report.Diagnostics)
	}
}

func TestEngine_RunContainsSegmentationPanic(t *testing.T) {
	orig := segment
	segment = func(*models.Dataset, Options) (*Segmentation, error) {
		panic("centroid index out of range")
	}
	t.Cleanup(func() { segment = orig })

	report := testEngine(Options{Clusters: 2}).Run(enrichedFixture(t))

	var stage *models.Diagnostic
	for i, d := range report.Diagnostics {
		if d.Stage == StageSegmentation {
			stage = &report.Diagnostics[i]
		}
	}
	if stage == nil || stage.Kind != KindComputation {
		t.Fatalf("Expected a computation_failed segmentation diagnostic, got %+v", report.Diagnostics)
	}
	for _, name := range []string{"rfm_segments", "sales_by_segment"} {
		if _, ok := report.View(name); ok {
			t.Errorf("view %s should be dropped", name)
		}
	}
	if _, ok := report.View("sales_by_category"); !ok {
		t.Error("other views should survive a segmentation failure")
	}
}
