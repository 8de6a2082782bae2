package templates

import (
	"context"
	"strings"
	"testing"
)

func TestDashboard_Render(t *testing.T) {
	var b strings.Builder
	page := Page{
		UploadLimit: 32 << 20,
		Datasets:    []DatasetLink{{ID: "abc-123", Name: "<q1>.csv", Records: 6}},
	}
	if err := Dashboard(page).Render(context.Background(), &b); err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	html := b.String()

	for _, want := range []string{
		"<title>Retail Insights</title>",
		datastarScript,
		`id="summary-cards"`,
		`id="diagnostics"`,
		"/sse/datasets/abc-123/refresh",
		"&lt;q1&gt;.csv",
		"max 32 MiB",
		"6 records",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("expected page to contain %q", want)
		}
	}
	if strings.Contains(html, "<q1>") {
		t.Error("dataset names should be escaped")
	}
}

func TestDashboard_Empty(t *testing.T) {
	var b strings.Builder
	if err := Dashboard(Page{Title: "Sales"}).Render(context.Background(), &b); err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	if !strings.Contains(b.String(), "<title>Sales</title>") || !strings.Contains(b.String(), "No datasets yet.") {
		t.Errorf("unexpected empty page: %s", b.String())
	}
}
