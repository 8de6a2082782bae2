// Package templates holds the server-rendered dashboard page. Data arrives
// afterwards over Datastar SSE; the page only carries the signal store and
// the elements the streams patch.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
)

const datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@v1.0.0-RC.5/bundles/datastar.js"

// DatasetLink is one previously uploaded dataset offered on the page.
type DatasetLink struct {
	ID      string
	Name    string
	Records int
}

// Page configures the dashboard.
type Page struct {
	Title       string
	UploadLimit int64
	Datasets    []DatasetLink
}

func Dashboard(page Page) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := page.Title
		if title == "" {
			title = "Retail Insights"
		}

		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		fmt.Fprintf(&b, `<title>%s</title>`, templ.EscapeString(title))
		fmt.Fprintf(&b, `<script type="module" src="%s"></script>`, datastarScript)
		b.WriteString(styles)
		b.WriteString(`</head><body>`)

		b.WriteString(`<main data-signals='{"dataset":"","views":{},"categories":[],"locations":[],"availableDates":[],` +
			`"filter":{"category":"","location":"","start_date":"","end_date":""}}'>`)
		fmt.Fprintf(&b, `<header><h1>%s</h1></header>`, templ.EscapeString(title))

		writeUpload(&b, page.UploadLimit)
		writeDatasets(&b, page.Datasets)
		writeFilters(&b)

		b.WriteString(`<div id="status" class="status"></div>`)
		b.WriteString(`<div id="summary-cards" class="cards"></div>`)
		b.WriteString(`<section><h2>Views</h2><pre id="views" data-text="JSON.stringify($views, null, 2)"></pre></section>`)
		b.WriteString(`<section><h2>Diagnostics</h2><div id="diagnostics"></div></section>`)
		b.WriteString(`</main></body></html>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func writeUpload(b *strings.Builder, limit int64) {
	b.WriteString(`<section class="upload"><h2>Upload sales CSV</h2>`)
	b.WriteString(`<form id="upload-form" onsubmit="event.preventDefault();` +
		`fetch('/api/datasets',{method:'POST',body:new FormData(this)})` +
		`.then(r=>r.json()).then(j=>{if(j.success){location.hash=j.data.id;location.reload()}` +
		`else{document.getElementById('status').textContent=j.error.message}})">`)
	b.WriteString(`<input type="file" name="file" accept=".csv,text/csv" required>`)
	b.WriteString(`<button type="submit">Upload</button>`)
	if limit > 0 {
		fmt.Fprintf(b, `<small>max %d MiB</small>`, limit>>20)
	}
	b.WriteString(`</form></section>`)
}

func writeDatasets(b *strings.Builder, datasets []DatasetLink) {
	b.WriteString(`<section class="datasets"><h2>Datasets</h2>`)
	if len(datasets) == 0 {
		b.WriteString(`<p>No datasets yet.</p></section>`)
		return
	}
	b.WriteString(`<ul>`)
	for _, d := range datasets {
		id := templ.EscapeString(d.ID)
		fmt.Fprintf(b, `<li><button data-on-click="$dataset='%s'; @get('/sse/datasets/%s/refresh')">%s</button> <small>%d records</small></li>`,
			id, id, templ.EscapeString(d.Name), d.Records)
	}
	b.WriteString(`</ul></section>`)
}

func writeFilters(b *strings.Builder) {
	b.WriteString(`<section class="filters" data-show="$dataset != ''"><h2>Filters</h2>`)
	b.WriteString(`<label>Category <select data-bind="filter.category"><option value="">All</option>` +
		`<template data-for="c in $categories"><option data-attr-value="c" data-text="c"></option></template></select></label>`)
	b.WriteString(`<label>Location <select data-bind="filter.location"><option value="">All</option>` +
		`<template data-for="l in $locations"><option data-attr-value="l" data-text="l"></option></template></select></label>`)
	b.WriteString(`<label>From <input type="date" data-bind="filter.start_date"></label>`)
	b.WriteString(`<label>To <input type="date" data-bind="filter.end_date"></label>`)
	b.WriteString(`<button data-on-click="@post('/sse/datasets/' + $dataset + '/filter')">Apply</button>`)
	b.WriteString(`<button data-on-click="@get('/sse/datasets/' + $dataset + '/refresh')">Reset</button>`)
	b.WriteString(`</section>`)
}

const styles = `<style>
body{font-family:system-ui,sans-serif;margin:0;background:#f6f7f9;color:#1d2330}
main{max-width:1100px;margin:0 auto;padding:1.5rem}
section{background:#fff;border-radius:8px;padding:1rem;margin-bottom:1rem}
.cards{display:grid;grid-template-columns:repeat(4,1fr);gap:1rem;margin-bottom:1rem}
.card{background:#fff;border-radius:8px;padding:1rem}
.status-warn{color:#9a6700}.status-error{color:#b42318}.status-ok{color:#1a7f37}
.kind-badge{font-size:.75rem;background:#eef;border-radius:4px;padding:0 .3rem}
pre{max-height:480px;overflow:auto}
</style>`
