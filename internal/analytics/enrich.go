package analytics

import (
	"fmt"
	"math"
	"slices"
	"time"

	apperrors "retail-insights/internal/errors"
	"retail-insights/internal/models"
)

const (
	StageEnrichment   = "enrichment"
	StageFilter       = "filter"
	StageCatalog      = "catalog"
	StageSummary      = "summary"
	StageSegmentation = "segmentation"
)

const ageBinCount = 5

var seasons = map[int]string{1: "Winter", 2: "Spring", 3: "Summer", 4: "Autumn"}

// Enriched is the output of the enrichment stage.
type Enriched struct {
	Data        *models.Dataset
	Customers   []models.CustomerRFM
	Diagnostics []models.Diagnostic
}

func (e *Enriched) note(kind apperrors.ErrorCode, msg string) {
	e.Diagnostics = append(e.Diagnostics, models.Diagnostic{
		Stage:   StageEnrichment,
		Kind:    kindOf(kind),
		Message: msg,
	})
}

// Enrich derives calendar fields, age bins and per-customer RFM metrics on a
// copy of src. Each derivation that cannot run is skipped and recorded as a
// diagnostic; the others still apply.
func Enrich(src *models.Dataset) *Enriched {
	out := &Enriched{Data: src.Clone()}
	datesOK := out.parseDates()
	if datesOK {
		out.deriveCalendar()
	}
	out.binAges()
	out.computeRFM(datesOK)
	return out
}

// parseDates rewrites the Date column to time.Time, dropping cells that do
// not parse. It reports whether at least one date survived.
func (e *Enriched) parseDates() bool {
	ds := e.Data
	if !ds.Has(models.ColDate) {
		e.note(apperrors.CodeSchemaMissing, "no Date column; calendar fields and recency skipped")
		return false
	}
	parsed, dropped := 0, 0
	for _, r := range ds.Rows() {
		if _, present := r[models.ColDate]; !present {
			continue
		}
		t, ok := timeCell(r, models.ColDate)
		if !ok {
			delete(r, models.ColDate)
			dropped++
			continue
		}
		r[models.ColDate] = t
		parsed++
	}
	if parsed == 0 {
		e.note(apperrors.CodeTypeCoercion, "Date column is not a valid date column; calendar fields skipped")
		return false
	}
	if dropped > 0 {
		e.note(apperrors.CodeTypeCoercion, fmt.Sprintf("%d unparseable dates treated as missing", dropped))
	}
	return true
}

func (e *Enriched) deriveCalendar() {
	ds := e.Data
	for _, col := range []string{
		models.ColYear, models.ColMonth, models.ColSeason, models.ColHour,
		models.ColDayOfWeek, models.ColWeek, models.ColQuarter, models.ColWeekend,
	} {
		ds.AddColumn(col)
	}
	for _, r := range ds.Rows() {
		t, ok := r.Time(models.ColDate)
		if !ok {
			continue
		}
		month := int(t.Month())
		_, week := t.ISOWeek()
		r[models.ColYear] = t.Year()
		r[models.ColMonth] = month
		r[models.ColSeason] = seasons[month%12/3+1]
		r[models.ColHour] = t.Hour()
		r[models.ColDayOfWeek] = t.Weekday().String()
		r[models.ColWeek] = week
		r[models.ColQuarter] = (month-1)/3 + 1
		r[models.ColWeekend] = t.Weekday() == 0 || t.Weekday() == 6
	}
}

// ageBins splits [min, max] into five equal-width intervals. The first bin is
// closed on both ends, the rest are (lower, upper].
type ageBins struct {
	edges  [ageBinCount + 1]float64
	labels [ageBinCount]string
}

func newAgeBins(lo, hi int) ageBins {
	var b ageBins
	span := float64(hi - lo)
	for i := range b.edges {
		if span == 0 {
			b.edges[i] = float64(lo + i)
			continue
		}
		b.edges[i] = float64(lo) + span*float64(i)/ageBinCount
	}
	b.edges[ageBinCount] = math.Max(b.edges[ageBinCount], float64(hi))
	for i := range b.labels {
		b.labels[i] = fmt.Sprintf("%d-%d", int(b.edges[i]), int(b.edges[i+1])-1)
	}
	return b
}

func (b ageBins) index(age float64) int {
	for i := 0; i < ageBinCount; i++ {
		if age <= b.edges[i+1] {
			return i
		}
	}
	return ageBinCount - 1
}

// readAges casts the Age column to integers. Any unreadable value fails the
// whole column.
func readAges(ds *models.Dataset) (map[int]int, error) {
	ages := make(map[int]int)
	for i, r := range ds.Rows() {
		v, ok, err := floatCell(r, models.ColAge)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ages[i] = int(v)
	}
	if len(ages) == 0 {
		return nil, apperrors.InsufficientData("no age values")
	}
	return ages, nil
}

func ageRange(ages map[int]int) (int, int) {
	vals := make([]int, 0, len(ages))
	for _, a := range ages {
		vals = append(vals, a)
	}
	return slices.Min(vals), slices.Max(vals)
}

func (e *Enriched) binAges() {
	ds := e.Data
	if !ds.Has(models.ColAge) {
		return
	}
	ages, err := readAges(ds)
	if err != nil {
		e.note(apperrors.CodeOf(err), "age binning skipped: "+err.Error())
		return
	}
	bins := newAgeBins(ageRange(ages))
	ds.AddColumn(models.ColAgeBins)
	rows := ds.Rows()
	for i, age := range ages {
		rows[i][models.ColAge] = age
		rows[i][models.ColAgeBins] = bins.labels[bins.index(float64(age))]
	}
}

// computeRFM attaches Recency (days between the dataset's latest date and the
// record's own date), Frequency (purchases per customer) and Monetary (spend
// per customer) to every record, and builds the customer-level aggregate.
func (e *Enriched) computeRFM(datesOK bool) {
	ds := e.Data
	if missing := Missing([]string{models.ColCustomerID, models.ColPurchaseAmount}, ds.Columns()); len(missing) > 0 {
		e.note(apperrors.CodeSchemaMissing, fmt.Sprintf("RFM metrics skipped, missing columns %v", missing))
		return
	}

	type totals struct {
		count int
		sum   float64
	}
	byCustomer := make(map[string]*totals)
	for _, r := range ds.Rows() {
		id, ok := r.Key(models.ColCustomerID)
		if !ok {
			continue
		}
		amount, ok, err := floatCell(r, models.ColPurchaseAmount)
		if err != nil {
			e.note(apperrors.CodeTypeCoercion, "RFM metrics skipped: "+err.Error())
			return
		}
		t := byCustomer[id]
		if t == nil {
			t = &totals{}
			byCustomer[id] = t
		}
		if ok {
			t.count++
			t.sum += amount
		}
	}

	var maxDate time.Time
	haveRecency := false
	if datesOK {
		for _, r := range ds.Rows() {
			if t, ok := r.Time(models.ColDate); ok && (!haveRecency || t.After(maxDate)) {
				maxDate, haveRecency = t, true
			}
		}
	}

	if haveRecency {
		ds.AddColumn(models.ColRecency)
	}
	ds.AddColumn(models.ColFrequency)
	ds.AddColumn(models.ColMonetary)

	type agg struct {
		recency  float64
		hasRec   bool
		freq     float64
		monetary float64
	}
	customers := make(map[string]*agg)
	for _, r := range ds.Rows() {
		id, ok := r.Key(models.ColCustomerID)
		if !ok {
			continue
		}
		t := byCustomer[id]
		freq := float64(t.count)
		monetary := models.Round2(t.sum)
		r[models.ColFrequency] = freq
		r[models.ColMonetary] = monetary

		a := customers[id]
		if a == nil {
			a = &agg{}
			customers[id] = a
		}
		a.freq = math.Max(a.freq, freq)
		a.monetary = math.Max(a.monetary, monetary)

		if !haveRecency {
			continue
		}
		if d, ok := r.Time(models.ColDate); ok {
			rec := float64(daysBetween(d, maxDate))
			r[models.ColRecency] = rec
			if !a.hasRec || rec < a.recency {
				a.recency, a.hasRec = rec, true
			}
		}
	}

	for _, id := range sortedKeys(customers) {
		a := customers[id]
		if haveRecency && !a.hasRec {
			continue
		}
		e.Customers = append(e.Customers, models.CustomerRFM{
			CustomerID: id,
			Recency:    a.recency,
			Frequency:  a.freq,
			Monetary:   a.monetary,
		})
	}
}
