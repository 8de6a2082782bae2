package analytics

import (
	"cmp"
	"fmt"
	"slices"

	apperrors "retail-insights/internal/errors"
	"retail-insights/internal/models"
)

// ViewContext is what a view computes from: the run's working dataset, its
// options, and stage results shared between views of the same run.
type ViewContext struct {
	Data    *models.Dataset
	Options Options

	segment    *Segmentation
	segmentErr error
	segmented  bool
}

func newViewContext(ds *models.Dataset, opts Options) *ViewContext {
	return &ViewContext{Data: ds, Options: opts}
}

// segment is the segmentation stage; tests replace it.
var segment = Segment

// Segmentation runs the segmentation stage once per run. A panic inside the
// stage is returned as a computation failure.
func (vc *ViewContext) Segmentation() (*Segmentation, error) {
	if !vc.segmented {
		vc.segmented = true
		vc.segment, vc.segmentErr = runSegmentation(vc.Data, vc.Options)
	}
	return vc.segment, vc.segmentErr
}

func runSegmentation(ds *models.Dataset, opts Options) (seg *Segmentation, err error) {
	defer func() {
		if r := recover(); r != nil {
			seg = nil
			err = apperrors.Computation(fmt.Errorf("panic: %v", r), "segmentation failed")
		}
	}()
	return segment(ds, opts)
}

// View is one catalog entry: a static column requirement and a pure compute
// function. Compute only runs once every required column is present.
type View struct {
	Name     string
	Required []string
	Compute  func(*ViewContext) (any, error)
}

const pa = models.ColPurchaseAmount

// catalog is ordered as the dashboard lays it out.
var catalog = []View{
	{"age_distribution", []string{models.ColAge, models.ColCustomerID}, ageDistribution},
	{"gender_distribution", []string{models.ColGender}, counts(models.ColGender, false)},
	{"sales_by_category", []string{models.ColCategory, pa}, salesBy(models.ColCategory)},
	{"sales_by_location", []string{models.ColLocation, pa}, salesBy(models.ColLocation)},
	{"sales_by_season", []string{models.ColSeason, pa}, salesBy(models.ColSeason)},
	{"sales_by_store", []string{models.ColStoreName, pa}, salesBy(models.ColStoreName)},
	{"sales_by_region", []string{models.ColRegion, pa}, salesBy(models.ColRegion)},
	{"sales_by_month", []string{models.ColMonth, pa}, salesByMonth},
	{"sales_by_store_size", []string{models.ColStoreSize, pa}, salesBy(models.ColStoreSize)},
	{"sales_by_year", []string{models.ColYear, pa}, salesBy(models.ColYear)},
	{"sales_by_age_bins", []string{models.ColAgeBins, pa}, salesBy(models.ColAgeBins)},
	{"peak_purchase_hours", []string{models.ColHour}, counts(models.ColHour, false)},
	{"promo_code_usage", []string{models.ColPromoCode}, counts(models.ColPromoCode, true)},
	{"top_selling_products", []string{models.ColProductID, pa}, topSellingProducts},
	{"clv_distribution", []string{models.ColCustomerID, models.ColPrevPurchases, models.ColFrequency}, clvDistribution},
	{"visit_vs_purchase_frequency", []string{models.ColRecency, models.ColFrequency}, visitVsPurchaseFrequency},
	{"cross_sell_upsell_opportunities", []string{models.ColCustomerID, models.ColPrevPurchases, models.ColCategory, pa}, crossSellView},
	{"discount_histogram", []string{models.ColDiscount}, discountHistogram},
	{"rfm_segments", []string{models.ColRecency, models.ColFrequency, models.ColMonetary, models.ColCustomerID}, rfmSegments},
	{"sales_by_segment", []string{models.ColSegment, pa}, salesBy(models.ColSegment)},
	{"churned_customers", []string{models.ColCustomerID, models.ColDate}, churnView},
	{"discount_impact", []string{models.ColDiscount, pa}, discountImpact},
	{"sales_by_day", []string{models.ColDayOfWeek, pa}, salesByDay},
	{"basket_analysis", []string{models.ColCustomerID, models.ColProductID}, basketView},
	{"sales_forecast", []string{models.ColDate, pa}, forecastView},
}

// Catalog returns the registered views in layout order.
func Catalog() []View {
	return slices.Clone(catalog)
}

func Lookup(name string) (View, bool) {
	for _, v := range catalog {
		if v.Name == name {
			return v, true
		}
	}
	return View{}, false
}

func counts(col string, normalize bool) func(*ViewContext) (any, error) {
	return func(vc *ViewContext) (any, error) {
		return valueCounts(vc.Data, col, normalize), nil
	}
}

func salesBy(col string) func(*ViewContext) (any, error) {
	return func(vc *ViewContext) (any, error) {
		return groupSum(vc.Data, col)
	}
}

func ageDistribution(vc *ViewContext) (any, error) {
	ages, err := readAges(vc.Data)
	if err != nil {
		return nil, err
	}
	bins := newAgeBins(ageRange(ages))
	var tally [ageBinCount]int
	for _, a := range ages {
		tally[bins.index(float64(a))]++
	}
	out := make(models.Mapping, ageBinCount)
	for i, label := range bins.labels {
		out[i] = models.Entry{Key: label, Value: tally[i]}
	}
	return out, nil
}

// salesByMonth keys each record by "YYYY-MM" when a year is known and by the
// zero-padded month otherwise, so ascending key order is chronological.
func salesByMonth(vc *ViewContext) (any, error) {
	total := make(map[string]float64)
	for _, r := range vc.Data.Rows() {
		month, ok, err := floatCell(r, models.ColMonth)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		key := fmt.Sprintf("%02d", int(month))
		if year, ok, _ := r.Float(models.ColYear); ok {
			key = fmt.Sprintf("%04d-%02d", int(year), int(month))
		}
		amount, ok, err := floatCell(r, pa)
		if err != nil {
			return nil, err
		}
		if _, seen := total[key]; !seen {
			total[key] = 0
		}
		if ok {
			total[key] += amount
		}
	}
	keys := make([]string, 0, len(total))
	for k := range total {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make(models.Mapping, len(keys))
	for i, k := range keys {
		out[i] = models.Entry{Key: k, Value: models.Round2(total[k])}
	}
	return out, nil
}

func topSellingProducts(vc *ViewContext) (any, error) {
	total, _, err := sums(vc.Data, models.ColProductID, pa)
	if err != nil {
		return nil, err
	}
	keys := sortedKeys(total)
	slices.SortStableFunc(keys, func(a, b string) int {
		return cmp.Compare(total[b], total[a])
	})
	if len(keys) > vc.Options.TopN {
		keys = keys[:vc.Options.TopN]
	}
	out := make(models.Mapping, len(keys))
	for i, k := range keys {
		out[i] = models.Entry{Key: k, Value: models.Round2(total[k])}
	}
	return out, nil
}

// clvDistribution approximates lifetime value as previous purchases times
// purchase frequency per record and bins it.
func clvDistribution(vc *ViewContext) (any, error) {
	var clv []float64
	for _, r := range vc.Data.Rows() {
		prev, ok1, err := floatCell(r, models.ColPrevPurchases)
		if err != nil {
			return nil, err
		}
		freq, ok2, err := floatCell(r, models.ColFrequency)
		if err != nil {
			return nil, err
		}
		if ok1 && ok2 {
			clv = append(clv, prev*freq)
		}
	}
	return histogram(clv, vc.Options.HistogramBins)
}

func visitVsPurchaseFrequency(vc *ViewContext) (any, error) {
	out := models.RecencyFrequency{Recency: []float64{}, Frequency: []float64{}}
	for _, r := range vc.Data.Rows() {
		rec, ok1, err := floatCell(r, models.ColRecency)
		if err != nil {
			return nil, err
		}
		freq, ok2, err := floatCell(r, models.ColFrequency)
		if err != nil {
			return nil, err
		}
		if ok1 && ok2 {
			out.Recency = append(out.Recency, rec)
			out.Frequency = append(out.Frequency, freq)
		}
	}
	return out, nil
}

func crossSellView(vc *ViewContext) (any, error) {
	return CrossSell(vc.Data)
}

func discountHistogram(vc *ViewContext) (any, error) {
	vals, err := numericColumn(vc.Data, models.ColDiscount)
	if err != nil {
		return nil, err
	}
	return histogram(vals, vc.Options.HistogramBins)
}

func rfmSegments(vc *ViewContext) (any, error) {
	seg, err := vc.Segmentation()
	if err != nil {
		return nil, err
	}
	return seg.Counts(), nil
}

func churnView(vc *ViewContext) (any, error) {
	return DetectChurn(vc.Data, vc.Options.ReferenceDate, vc.Options.ChurnThresholdDays)
}

// discountImpact reports, per discount value, the purchase mean, sum, count
// and the share of all purchases made at that discount.
func discountImpact(vc *ViewContext) (any, error) {
	total, count, err := sums(vc.Data, models.ColDiscount, pa)
	if err != nil {
		return nil, err
	}
	purchases, err := numericColumn(vc.Data, pa)
	if err != nil {
		return nil, err
	}
	out := make(models.Mapping, 0, len(total))
	for _, k := range sortedKeys(total) {
		n := count[k]
		impact := models.DiscountImpact{Sum: models.Round2(total[k]), Count: n}
		if n > 0 {
			impact.Mean = models.Round2(total[k] / float64(n))
		}
		if len(purchases) > 0 {
			impact.ConversionRate = float64(n) / float64(len(purchases))
		}
		out = append(out, models.Entry{Key: k, Value: impact})
	}
	return out, nil
}

var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// dayName maps numeric day codes 0-6 (Monday first) to weekday names.
func dayName(r models.Record) (string, bool) {
	if v, ok := r[models.ColDayOfWeek].(float64); ok {
		if d := int(v); float64(d) == v && d >= 0 && d < len(weekdays) {
			return weekdays[d], true
		}
	}
	if v, ok := r[models.ColDayOfWeek].(int); ok && v >= 0 && v < len(weekdays) {
		return weekdays[v], true
	}
	return r.Key(models.ColDayOfWeek)
}

func salesByDay(vc *ViewContext) (any, error) {
	total := make(map[string]float64)
	count := make(map[string]int)
	for _, r := range vc.Data.Rows() {
		day, ok := dayName(r)
		if !ok {
			continue
		}
		amount, ok, err := floatCell(r, pa)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		total[day] += amount
		count[day]++
	}
	keys := sortedKeys(total)
	slices.SortStableFunc(keys, func(a, b string) int {
		return cmp.Compare(weekdayRank(a), weekdayRank(b))
	})
	out := make(models.Mapping, len(keys))
	for i, k := range keys {
		out[i] = models.Entry{Key: k, Value: models.DayStat{
			Total:   models.Round2(total[k]),
			Average: models.Round2(total[k] / float64(count[k])),
		}}
	}
	return out, nil
}

func weekdayRank(day string) int {
	if i := slices.Index(weekdays, day); i >= 0 {
		return i
	}
	return len(weekdays)
}

func basketView(vc *ViewContext) (any, error) {
	o := vc.Options
	return BasketRules(vc.Data, o.BasketMinSupport, o.BasketMinConfidence, o.BasketMaxItems)
}

func forecastView(vc *ViewContext) (any, error) {
	return ForecastSales(vc.Data, vc.Options)
}

// assertComputable guards direct calls into a single view.
func assertComputable(v View, ds *models.Dataset) error {
	if missing := Missing(v.Required, ds.Columns()); len(missing) > 0 {
		return apperrors.SchemaMissing(fmt.Sprintf("view %s needs columns %v", v.Name, missing))
	}
	return nil
}
