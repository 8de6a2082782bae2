package models

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Canonical column names. Ingest maps incoming headers onto these.
const (
	ColCustomerID     = "Customer_ID"
	ColDate           = "Date"
	ColPurchaseAmount = "Purchase Amount (USD)"
	ColCategory       = "Category"
	ColLocation       = "Location"
	ColRegion         = "Region/Zone"
	ColStoreName      = "Store Name"
	ColStoreSize      = "Store Size"
	ColAge            = "Age"
	ColGender         = "Gender"
	ColRating         = "Review Rating"
	ColDiscount       = "Discount"
	ColPromoCode      = "Promo_code"
	ColPrevPurchases  = "Previous Purchases"
	ColProductID      = "Product_id"

	// Derived by enrichment.
	ColYear      = "Year"
	ColMonth     = "Month"
	ColSeason    = "Season"
	ColHour      = "Hour"
	ColDayOfWeek = "Day_of_Week"
	ColWeek      = "Week_of_Year"
	ColQuarter   = "Quarter"
	ColWeekend   = "Is_Weekend"
	ColAgeBins   = "Age_bins"
	ColRecency   = "Recency"
	ColFrequency = "Frequency"
	ColMonetary  = "Monetary"
	ColSegment   = "Segment"
)

// Record is one transaction row. A missing key is a null cell.
type Record map[string]any

// Dataset is an ordered set of records sharing one schema. The column list,
// not cell content, decides which views can be computed.
type Dataset struct {
	columns []string
	rows    []Record
}

func NewDataset(columns []string, rows []Record) *Dataset {
	return &Dataset{
		columns: slices.Clone(columns),
		rows:    rows,
	}
}

func (d *Dataset) Columns() []string {
	return slices.Clone(d.columns)
}

func (d *Dataset) Has(col string) bool {
	return slices.Contains(d.columns, col)
}

func (d *Dataset) Len() int {
	return len(d.rows)
}

func (d *Dataset) Rows() []Record {
	return d.rows
}

// AddColumn registers col in the schema. Cells are set per record.
func (d *Dataset) AddColumn(col string) {
	if !d.Has(col) {
		d.columns = append(d.columns, col)
	}
}

// Clone returns a deep copy of the schema and every record map. Cell values
// are immutable scalars, so sharing them is safe.
func (d *Dataset) Clone() *Dataset {
	rows := make([]Record, len(d.rows))
	for i, r := range d.rows {
		cp := make(Record, len(r))
		for k, v := range r {
			cp[k] = v
		}
		rows[i] = cp
	}
	return &Dataset{columns: slices.Clone(d.columns), rows: rows}
}

// Where returns a new dataset holding the records for which keep is true.
// Records are shared with the receiver.
func (d *Dataset) Where(keep func(Record) bool) *Dataset {
	rows := make([]Record, 0, len(d.rows))
	for _, r := range d.rows {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return &Dataset{columns: slices.Clone(d.columns), rows: rows}
}

// Float reads a numeric cell. ok is false for null cells; err is set when the
// cell is present but cannot be read as a number.
func (r Record) Float(col string) (v float64, ok bool, err error) {
	raw, present := r[col]
	if !present || raw == nil {
		return 0, false, nil
	}
	switch x := raw.(type) {
	case float64:
		if math.IsNaN(x) {
			return 0, false, nil
		}
		if math.IsInf(x, 0) {
			return 0, false, fmt.Errorf("column %q: %v is not a finite number", col, x)
		}
		return x, true, nil
	case int:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case bool:
		if x {
			return 1, true, nil
		}
		return 0, true, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false, nil
		}
		f, perr := strconv.ParseFloat(s, 64)
		if perr != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false, fmt.Errorf("column %q: %q is not numeric", col, x)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("column %q: unsupported value type %T", col, raw)
	}
}

// Time reads a timestamp cell set by enrichment.
func (r Record) Time(col string) (time.Time, bool) {
	t, ok := r[col].(time.Time)
	if !ok || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// Key renders a cell as a grouping key. ok is false for null cells.
func (r Record) Key(col string) (string, bool) {
	raw, present := r[col]
	if !present || raw == nil {
		return "", false
	}
	return FormatKey(raw), true
}

// FormatKey renders a scalar the way grouping keys are shown: integral floats
// lose their fraction, booleans print as True/False.
func FormatKey(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case time.Time:
		return x.Format("2006-01-02")
	default:
		return fmt.Sprint(x)
	}
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
