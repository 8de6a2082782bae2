package analytics

import "slices"

// HasRequired reports whether every column the named view needs is present.
// Only presence counts; unreadable values surface later as the view's own
// error. Unknown views are never computable.
func HasRequired(view string, columns []string) bool {
	v, ok := Lookup(view)
	if !ok {
		return false
	}
	return len(Missing(v.Required, columns)) == 0
}

// Missing returns the required columns absent from columns, in required order.
func Missing(required, columns []string) []string {
	var missing []string
	for _, col := range required {
		if !slices.Contains(columns, col) {
			missing = append(missing, col)
		}
	}
	return missing
}
