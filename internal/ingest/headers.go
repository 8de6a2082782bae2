package ingest

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"retail-insights/internal/models"
)

const utf8BOM = "\uFEFF"

// aliases maps normalized header spellings onto canonical column names.
// Matching is exact after normalization; unknown headers pass through.
var aliases = map[string]string{
	"customer_id":            models.ColCustomerID,
	"customerid":             models.ColCustomerID,
	"customer":               models.ColCustomerID,
	"date":                   models.ColDate,
	"purchase_date":          models.ColDate,
	"transaction_date":       models.ColDate,
	"order_date":             models.ColDate,
	"purchase_amount_usd":    models.ColPurchaseAmount,
	"purchase_amount_in_usd": models.ColPurchaseAmount,
	"purchase_amount":        models.ColPurchaseAmount,
	"amount":                 models.ColPurchaseAmount,
	"category":               models.ColCategory,
	"product_category":       models.ColCategory,
	"location":               models.ColLocation,
	"region_zone":            models.ColRegion,
	"region":                 models.ColRegion,
	"zone":                   models.ColRegion,
	"store_name":             models.ColStoreName,
	"store":                  models.ColStoreName,
	"store_size":             models.ColStoreSize,
	"age":                    models.ColAge,
	"gender":                 models.ColGender,
	"review_rating":          models.ColRating,
	"rating":                 models.ColRating,
	"discount":               models.ColDiscount,
	"discount_applied":       models.ColDiscount,
	"promo_code":             models.ColPromoCode,
	"promo_code_used":        models.ColPromoCode,
	"previous_purchases":     models.ColPrevPurchases,
	"product_id":             models.ColProductID,
	"productid":              models.ColProductID,
}

// normalizeHeader lowercases s, strips accents and folds every run of
// separators into a single underscore.
func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, utf8BOM)))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, err := transform.String(t, s)
	if err != nil {
		ascii = s
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.' || r == '/':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// canonicalHeaders maps raw headers to column names. Recognized spellings
// become the canonical name; anything else keeps its trimmed original text.
// When two headers resolve to the same name the later one keeps its raw text.
func canonicalHeaders(raw []string) []string {
	out := make([]string, len(raw))
	taken := make(map[string]bool, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(strings.TrimPrefix(h, utf8BOM))
		name := h
		if canon, ok := aliases[normalizeHeader(h)]; ok && !taken[canon] {
			name = canon
		}
		if taken[name] || name == "" {
			name = uniqueName(h, i, taken)
		}
		taken[name] = true
		out[i] = name
	}
	return out
}

func uniqueName(h string, i int, taken map[string]bool) string {
	base := h
	if base == "" {
		base = "column"
	}
	name := base
	for n := i; taken[name]; n++ {
		name = base + "_" + strconv.Itoa(n)
	}
	return name
}
