// Package rank scores detailed records against their keyword and keeps the best.
package rank

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/JakeFAU/prodrefs/internal/crawler"
)

// Hard price bounds applied regardless of the sample size.
const (
	MinPrice = 500.0
	MaxPrice = 200_000_000.0
)

const (
	minOutlierSample   = 8
	relevanceWeight    = 0.75
	completenessWeight = 0.25
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Rank drops price outliers, scores the rest and returns the topN best in
// descending score order. Equal scores keep their input order.
func Rank(keyword string, records []crawler.DetailedRecord, topN int) []crawler.RankedRecord {
	if len(records) == 0 || topN <= 0 {
		return nil
	}
	prices := usablePrices(records)
	low, high := 0.0, math.Inf(1)
	useIQR := len(prices) >= minOutlierSample
	if useIQR {
		low, high = IQRBounds(prices)
	}

	kwTokens := tokens(keyword)
	ranked := make([]crawler.RankedRecord, 0, len(records))
	for _, rec := range records {
		if p, ok := usablePrice(rec); ok {
			if useIQR && (p < low || p > high) {
				continue
			}
			if p < MinPrice || p > MaxPrice {
				continue
			}
		}
		rel := jaccard(kwTokens, tokens(rec.ProductName))
		comp := Completeness(rec)
		ranked = append(ranked, crawler.RankedRecord{
			DetailedRecord: rec,
			Relevance:      rel,
			Completeness:   comp,
			Score:          relevanceWeight*rel + completenessWeight*comp,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// IQRBounds returns the Tukey fences of values, with the lower fence floored at zero.
// Quartiles use linear interpolation between closest ranks.
func IQRBounds(values []float64) (low, high float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1
	return math.Max(0, q1-1.5*iqr), q3 + 1.5*iqr
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	k := float64(len(sorted)-1) * p
	f, c := math.Floor(k), math.Ceil(k)
	if f == c {
		return sorted[int(k)]
	}
	return sorted[int(f)]*(c-k) + sorted[int(c)]*(k-f)
}

func usablePrice(rec crawler.DetailedRecord) (float64, bool) {
	if rec.Price == nil {
		return 0, false
	}
	p := *rec.Price
	if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, false
	}
	return p, true
}

func usablePrices(records []crawler.DetailedRecord) []float64 {
	out := make([]float64, 0, len(records))
	for _, rec := range records {
		if p, ok := usablePrice(rec); ok {
			out = append(out, p)
		}
	}
	return out
}

// Relevance is the Jaccard similarity of the keyword and name token sets.
func Relevance(keyword, name string) float64 {
	return jaccard(tokens(keyword), tokens(name))
}

func tokens(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, t := range tokenPattern.FindAllString(strings.ToLower(s), -1) {
		set[t] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// Completeness is the share of name, price, URL, store, image and description that are present.
func Completeness(rec crawler.DetailedRecord) float64 {
	_, priced := usablePrice(rec)
	present := []bool{
		strings.TrimSpace(rec.ProductName) != "",
		priced,
		strings.TrimSpace(rec.ProductURL) != "",
		strings.TrimSpace(rec.StoreName) != "",
		rec.ImageURL != "" || len(rec.ImageURLs) > 0,
		strings.TrimSpace(rec.Description) != "",
	}
	n := 0
	for _, ok := range present {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(present))
}
