// Package crawler defines core types shared across subsystems.
package crawler

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultCurrency is used whenever a price string carries no recognizable marker.
const DefaultCurrency = "IDR"

// Candidate is a minimally described product reference found on a search results view.
type Candidate struct {
	ProductName string   `json:"product_name"`
	Price       *float64 `json:"price"`
	Currency    string   `json:"currency"`
	ImageURL    string   `json:"image_url"`
	StoreName   string   `json:"store_name"`
	ProductURL  string   `json:"product_url"`
	Description string   `json:"description"`
}

// DetailFields is what the detail resolver extracts from a product page.
type DetailFields struct {
	ProductName string
	Description string
	Price       *float64
	Currency    string
	ImageURLs   []string
	StoreName   string
}

// DetailedRecord is a candidate enriched with its detail page.
type DetailedRecord struct {
	Candidate
	ImageURLs    []string  `json:"image_urls"`
	InputKeyword string    `json:"input_keyword"`
	SourceSite   string    `json:"source_site"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

// RankedRecord carries the ranking scores alongside the record. Scores are never exported.
type RankedRecord struct {
	DetailedRecord
	Relevance    float64
	Completeness float64
	Score        float64
}

// OutputRow is the only entity that crosses the system boundary.
type OutputRow struct {
	InputKeyword    string   `json:"input_keyword"`
	ProductName     string   `json:"product_name"`
	Description     string   `json:"description"`
	Price           *float64 `json:"price"`
	Currency        string   `json:"currency"`
	ImageURL        string   `json:"image_url"`
	ImageLocalPath  string   `json:"image_local_path"`
	ImageURLs       string   `json:"image_urls"`
	ImageLocalPaths string   `json:"image_local_paths"`
	StoreName       string   `json:"store_name"`
	ProductURL      string   `json:"product_url"`
	SourceSite      string   `json:"source_site"`
	ScrapedAt       string   `json:"scraped_at"`
}

// OutputSchema lists the exported columns in their fixed order.
var OutputSchema = []string{
	"input_keyword",
	"product_name",
	"description",
	"price",
	"currency",
	"image_url",
	"image_local_path",
	"image_urls",
	"image_local_paths",
	"store_name",
	"product_url",
	"source_site",
	"scraped_at",
}

// Values renders the row in OutputSchema order. A nil price becomes an empty cell.
func (r OutputRow) Values() []string {
	price := ""
	if r.Price != nil {
		price = strconv.FormatFloat(*r.Price, 'f', -1, 64)
	}
	return []string{
		r.InputKeyword,
		r.ProductName,
		r.Description,
		price,
		r.Currency,
		r.ImageURL,
		r.ImageLocalPath,
		r.ImageURLs,
		r.ImageLocalPaths,
		r.StoreName,
		r.ProductURL,
		r.SourceSite,
		r.ScrapedAt,
	}
}

// Merge combines a candidate with its detail fields. Non-empty detail values win.
func Merge(c Candidate, d DetailFields, keyword, site string, now time.Time) DetailedRecord {
	rec := DetailedRecord{
		Candidate:    c,
		InputKeyword: keyword,
		SourceSite:   site,
		ScrapedAt:    now.UTC(),
	}
	if name := strings.TrimSpace(d.ProductName); name != "" {
		rec.ProductName = name
	}
	if desc := strings.TrimSpace(d.Description); desc != "" {
		rec.Description = desc
	}
	if d.Price != nil {
		rec.Price = d.Price
		if d.Currency != "" {
			rec.Currency = d.Currency
		}
	}
	if store := strings.TrimSpace(d.StoreName); store != "" {
		rec.StoreName = store
	}
	if rec.Currency == "" {
		rec.Currency = DefaultCurrency
	}
	rec.ImageURLs = append([]string(nil), d.ImageURLs...)
	if len(rec.ImageURLs) == 0 && c.ImageURL != "" {
		rec.ImageURLs = []string{c.ImageURL}
	}
	if len(rec.ImageURLs) > 0 {
		rec.ImageURL = rec.ImageURLs[0]
	}
	return rec
}

// BuildOutputRow normalizes a record plus its local media paths into the export schema.
func BuildOutputRow(rec DetailedRecord, localPaths []string) OutputRow {
	row := OutputRow{
		InputKeyword:    rec.InputKeyword,
		ProductName:     strings.TrimSpace(rec.ProductName),
		Description:     strings.TrimSpace(rec.Description),
		Price:           finiteOrNil(rec.Price),
		Currency:        rec.Currency,
		ImageURL:        rec.ImageURL,
		ImageURLs:       strings.Join(rec.ImageURLs, "\n"),
		ImageLocalPaths: strings.Join(localPaths, "\n"),
		StoreName:       strings.TrimSpace(rec.StoreName),
		ProductURL:      rec.ProductURL,
		SourceSite:      rec.SourceSite,
	}
	if row.Currency == "" {
		row.Currency = DefaultCurrency
	}
	if row.ImageURL == "" && len(rec.ImageURLs) > 0 {
		row.ImageURL = rec.ImageURLs[0]
	}
	if len(localPaths) > 0 {
		row.ImageLocalPath = localPaths[0]
	}
	if !rec.ScrapedAt.IsZero() {
		row.ScrapedAt = rec.ScrapedAt.UTC().Format(time.RFC3339)
	}
	return row
}

// DedupeCandidates drops repeated product URLs, keeping the first occurrence.
func DedupeCandidates(in []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(in))
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		if c.ProductURL == "" {
			continue
		}
		if _, ok := seen[c.ProductURL]; ok {
			continue
		}
		seen[c.ProductURL] = struct{}{}
		out = append(out, c)
	}
	return out
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	out := *v
	return &out
}
