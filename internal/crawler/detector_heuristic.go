package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BlockVerdict is the result of inspecting a rendered search page.
type BlockVerdict int

// Verdicts, in increasing severity.
const (
	VerdictClear BlockVerdict = iota
	// VerdictSuspicious means blocking markers were seen next to product content.
	VerdictSuspicious
	// VerdictBlocked means markers were seen and no product content exists.
	VerdictBlocked
)

func (v BlockVerdict) String() string {
	switch v {
	case VerdictSuspicious:
		return "suspicious"
	case VerdictBlocked:
		return "blocked"
	default:
		return "clear"
	}
}

// MarkerRule matches when the page contains Primary and, if set, any of Companions.
type MarkerRule struct {
	Primary    string
	Companions []string
}

// DefaultBlockMarkers are the verification-page phrases the detector looks for.
var DefaultBlockMarkers = []MarkerRule{
	{Primary: "captcha", Companions: []string{"form", "challenge", "verify"}},
	{Primary: "access denied"},
	{Primary: "blocked"},
	{Primary: "forbidden"},
}

// DefaultProductIndicators are selectors whose presence means real listings rendered.
var DefaultProductIndicators = []string{
	`[data-testid*="product"]`,
	`[data-testid*="Product"]`,
	`a[href*="/p/"]`,
	`a[href*="product"]`,
	`[class*="product"]`,
	`[class*="Product"]`,
}

// BlockDetector decides whether a page is a verification wall.
// Markers alone never block; product indicators must be missing too.
type BlockDetector struct {
	markers    []MarkerRule
	indicators []string
}

// NewBlockDetector builds a detector. Empty inputs fall back to the defaults.
func NewBlockDetector(markers []MarkerRule, indicators []string) *BlockDetector {
	if len(markers) == 0 {
		markers = DefaultBlockMarkers
	}
	if len(indicators) == 0 {
		indicators = DefaultProductIndicators
	}
	lowered := make([]MarkerRule, 0, len(markers))
	for _, m := range markers {
		primary := strings.ToLower(strings.TrimSpace(m.Primary))
		if primary == "" {
			continue
		}
		companions := make([]string, 0, len(m.Companions))
		for _, c := range m.Companions {
			if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
				companions = append(companions, c)
			}
		}
		lowered = append(lowered, MarkerRule{Primary: primary, Companions: companions})
	}
	return &BlockDetector{markers: lowered, indicators: indicators}
}

// Inspect classifies the rendered HTML of a page.
func (d *BlockDetector) Inspect(html string) BlockVerdict {
	if d == nil || html == "" {
		return VerdictClear
	}
	if !d.hasMarkers(html) {
		return VerdictClear
	}
	if d.hasProductIndicators(html) {
		return VerdictSuspicious
	}
	return VerdictBlocked
}

func (d *BlockDetector) hasMarkers(html string) bool {
	lower := strings.ToLower(html)
	for _, m := range d.markers {
		if !strings.Contains(lower, m.Primary) {
			continue
		}
		if len(m.Companions) == 0 {
			return true
		}
		for _, c := range m.Companions {
			if strings.Contains(lower, c) {
				return true
			}
		}
	}
	return false
}

func (d *BlockDetector) hasProductIndicators(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	for _, sel := range d.indicators {
		if sel == "" {
			continue
		}
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
