package crawler

import (
	"testing"
)

func TestBlockDetectorInspect(t *testing.T) {
	t.Parallel()

	d := NewBlockDetector(nil, nil)

	tests := []struct {
		name string
		html string
		want BlockVerdict
	}{
		{name: "empty page", html: "", want: VerdictClear},
		{name: "plain listing", html: `<div data-testid="master-product-card"><a href="/p/1">x</a></div>`, want: VerdictClear},
		{name: "captcha alone is not a marker", html: `<p>captcha</p>`, want: VerdictClear},
		{name: "captcha challenge without products", html: `<form><p>Captcha challenge</p></form>`, want: VerdictBlocked},
		{name: "access denied without products", html: `<h1>Access Denied</h1>`, want: VerdictBlocked},
		{name: "marker next to products", html: `<div class="ProductCard">forbidden fruit</div>`, want: VerdictSuspicious},
		{name: "blocked word with product link", html: `<p>blocked</p><a href="https://www.tokopedia.com/shop/p/1">p</a>`, want: VerdictSuspicious},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := d.Inspect(tt.html); got != tt.want {
				t.Fatalf("Inspect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBlockDetectorCustomRules(t *testing.T) {
	t.Parallel()

	d := NewBlockDetector([]MarkerRule{{Primary: "  Robot Check "}}, []string{"#results"})
	if got := d.Inspect(`<p>robot check</p>`); got != VerdictBlocked {
		t.Fatalf("expected blocked, got %v", got)
	}
	if got := d.Inspect(`<p>robot check</p><div id="results"></div>`); got != VerdictSuspicious {
		t.Fatalf("expected suspicious, got %v", got)
	}
	var nilDetector *BlockDetector
	if got := nilDetector.Inspect("<p>blocked</p>"); got != VerdictClear {
		t.Fatalf("nil detector should be clear, got %v", got)
	}
}
