package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKeyword(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  Sepatu   Lari  ":   "sepatu lari",
		"Kaos!! Polos, Pria?": "kaos polos pria",
		"t-shirt_oversize":    "t-shirt_oversize",
		"Kopi\tBubuk\nAceh":   "kopi bubuk aceh",
		"Café Crème":          "café crème",
		"$$$":                 "",
		"":                    "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeKeyword(in), in)
	}
}

func TestNormalizeKeywordsDedupesInOrder(t *testing.T) {
	t.Parallel()

	got := NormalizeKeywords([]string{"Sepatu Lari", "kaos polos", " sepatu   lari!", "", "KAOS POLOS", "tas"})
	require.Equal(t, []string{"sepatu lari", "kaos polos", "tas"}, got)
}

func TestNormalizeKeywordsIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := [][]string{
		{"A  b", "a b", "C!"},
		{"  Kopi  ", "kopi", "Teh-Hijau", "teh hijau"},
		{},
	}
	for _, in := range inputs {
		once := NormalizeKeywords(in)
		twice := NormalizeKeywords(once)
		require.Equal(t, once, twice)
	}
}
