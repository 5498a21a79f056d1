package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	got, err := NormalizeURL("HTTPS://WWW.Tokopedia.com:443/shop/item?b=2&a=1#reviews")
	require.NoError(t, err)
	assert.Equal(t, "https://www.tokopedia.com/shop/item?a=1&b=2", got)

	_, err = NormalizeURL("http://%zz")
	require.Error(t, err)
}

func TestAbsoluteURL(t *testing.T) {
	t.Parallel()

	base := "https://www.tokopedia.com"
	assert.Equal(t, "https://images.tokopedia.net/a.jpg", AbsoluteURL(base, "//images.tokopedia.net/a.jpg"))
	assert.Equal(t, "https://www.tokopedia.com/shop/item", AbsoluteURL(base+"/", "/shop/item"))
	assert.Equal(t, "https://x.test/y", AbsoluteURL(base, " https://x.test/y "))
	assert.Empty(t, AbsoluteURL(base, "   "))
}

func TestSearchURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"https://www.tokopedia.com/search?st=product&q=sepatu+lari%26jalan",
		SearchURL("https://www.tokopedia.com/", "sepatu lari&jalan"))
}

func TestLooksLikeProductURL(t *testing.T) {
	t.Parallel()

	const host = "tokopedia.com"
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.tokopedia.com/tokoabc/sepatu-lari-pria", true},
		{"https://www.tokopedia.com/p/olahraga/sepatu", true},
		{"https://www.tokopedia.com/search?q=sepatu", false},
		{"https://www.tokopedia.com/help/article", false},
		{"https://www.tokopedia.com/cart/list", false},
		{"https://www.tokopedia.com/tokoabc", false},
		{"https://www.tokopedia.com/tokoabc/kategori", false},
		{"https://www.tokopedia.com/tokoabc/search-results", false},
		{"https://www.example.com/tokoabc/sepatu", false},
		{"/relative/path", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksLikeProductURL(tt.url, host), tt.url)
	}
}

func TestValidImageURL(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidImageURL("https://images.tokopedia.net/img/cache/700/a.jpg"))
	assert.True(t, ValidImageURL("http://localhost:8080/img.png"))
	assert.True(t, ValidImageURL("http://127.0.0.1/img.png"))
	assert.False(t, ValidImageURL("ftp://images.tokopedia.net/a.jpg"))
	assert.False(t, ValidImageURL("data:image/png;base64,AAAA"))
	assert.False(t, ValidImageURL("https://no spaces.com/a.jpg"))
	assert.False(t, ValidImageURL(""))
}

func TestLastPathSegmentAndHost(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sepatu-lari-pria", LastPathSegment("https://www.tokopedia.com/toko/sepatu-lari-pria/?x=1"))
	assert.Empty(t, LastPathSegment("https://www.tokopedia.com"))
	assert.Equal(t, "www.tokopedia.com", HostOf("https://WWW.TOKOPEDIA.COM/x"))
}
