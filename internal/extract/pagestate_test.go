package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"
)

const pdp = `<html><head>
<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"shop":{"name":"Toko Maju Jaya","url":"https://www.tokopedia.com/majujaya"},"product":{"priceInt":125000,"stock":3,"media":[{"urlOriginal":"https://images.tokopedia.net/img/cache/700/abc/1.jpg"},{"urlOriginal":"https://images.tokopedia.net/img/cache/700/abc/2.jpg"}]}}}}</script>
<script type="application/ld+json">{"@type":"Product","offers":{"price":"125000","priceCurrency":"IDR"},"image":"https://images.tokopedia.net/img/cache/700/abc/1.jpg"}</script>
<script>
window.__APOLLO_STATE__ = {"Seller:1":{"sellerName":"Tokopedia","merchantCity":"Jakarta"},"amountSold":12};
</script>
<script>window.__cache = {not json};</script>
</head><body></body></html>`

func TestPayloadsParsesAllSources(t *testing.T) {
	t.Parallel()

	payloads := Payloads(pdp)
	require.Len(t, payloads, 3)
	assert.Equal(t, "Toko Maju Jaya", payloads[0].Get("props.pageProps.shop.name").Str())
	assert.Equal(t, "Product", payloads[1].Get("@type").Str())
	assert.Equal(t, "Jakarta", payloads[2].Get("Seller:1.merchantCity").Str())
	assert.Empty(t, Payloads("<html><body>no state</body></html>"))
}

func TestWalkIsDeterministic(t *testing.T) {
	t.Parallel()

	root := gson.NewFrom(`{"b":[1,{"z":2,"a":3}],"a":"x"}`)
	var paths []string
	var values []any
	Walk(root, func(path []string, v gson.JSON) {
		paths = append(paths, strings.Join(path, "."))
		values = append(values, v.Val())
	})
	assert.Equal(t, []string{"a", "b", "b.a", "b.z"}, paths)
	assert.Equal(t, []any{"x", 1.0, 3.0, 2.0}, values)
}

func TestPriceHint(t *testing.T) {
	t.Parallel()

	price := PriceHint(Payloads(pdp))
	require.NotNil(t, price)
	assert.InDelta(t, 125000, *price, 0)

	assert.Nil(t, PriceHint([]gson.JSON{gson.NewFrom(`{"price":50,"amount":2e10,"harga":"Rp 10.000"}`)}))
	got := PriceHint([]gson.JSON{gson.NewFrom(`{"a":{"hargaDiskon":15000},"z":{"price":99000}}`)})
	require.NotNil(t, got)
	assert.InDelta(t, 15000, *got, 0)
}

func TestStoreHintRejectsBrand(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Toko Maju Jaya", StoreHint(Payloads(pdp), []string{"tokopedia"}))

	apollo := []gson.JSON{gson.NewFrom(`{"Seller:1":{"name":"Tokopedia","shopName":"Toko Kita"}}`)}
	assert.Equal(t, "Toko Kita", StoreHint(apollo, []string{"tokopedia"}))
	assert.Empty(t, StoreHint([]gson.JSON{gson.NewFrom(`{"shopName":"X"}`)}, nil))
}

func TestImageHints(t *testing.T) {
	t.Parallel()

	got := ImageHints(Payloads(pdp), "https://www.tokopedia.com")
	assert.Equal(t, []string{
		"https://images.tokopedia.net/img/cache/700/abc/1.jpg",
		"https://images.tokopedia.net/img/cache/700/abc/2.jpg",
	}, got)
}
