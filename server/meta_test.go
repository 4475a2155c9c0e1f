package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func amazonSource(t *testing.T) *Source {
	t.Helper()
	sources, err := loadSources("", testLogger())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	return sources[0]
}

func TestMatchSourceByDomainSuffix(t *testing.T) {
	sources, err := loadSources("", testLogger())
	require.NoError(t, err)

	assert.NotNil(t, matchSource("amazon.de", sources))
	assert.NotNil(t, matchSource("www.amazon.com", sources))
	assert.NotNil(t, matchSource("smile.amazon.co.uk", sources))
	assert.Nil(t, matchSource("notamazon.com", sources))
	assert.Nil(t, matchSource("amazon.com.evil.example", sources))
}

func TestLoadSourcesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta-sources.json")
	rules := `[
  {
    "name": "example",
    "domains": ["shop.example"],
    "selectors": {
      "whole": {"type": "classText", "value": "price-int"},
      "fraction": {"type": "classText", "value": "price-frac"},
      "image": {"type": "attr", "selector": "#hero", "attr": "src"}
    },
    "fallbackRegexes": ["data-price=\"([0-9.,]+)\""]
  }
]`
	require.NoError(t, os.WriteFile(path, []byte(rules), 0o644))

	sources, err := loadSources(path, testLogger())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "example", sources[0].Name)
	assert.Len(t, sources[0].fallbacks, 1)
	assert.NotNil(t, matchSource("shop.example", sources))
}

func TestLoadSourcesMissingFileFallsBack(t *testing.T) {
	sources, err := loadSources(filepath.Join(t.TempDir(), "nope.json"), testLogger())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "amazon", sources[0].Name)
}

func TestLoadSourcesBadRegex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta-sources.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"x","domains":["x.example"],"fallbackRegexes":["("]}]`), 0o644))

	_, err := loadSources(path, testLogger())
	assert.Error(t, err)
}

func TestExtractPriceFromSelectors(t *testing.T) {
	html := `<html><body>
	  <span class="a-price-whole">19<span class="a-price-decimal">.</span></span>
	  <span class="a-price-fraction">99</span>
	</body></html>`
	src := amazonSource(t)

	price := extractPrice(parseHTML(t, html), html, src)
	require.NotNil(t, price)
	assert.InDelta(t, 19.99, *price, 1e-9)
}

func TestExtractPriceWholeOnly(t *testing.T) {
	html := `<div class="a-price-whole">1,299</div>`
	price := extractPrice(parseHTML(t, html), html, amazonSource(t))
	require.NotNil(t, price)
	assert.InDelta(t, 1299, *price, 1e-9)
}

func TestExtractPriceFallbackRegexOrder(t *testing.T) {
	// no structured selectors match; the first fallback pattern wins
	html := `<html><script>{"price" : "24.95"}</script><p>$99</p></html>`
	price := extractPrice(parseHTML(t, html), html, amazonSource(t))
	require.NotNil(t, price)
	assert.InDelta(t, 24.95, *price, 1e-9)
}

func TestExtractPriceCommaDecimal(t *testing.T) {
	html := `<html><body>price":"19,99" </body></html>`
	price := extractPrice(parseHTML(t, html), html, amazonSource(t))
	require.NotNil(t, price)
	assert.InDelta(t, 19.99, *price, 1e-9)
}

func TestExtractPriceAbsent(t *testing.T) {
	html := `<html><body><p>no numbers here</p></body></html>`
	assert.Nil(t, extractPrice(parseHTML(t, html), html, amazonSource(t)))
	assert.Nil(t, extractPrice(parseHTML(t, html), html, nil))
}

func TestParseScraped(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"19,99", 19.99, true},
		{"1,234.56", 1234.56, true},
		{"42", 42, true},
		{"", 0, false},
		{"x", 0, false},
	}
	for _, c := range cases {
		got, ok := parseScraped(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.InDelta(t, c.want, got, 1e-9, c.in)
		}
	}
}

func TestExtractAmazonImagePrefersDynamicJSONFirstKey(t *testing.T) {
	html := `<img id="landingImage"
	  src="https://img.example/small.jpg"
	  data-old-hires="https://img.example/hires.jpg"
	  data-a-dynamic-image='{"https://img.example/dyn-first.jpg":[100,100],"https://img.example/dyn-second.jpg":[200,200]}'>`

	image := extractImage(parseHTML(t, html), amazonSource(t))
	assert.Equal(t, "https://img.example/dyn-first.jpg", image)
}

func TestExtractAmazonImageFallsBackToHiResThenSrc(t *testing.T) {
	hires := `<img id="landingImage" src="https://img.example/small.jpg" data-old-hires="https://img.example/hires.jpg">`
	assert.Equal(t, "https://img.example/hires.jpg", extractImage(parseHTML(t, hires), nil))

	plain := `<img id="landingImage" src="https://img.example/small.jpg">`
	assert.Equal(t, "https://img.example/small.jpg", extractImage(parseHTML(t, plain), nil))

	badDyn := `<img id="landingImage" src="https://img.example/small.jpg" data-a-dynamic-image="not json">`
	assert.Equal(t, "https://img.example/small.jpg", extractImage(parseHTML(t, badDyn), nil))
}

func TestExtractImageGenericChain(t *testing.T) {
	src := &Source{
		Name:    "example",
		Domains: []string{"shop.example"},
		Selectors: SourceSelectors{
			Image:        &Selector{Type: "attr", Selector: "#hero", Attr: "src"},
			DynamicImage: &Selector{Type: "attr", Selector: "#hero", Attr: "data-variants", Parse: "jsonKey"},
			AltImage:     &Selector{Type: "attr", Selector: "#hero", Attr: "data-zoom"},
		},
	}

	direct := `<img id="hero" src="https://shop.example/a.jpg" data-zoom="https://shop.example/z.jpg">`
	assert.Equal(t, "https://shop.example/a.jpg", extractImage(parseHTML(t, direct), src))

	dynamic := `<img id="hero" data-variants='{"https://shop.example/v1.jpg":[1,1]}' data-zoom="https://shop.example/z.jpg">`
	assert.Equal(t, "https://shop.example/v1.jpg", extractImage(parseHTML(t, dynamic), src))

	alt := `<img id="hero" data-zoom="https://shop.example/z.jpg">`
	assert.Equal(t, "https://shop.example/z.jpg", extractImage(parseHTML(t, alt), src))

	assert.Equal(t, "", extractImage(parseHTML(t, `<p>nothing</p>`), src))
	assert.Equal(t, "", extractImage(parseHTML(t, `<p>nothing</p>`), nil))
}

func TestFirstJSONKey(t *testing.T) {
	assert.Equal(t, "a", firstJSONKey(`{"a":[1],"b":[2]}`))
	assert.Equal(t, "", firstJSONKey(`[]`))
	assert.Equal(t, "", firstJSONKey(`not json`))
	assert.Equal(t, "", firstJSONKey(`{}`))
}
