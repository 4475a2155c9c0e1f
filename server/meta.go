package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selector is one extraction rule entry. Type "classText" reads the text
// of the first element carrying the class in Value; type "attr" reads
// Attr from the first element matched by Selector. Parse "jsonKey" means
// the attribute holds a JSON object whose first key is the value.
type Selector struct {
	Type     string `json:"type"`
	Value    string `json:"value,omitempty"`
	Selector string `json:"selector,omitempty"`
	Attr     string `json:"attr,omitempty"`
	Parse    string `json:"parse,omitempty"`
}

type SourceSelectors struct {
	Whole        *Selector `json:"whole,omitempty"`
	Fraction     *Selector `json:"fraction,omitempty"`
	Symbol       *Selector `json:"symbol,omitempty"`
	Image        *Selector `json:"image,omitempty"`
	DynamicImage *Selector `json:"dynamicImage,omitempty"`
	AltImage     *Selector `json:"altImage,omitempty"`
}

// Source describes how to extract price and image data from one
// website's pages, matched by hostname suffix.
type Source struct {
	Name            string          `json:"name"`
	Domains         []string        `json:"domains"`
	Selectors       SourceSelectors `json:"selectors"`
	FallbackRegexes []string        `json:"fallbackRegexes"`

	fallbacks []*regexp.Regexp
}

func defaultSources() []*Source {
	return []*Source{{
		Name:    "amazon",
		Domains: []string{"amazon.com", "amazon.de", "amazon.co.uk", "amazon.fr"},
		Selectors: SourceSelectors{
			Whole:        &Selector{Type: "classText", Value: "a-price-whole"},
			Fraction:     &Selector{Type: "classText", Value: "a-price-fraction"},
			Symbol:       &Selector{Type: "classText", Value: "a-price-symbol"},
			Image:        &Selector{Type: "attr", Selector: "#landingImage", Attr: "src"},
			DynamicImage: &Selector{Type: "attr", Selector: "#landingImage", Attr: "data-a-dynamic-image", Parse: "jsonKey"},
			AltImage:     &Selector{Type: "attr", Selector: "#landingImage", Attr: "data-old-hires"},
		},
		FallbackRegexes: []string{
			`"price"\s*:\s*"([0-9.,]+)"`,
			`price":"([0-9.,]+)"`,
			`\$(\d+[\d.,]*)`,
		},
	}}
}

// loadSources reads the source registry from path, falling back to the
// built-in registry when the file is absent or path is empty.
func loadSources(path string, log *slog.Logger) ([]*Source, error) {
	sources := defaultSources()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Info("meta sources file missing, using built-in rules", "path", path)
		case err != nil:
			return nil, err
		default:
			sources = nil
			if err := json.Unmarshal(data, &sources); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	for _, src := range sources {
		for _, pattern := range src.FallbackRegexes {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("source %q fallback %q: %w", src.Name, pattern, err)
			}
			src.fallbacks = append(src.fallbacks, re)
		}
	}
	return sources, nil
}

// matchSource resolves a rule for a hostname: equal to a listed domain
// or ending in "." + domain, first rule wins.
func matchSource(hostname string, sources []*Source) *Source {
	for _, src := range sources {
		for _, domain := range src.Domains {
			if hostname == domain || strings.HasSuffix(hostname, "."+domain) {
				return src
			}
		}
	}
	return nil
}

func selectorText(doc *goquery.Document, sel *Selector) string {
	if sel == nil || sel.Type != "classText" || sel.Value == "" {
		return ""
	}
	return strings.TrimSpace(doc.Find("." + sel.Value).First().Text())
}

func selectorAttr(doc *goquery.Document, sel *Selector) string {
	if sel == nil || sel.Type != "attr" || sel.Selector == "" {
		return ""
	}
	v, _ := doc.Find(sel.Selector).First().Attr(sel.Attr)
	return v
}

// parseIntegral parses a price component, stripping thousands commas.
// A trailing "." is dropped: marketplace whole-price elements nest the
// decimal point as a child span, so their text reads like "19.".
func parseIntegral(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return 0, false
	}
	num, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return num, true
}

// parseScraped parses a scraped price string. A comma with no decimal
// point is taken as the decimal separator ("19,99"); otherwise commas
// are thousands separators ("1,234.56").
func parseScraped(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	if s == "" {
		return 0, false
	}
	num, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return num, true
}

// extractPrice tries the rule's structured whole+fraction selector pair,
// then its fallback regexes against the raw HTML. nil when nothing
// parses; an absent price is not an error.
func extractPrice(doc *goquery.Document, html string, src *Source) *float64 {
	if src == nil {
		return nil
	}
	if whole := selectorText(doc, src.Selectors.Whole); whole != "" {
		if wholeNum, ok := parseIntegral(whole); ok {
			var fracNum float64
			if frac := selectorText(doc, src.Selectors.Fraction); frac != "" {
				if f, ok := parseIntegral(frac); ok {
					fracNum = f / 100
				}
			}
			price := wholeNum + fracNum
			return &price
		}
	}
	for _, re := range src.fallbacks {
		if m := re.FindStringSubmatch(html); m != nil {
			if num, ok := parseScraped(m[1]); ok {
				return &num
			}
		}
	}
	return nil
}

// extractAmazonImage reads a marketplace landing image directly:
// dynamic-image JSON first key, then the high-res attribute, then src.
func extractAmazonImage(doc *goquery.Document) string {
	img := doc.Find("#landingImage").First()
	if img.Length() == 0 {
		return ""
	}
	if dyn, ok := img.Attr("data-a-dynamic-image"); ok {
		if key := firstJSONKey(dyn); key != "" {
			return key
		}
	}
	if hires, ok := img.Attr("data-old-hires"); ok && hires != "" {
		return hires
	}
	if src, ok := img.Attr("src"); ok {
		return src
	}
	return ""
}

// extractImage prefers the built-in marketplace extractor, then walks
// the rule's generic chain: direct attribute, dynamic-image JSON key,
// alternate attribute. Empty when nothing matches.
func extractImage(doc *goquery.Document, src *Source) string {
	if image := extractAmazonImage(doc); image != "" {
		return image
	}
	if src == nil {
		return ""
	}
	if image := selectorAttr(doc, src.Selectors.Image); image != "" {
		return image
	}
	if src.Selectors.DynamicImage != nil && src.Selectors.DynamicImage.Parse == "jsonKey" {
		if raw := selectorAttr(doc, src.Selectors.DynamicImage); raw != "" {
			if key := firstJSONKey(raw); key != "" {
				return key
			}
		}
	}
	return selectorAttr(doc, src.Selectors.AltImage)
}

// firstJSONKey returns the first key of a JSON object in document order.
// Key order matters here (the dynamic-image map lists the preferred URL
// first), so the object is read with a token decoder instead of a map.
func firstJSONKey(raw string) string {
	dec := json.NewDecoder(strings.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return ""
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return ""
	}
	tok, err = dec.Token()
	if err != nil {
		return ""
	}
	key, _ := tok.(string)
	return key
}
