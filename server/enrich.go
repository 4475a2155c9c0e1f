package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const fetchBodyLimit = 10 << 20

// Enricher fills missing price/image data on wishes by scraping their
// product link. Enrichment is best effort: every failure is logged and
// swallowed, and user-supplied values are never overwritten.
type Enricher struct {
	store   *Store
	sources []*Source
	client  *http.Client
	log     *slog.Logger
}

func NewEnricher(store *Store, sources []*Source, timeout time.Duration, log *slog.Logger) *Enricher {
	return &Enricher{
		store:   store,
		sources: sources,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// fetch downloads a page, returning the body and the final URL after
// redirects. The body read is bounded so a hostile page cannot exhaust
// memory.
func (e *Enricher) fetch(ctx context.Context, link string) (string, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := e.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
	if err != nil {
		return "", nil, err
	}
	return string(body), resp.Request.URL, nil
}

// EnrichWish runs the out-of-band enrichment for one wish: fetch the
// linked page, extract price/image per the matching source rule, and
// fill only fields that are still empty. Running it again on an
// already-enriched wish changes nothing.
func (e *Enricher) EnrichWish(code, wishID string) {
	board, err := e.store.BoardByCode(code)
	if err != nil {
		return
	}
	var link string
	for i := range board.Wishes {
		if board.Wishes[i].ID == wishID {
			link = board.Wishes[i].Link
			break
		}
	}
	if link == "" {
		return
	}
	u, err := url.Parse(link)
	if err != nil {
		return
	}
	src := matchSource(u.Hostname(), e.sources)
	if src == nil {
		return
	}

	html, _, err := e.fetch(context.Background(), link)
	if err != nil {
		e.log.Error("enrich fetch", "code", code, "wish", wishID, "err", err)
		return
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.log.Error("enrich parse", "code", code, "wish", wishID, "err", err)
		return
	}
	price := extractPrice(doc, html, src)
	image := extractImage(doc, src)
	if price == nil && image == "" {
		return
	}

	_, err = e.store.MutateWish(code, wishID, func(w *Wish) (bool, error) {
		changed := false
		if price != nil && w.Price == nil {
			w.Price = price
			changed = true
		}
		if image != "" && w.Image == "" {
			w.Image = image
			changed = true
		}
		return changed, nil
	})
	if err != nil {
		e.log.Error("enrich apply", "code", code, "wish", wishID, "err", err)
	}
}

// Last-resort price patterns for the preview endpoint, applied when the
// matched rule (or the absence of one) yields nothing.
var genericPriceRes = []*regexp.Regexp{
	regexp.MustCompile(`"price"\s*:\s*"([0-9.,]+)"`),
	regexp.MustCompile(`price":"([0-9.,]+)"`),
	regexp.MustCompile(`\$(\d+[\d.,]*)`),
}

type Preview struct {
	Price *float64 `json:"price"`
	Image *string  `json:"image"`
}

// Preview extracts price and image for a single link synchronously,
// without persisting anything.
func (e *Enricher) Preview(ctx context.Context, link string) (Preview, error) {
	html, finalURL, err := e.fetch(ctx, link)
	if err != nil {
		return Preview{}, err
	}
	hostname := ""
	if finalURL != nil {
		hostname = finalURL.Hostname()
	} else if u, err := url.Parse(link); err == nil {
		hostname = u.Hostname()
	}
	src := matchSource(hostname, e.sources)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Preview{}, err
	}
	var out Preview
	out.Price = extractPrice(doc, html, src)
	if out.Price == nil {
		for _, re := range genericPriceRes {
			if m := re.FindStringSubmatch(html); m != nil {
				if num, ok := parseScraped(m[1]); ok {
					out.Price = &num
					break
				}
			}
		}
	}
	if image := extractImage(doc, src); image != "" {
		out.Image = &image
	}
	return out, nil
}
