package listing

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/gotot/internal/dates"
	"github.com/PuerkitoBio/goquery"
)

// Selectors of the board page structure.
const (
	ItemSelector   = ".listing .item"
	DateSelector   = ".permalink a.date"
	PagerSelector  = ".pager a"
	ListingSection = ".listing"
)

// Page is a fetched listing document together with the URL it was loaded from.
type Page struct {
	URL  string
	Doc  *goquery.Document
	base *url.URL
}

// NewPage parses body as HTML. rawURL is used to resolve relative links.
func NewPage(rawURL string, body []byte) (*Page, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	return &Page{URL: rawURL, Doc: doc, base: base}, nil
}

// Resolve turns href into an absolute URL relative to the page.
func (p *Page) Resolve(href string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	return p.base.ResolveReference(u).String(), true
}

// Range is the span of instants covered by the items of a page.
type Range struct {
	Oldest dates.Instant
	Newest dates.Instant
}

// Contains reports whether ts lies within the range, both ends inclusive.
func (r Range) Contains(ts dates.Instant) bool {
	return ts >= r.Oldest && ts <= r.Newest
}

// Extractor reads ranges and navigation links out of listing pages.
type Extractor struct {
	// Location used for the board's local calendar fields. Nil means time.Local.
	Location *time.Location
}

// ExtractRange folds the dates of all listing items into a Range. The boolean
// is false when no item carried a parsable date.
func (e Extractor) ExtractRange(p *Page) (Range, bool) {
	var r Range
	found := false

	p.Doc.Find(ItemSelector).Each(func(_ int, item *goquery.Selection) {
		el := item.Find(DateSelector).First()
		if el.Length() == 0 {
			return
		}
		ts := dates.ParseLocalizedDate(strings.TrimSpace(el.Text()), e.Location)
		if ts == dates.Unparsed {
			return
		}
		if !found {
			r = Range{Oldest: ts, Newest: ts}
			found = true
			return
		}
		if ts < r.Oldest {
			r.Oldest = ts
		}
		if ts > r.Newest {
			r.Newest = ts
		}
	})

	return r, found
}

// Items returns the number of listing items on the page, parsable or not.
func (e Extractor) Items(p *Page) int {
	return p.Doc.Find(ItemSelector).Length()
}

// ListingHTML returns the outer HTML of the listing section, or "" if absent.
func ListingHTML(p *Page) string {
	sel := p.Doc.Find(ListingSection).First()
	if sel.Length() == 0 {
		return ""
	}
	html, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	return html
}
