package listing

import (
	"strings"

	"github.com/FranksOps/gotot/internal/dates"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// Source tells how the instant of a Candidate was inferred.
type Source string

const (
	SourceUnknown   Source = ""
	SourceTimestamp Source = "timestamp"
	SourceNewest    Source = "newest"
	SourceFallback  Source = "fallback"
)

// Labels the board prints on its pager.
const (
	LabelNewest = "Nejnovější"
	LabelOlder  = "Starší"
	LabelNewer  = "Novější"
	GlyphOlder  = ">"
	GlyphNewer  = "<"
	ClassNewest = "newest"
)

// Candidate is a pager link and, when it could be inferred, the instant it
// points to.
type Candidate struct {
	URL     string
	Instant dates.Instant
	Known   bool
	Source  Source
}

// anchor is a pager link as found in the document.
type anchor struct {
	href string
	text string
	sel  *goquery.Selection
}

// resolver infers the instant a pager anchor leads to.
type resolver func(a anchor) (dates.Instant, Source, bool)

func (e Extractor) resolvers(now dates.Instant) []resolver {
	return []resolver{
		func(a anchor) (dates.Instant, Source, bool) {
			ts, ok := dates.ParseURLInstant(a.href, e.Location)
			return ts, SourceTimestamp, ok
		},
		func(a anchor) (dates.Instant, Source, bool) {
			if a.sel.HasClass(ClassNewest) || strings.Contains(a.text, LabelNewest) {
				return now, SourceNewest, true
			}
			return dates.Unparsed, SourceUnknown, false
		},
	}
}

// ExtractCandidates lists every pager link in document order. now is the
// instant assigned to the "most recent page" shortcut.
func (e Extractor) ExtractCandidates(p *Page, now dates.Instant) []Candidate {
	resolvers := e.resolvers(now)

	var out []Candidate
	for _, a := range pagerAnchors(p) {
		c := Candidate{URL: a.href}
		for _, resolve := range resolvers {
			if ts, src, ok := resolve(a); ok {
				c.Instant, c.Source, c.Known = ts, src, true
				break
			}
		}
		out = append(out, c)
	}
	return out
}

func pagerAnchors(p *Page) []anchor {
	var out []anchor
	p.Doc.Find(PagerSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		resolved, ok := p.Resolve(href)
		if !ok {
			return
		}
		out = append(out, anchor{href: resolved, text: norm.NFC.String(s.Text()), sel: s})
	})
	return out
}

// matcher picks a directional link out of a page.
type matcher func(p *Page, anchors []anchor) (string, bool)

func bySelector(selector string) matcher {
	return func(p *Page, _ []anchor) (string, bool) {
		href, ok := p.Doc.Find(selector).First().Attr("href")
		if !ok {
			return "", false
		}
		return p.Resolve(href)
	}
}

func byLabel(label, glyph string) matcher {
	return func(_ *Page, anchors []anchor) (string, bool) {
		for _, a := range anchors {
			if strings.Contains(a.text, label) || strings.TrimSpace(a.text) == glyph {
				return a.href, true
			}
		}
		return "", false
	}
}

var (
	olderMatchers = []matcher{bySelector(".pager .older a"), byLabel(LabelOlder, GlyphOlder)}
	newerMatchers = []matcher{bySelector(".pager .newer a"), byLabel(LabelNewer, GlyphNewer)}
)

func firstMatch(p *Page, matchers []matcher) (string, bool) {
	anchors := pagerAnchors(p)
	for _, m := range matchers {
		if href, ok := m(p, anchors); ok {
			return href, true
		}
	}
	return "", false
}

// FindOlderFallback returns the explicit "older page" link, if any.
func FindOlderFallback(p *Page) (string, bool) {
	return firstMatch(p, olderMatchers)
}

// FindNewerFallback returns the explicit "newer page" link, if any.
func FindNewerFallback(p *Page) (string, bool) {
	return firstMatch(p, newerMatchers)
}
