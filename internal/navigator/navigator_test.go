package navigator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FranksOps/gotot/internal/dates"
	"github.com/FranksOps/gotot/internal/listing"
	"github.com/FranksOps/gotot/internal/scraper"
	"github.com/FranksOps/gotot/internal/storage"
)

const base = "https://board.test/b"

var czechMonths = [...]string{"ledna", "února", "března", "dubna", "května", "června",
	"července", "srpna", "září", "října", "listopadu", "prosince"}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var now = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func instant(y int, m time.Month, d int) dates.Instant {
	return dates.FromTime(day(y, m, d))
}

func stamp(t time.Time) string {
	return base + "?f=" + t.Format("20060102-150405")
}

func page(items []time.Time, pager ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="listing">`)
	for _, t := range items {
		fmt.Fprintf(&b, `<div class="item"><span class="permalink"><a class="date" href="#">%d. %s %d, %02d:%02d</a></span><p>post</p></div>`,
			t.Day(), czechMonths[t.Month()-1], t.Year(), t.Hour(), t.Minute())
	}
	b.WriteString(`</div><div class="pager">`)
	for _, p := range pager {
		b.WriteString(p)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func link(href, text string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, href, text)
}

// board serves canned pages and records every fetch.
type board struct {
	mu      sync.Mutex
	pages map[string]string
	gen   func(rawURL string) (string, bool)
	fail  map[string]error
	// redirect maps a requested URL to the URL the page is served from.
	redirect map[string]string
	fetched  []string
}

func (b *board) Load(_ context.Context, rawURL string) (*listing.Page, error) {
	b.mu.Lock()
	b.fetched = append(b.fetched, rawURL)
	b.mu.Unlock()

	if err, ok := b.fail[rawURL]; ok {
		return nil, err
	}
	final := rawURL
	if to, ok := b.redirect[rawURL]; ok {
		final = to
	}
	html, ok := b.pages[final]
	if !ok && b.gen != nil {
		html, ok = b.gen(final)
	}
	if !ok {
		return nil, &scraper.FetchError{Kind: scraper.KindStatus, URL: rawURL, StatusCode: 404}
	}
	return listing.NewPage(final, []byte(html))
}

type memJournal struct {
	records []*storage.HopRecord
}

func (m *memJournal) Save(_ context.Context, r *storage.HopRecord) error {
	m.records = append(m.records, r)
	return nil
}

func (m *memJournal) Query(context.Context, storage.Filter) ([]*storage.HopRecord, error) {
	return m.records, nil
}

func (m *memJournal) Close() error { return nil }

func newNav(b *board, journal storage.Backend) *Navigator {
	return New(Config{Location: time.UTC, Clock: fixedClock{now}, Journal: journal}, b, nil)
}

func assertNoRefetch(t *testing.T, fetched []string) {
	t.Helper()
	seen := map[string]bool{}
	for _, u := range fetched {
		key := normalize(u)
		if seen[key] {
			t.Errorf("page fetched twice: %s", u)
		}
		seen[key] = true
	}
}

func TestSearch_TargetOnStartPage(t *testing.T) {
	b := &board{pages: map[string]string{
		base: page([]time.Time{day(2023, 1, 15), day(2023, 1, 12), day(2023, 1, 10)},
			link(stamp(day(2022, 12, 1)), "&gt;")),
	}}

	res, err := newNav(b, nil).Search(context.Background(), base, instant(2023, 1, 12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Landed || res.URL != base || res.Hops != 0 {
		t.Errorf("expected Landed on start page with no hop, got %s %s hops=%d", res.Outcome, res.URL, res.Hops)
	}
	if len(b.fetched) != 1 {
		t.Errorf("expected one fetch, got %v", b.fetched)
	}
	if res.Page == nil || res.Page.URL != base {
		t.Errorf("expected landing page document")
	}
}

func TestSearch_InclusiveBounds(t *testing.T) {
	b := &board{pages: map[string]string{
		base: page([]time.Time{day(2023, 1, 15), day(2023, 1, 10)}),
	}}
	nav := newNav(b, nil)

	for _, target := range []dates.Instant{instant(2023, 1, 10), instant(2023, 1, 15)} {
		res, err := nav.Search(context.Background(), base, target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Outcome != Landed {
			t.Errorf("target on range edge should land, got %s", res.Outcome)
		}
	}
}

func TestSearch_PicksClosestCandidate(t *testing.T) {
	near := stamp(day(2020, 6, 1))
	far := stamp(day(2019, 1, 1))
	b := &board{pages: map[string]string{
		base: page([]time.Time{day(2023, 1, 15), day(2023, 1, 10)},
			link(far, "2019"), link(near, "2020")),
		near: page([]time.Time{day(2020, 6, 1), day(2019, 12, 1)}),
	}}

	res, err := newNav(b, nil).Search(context.Background(), base, instant(2020, 1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Landed || res.URL != near || res.Hops != 1 {
		t.Fatalf("expected Landed on %s after one hop, got %s %s hops=%d", near, res.Outcome, res.URL, res.Hops)
	}
	first := res.Steps[0]
	if first.Direction != Older || first.Next != near || first.Via != listing.SourceTimestamp {
		t.Errorf("unexpected first step %+v", first)
	}
	for _, u := range b.fetched {
		if u == far {
			t.Errorf("the farther candidate was fetched")
		}
	}
}

func TestSearch_VisitedLinkLandsOnCurrentPage(t *testing.T) {
	second := stamp(day(2022, 6, 1))
	b := &board{pages: map[string]string{
		base: page([]time.Time{day(2023, 1, 15), day(2023, 1, 10)},
			link(second, "2022")),
		// The only way on is an older link pointing back at the start page.
		second: page([]time.Time{day(2022, 6, 1), day(2022, 5, 1)},
			`<span class="older">`+link(base+"#top", "Starší")+`</span>`),
	}}

	res, err := newNav(b, nil).Search(context.Background(), base, instant(2020, 1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Landed || res.URL != second {
		t.Errorf("expected Landed on %s, got %s %s", second, res.Outcome, res.URL)
	}
	if len(b.fetched) != 2 {
		t.Errorf("expected 2 fetches, got %v", b.fetched)
	}
	assertNoRefetch(t, b.fetched)
}

func TestSearch_SelfLinkLands(t *testing.T) {
	b := &board{pages: map[string]string{
		base: page([]time.Time{day(2023, 1, 15), day(2023, 1, 10)},
			`<span class="older">`+link("#older", "Starší")+`</span>`),
	}}

	res, err := newNav(b, nil).Search(context.Background(), base, instant(2020, 1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Landed || len(b.fetched) != 1 {
		t.Errorf("expected Landed without refetch, got %s after %v", res.Outcome, b.fetched)
	}
}

func TestSearch_ClampsFutureTarget(t *testing.T) {
	b := &board{pages: map[string]string{
		base: page([]time.Time{now, day(2023, 12, 20)}),
	}}

	res, err := newNav(b, nil).Search(context.Background(), base, instant(2030, 1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Clamped || res.Target != dates.FromTime(now) {
		t.Errorf("expected target clamped to now, got clamped=%v target=%v", res.Clamped, res.Target)
	}
	if res.Outcome != Landed {
		t.Errorf("expected Landed, got %s", res.Outcome)
	}
}

func TestSearch_DeadEndNewer(t *testing.T) {
	b := &board{pages: map[string]string{
		base: page([]time.Time{day(2023, 1, 15), day(2023, 1, 10)},
			link(stamp(day(2022, 12, 1)), "&gt;"),
			`<span class="older">`+link(stamp(day(2022, 12, 1)), "Starší")+`</span>`),
	}}

	res, err := newNav(b, nil).Search(context.Background(), base, instant(2023, 6, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != DeadEnd || res.URL != base || res.Hops != 0 {
		t.Errorf("expected DeadEnd on start page, got %s %s hops=%d", res.Outcome, res.URL, res.Hops)
	}
	if res.Steps[0].Direction != Newer {
		t.Errorf("expected newer direction, got %q", res.Steps[0].Direction)
	}
}

func TestSearch_EmptyPageLands(t *testing.T) {
	b := &board{pages: map[string]string{
		base: `<html><body><div class="listing"><div class="item"><a class="date">nonsense</a></div></div></body></html>`,
	}}

	res, err := newNav(b, nil).Search(context.Background(), base, instant(2020, 1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Landed || res.Steps[0].HasRange {
		t.Errorf("expected Landed on empty range, got %s", res.Outcome)
	}
	if res.Steps[0].Items != 1 {
		t.Errorf("expected one item counted, got %d", res.Steps[0].Items)
	}
}

func TestSearch_MonotonicFilter(t *testing.T) {
	inside := stamp(day(2023, 1, 14))
	beyond := stamp(day(2023, 12, 30))
	b := &board{pages: map[string]string{
		base: page([]time.Time{day(2023, 1, 15), day(2023, 1, 10)},
			link(inside, "a"), link(beyond, "b")),
		beyond: page([]time.Time{day(2023, 12, 30), day(2023, 5, 1)}),
	}}

	// The in-range link is closer to the target but would not leave the page.
	res, err := newNav(b, nil).Search(context.Background(), base, instant(2023, 6, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Steps[0].Next != beyond {
		t.Errorf("expected hop to %s, got %s", beyond, res.Steps[0].Next)
	}
	if res.Outcome != Landed || res.URL != beyond {
		t.Errorf("expected Landed on %s, got %s %s", beyond, res.Outcome, res.URL)
	}
}

func TestSearch_NewestShortcut(t *testing.T) {
	b := &board{pages: map[string]string{
		base + "?f=20200105-000000": page([]time.Time{day(2020, 1, 5), day(2020, 1, 1)},
			link(stamp(day(2020, 1, 10)), "&lt;"),
			link(base, "Nejnovější")),
		base: page([]time.Time{now, day(2023, 12, 25)}),
	}}

	res, err := newNav(b, nil).Search(context.Background(), base+"?f=20200105-000000", instant(2023, 12, 31))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Steps[0].Via != listing.SourceNewest || res.URL != base {
		t.Errorf("expected newest shortcut to %s, got %+v", base, res.Steps[0])
	}
}

func TestSearch_RedirectedPageCountsAsVisited(t *testing.T) {
	const (
		start = "https://okoun.test/b"
		moved = "https://www.okoun.test/b"
		older = "https://www.okoun.test/b?f=20220601-000000"
	)
	b := &board{
		redirect: map[string]string{start: moved},
		pages: map[string]string{
			moved: page([]time.Time{day(2023, 1, 15), day(2023, 1, 10)},
				link("/b?f=20220601-000000", "Starší")),
			older: page([]time.Time{day(2022, 6, 1), day(2022, 5, 1)},
				link("/b", "Nejnovější")),
		},
	}

	// The target falls between the two pages, so the second page points
	// back at the newest page, which is where the start URL redirected.
	res, err := newNav(b, nil).Search(context.Background(), start, instant(2022, 12, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Landed || res.URL != older {
		t.Errorf("expected Landed on %s, got %s %s", older, res.Outcome, res.URL)
	}
	if len(b.fetched) != 2 {
		t.Errorf("expected two fetches, got %v", b.fetched)
	}
	if last := res.Steps[len(res.Steps)-1]; last.Reason != "link already visited" {
		t.Errorf("expected the newest link to be recognised as visited, got %q", last.Reason)
	}
}

func TestSearch_FallbackWhenNoDatedLink(t *testing.T) {
	older := base + "?page=2"
	b := &board{pages: map[string]string{
		base:  page([]time.Time{day(2023, 1, 15), day(2023, 1, 10)}, link(older, "&gt;")),
		older: page([]time.Time{day(2023, 1, 9), day(2023, 1, 1)}),
	}}

	res, err := newNav(b, nil).Search(context.Background(), base, instant(2023, 1, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Steps[0].Via != listing.SourceFallback || res.URL != older || res.Outcome != Landed {
		t.Errorf("expected fallback hop to %s, got %+v", older, res.Steps[0])
	}
}

func TestSearch_HopLimit(t *testing.T) {
	// Every page claims the same range and links to a fresh, equally useless page.
	b := &board{gen: func(rawURL string) (string, bool) {
		var n int
		if i := strings.Index(rawURL, "&n="); i >= 0 {
			fmt.Sscanf(rawURL[i+3:], "%d", &n)
		}
		next := fmt.Sprintf("%s?f=20200101-000000&n=%d", base, n+1)
		return page([]time.Time{day(2023, 1, 15), day(2023, 1, 10)}, link(next, "&gt;")), true
	}}

	res, err := newNav(b, nil).Search(context.Background(), base, instant(2020, 1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Aborted {
		t.Fatalf("expected Aborted, got %s", res.Outcome)
	}
	if res.Hops != MaxHops {
		t.Errorf("expected %d hops, got %d", MaxHops, res.Hops)
	}
	if len(b.fetched) != MaxHops {
		t.Errorf("expected %d fetches, got %d", MaxHops, len(b.fetched))
	}
	if last := b.fetched[len(b.fetched)-1]; res.URL != last {
		t.Errorf("expected landing on last fetched page %s, got %s", last, res.URL)
	}
	assertNoRefetch(t, b.fetched)
}

func TestSearch_CycleTerminates(t *testing.T) {
	a := stamp(day(2022, 1, 1))
	bURL := stamp(day(2021, 1, 1))
	// Both pages lie about each other: each claims the other is older.
	b := &board{pages: map[string]string{
		base: page([]time.Time{day(2023, 1, 15)}, link(a, "a")),
		a:    page([]time.Time{day(2023, 1, 14)}, link(bURL, "b")),
		bURL: page([]time.Time{day(2023, 1, 13)}, link(a+"#x", "a"), link(base+"?f=20000101-000000", "start")),
		base + "?f=20000101-000000": page([]time.Time{day(2023, 1, 12)}, link(bURL, "b")),
	}}

	res, err := newNav(b, nil).Search(context.Background(), base, instant(2000, 1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome == Scanning || res.Hops > MaxHops {
		t.Fatalf("search did not terminate properly: %s hops=%d", res.Outcome, res.Hops)
	}
	assertNoRefetch(t, b.fetched)
}

func TestSearch_FetchErrorStops(t *testing.T) {
	next := stamp(day(2020, 6, 1))
	fetchErr := &scraper.FetchError{Kind: scraper.KindNetwork, URL: next, Cause: errors.New("connection reset")}
	b := &board{
		pages: map[string]string{base: page([]time.Time{day(2023, 1, 15)}, link(next, "&gt;"))},
		fail:  map[string]error{next: fetchErr},
	}
	journal := &memJournal{}

	res, err := newNav(b, journal).Search(context.Background(), base, instant(2020, 1, 1))
	if res != nil {
		t.Errorf("expected no result on fetch error")
	}
	fe, ok := scraper.AsFetchError(err)
	if !ok || fe != fetchErr {
		t.Fatalf("expected the loader's FetchError, got %v", err)
	}
	if len(b.fetched) != 2 {
		t.Errorf("expected no retry, got fetches %v", b.fetched)
	}

	if len(journal.records) != 2 {
		t.Fatalf("expected 2 journal records, got %d", len(journal.records))
	}
	last := journal.records[1]
	if last.Outcome != storage.OutcomeError || last.URL != next || last.Error == "" {
		t.Errorf("unexpected error record %+v", last)
	}
}

func TestSearch_Journal(t *testing.T) {
	near := stamp(day(2020, 6, 1))
	b := &board{pages: map[string]string{
		base: page([]time.Time{day(2023, 1, 15), day(2023, 1, 10)}, link(near, "&gt;")),
		near: page([]time.Time{day(2020, 6, 1), day(2019, 12, 1)}),
	}}
	journal := &memJournal{}

	res, err := newNav(b, journal).Search(context.Background(), base, instant(2020, 1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(journal.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(journal.records))
	}

	first, last := journal.records[0], journal.records[1]
	if first.SearchID != res.SearchID || last.SearchID != res.SearchID {
		t.Errorf("records not tied to search %s", res.SearchID)
	}
	if first.Outcome != storage.OutcomeScanning || first.Next != near || first.Direction != "older" || first.Via != "timestamp" {
		t.Errorf("unexpected first record %+v", first)
	}
	if !first.HasRange || first.Oldest != int64(instant(2023, 1, 10)) || first.Newest != int64(instant(2023, 1, 15)) {
		t.Errorf("unexpected range in first record %+v", first)
	}
	if last.Outcome != storage.OutcomeLanded || last.Hop != 1 || !last.Terminal() {
		t.Errorf("unexpected last record %+v", last)
	}
}

func TestSelectCandidate_TiesKeepDocumentOrder(t *testing.T) {
	r := listing.Range{Oldest: instant(2023, 1, 10), Newest: instant(2023, 1, 15)}
	target := instant(2020, 1, 10)
	cands := []listing.Candidate{
		{URL: "unknown"},
		{URL: "first", Instant: instant(2020, 1, 15), Known: true, Source: listing.SourceTimestamp},
		{URL: "second", Instant: instant(2020, 1, 5), Known: true, Source: listing.SourceTimestamp},
	}

	got, _, ok := selectCandidate(cands, r, Older, target)
	if !ok || got != "first" {
		t.Errorf("expected first of tied candidates, got %q", got)
	}

	if _, _, ok := selectCandidate(cands[:1], r, Older, target); ok {
		t.Error("candidates without instants must not be selected")
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		base + "#top":   base,
		base + "?f=1#x": base + "?f=1",
		base:            base,
	}
	for in, want := range tests {
		if got := normalize(in); got != want {
			t.Errorf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
