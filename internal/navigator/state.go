package navigator

import (
	"net/url"
	"strings"

	"github.com/FranksOps/gotot/internal/dates"
)

// MaxHops caps how many links a single search follows.
const MaxHops = 40

// Outcome is the state of a search.
type Outcome int

const (
	Scanning Outcome = iota
	Landed
	Aborted
	DeadEnd
)

func (o Outcome) String() string {
	switch o {
	case Scanning:
		return "scanning"
	case Landed:
		return "landed"
	case Aborted:
		return "aborted"
	case DeadEnd:
		return "dead_end"
	default:
		return "unknown"
	}
}

// Direction is the way through the board a search has to move.
type Direction string

const (
	Here  Direction = ""
	Older Direction = "older"
	Newer Direction = "newer"
)

// State is the mutable part of one search. It belongs to the goroutine
// running the search.
type State struct {
	CurrentURL string
	Target     dates.Instant
	Visited    map[string]struct{}
	Hops       int
	Outcome    Outcome
}

// NewState starts a search at startURL. The start page counts as visited.
func NewState(startURL string, target dates.Instant) *State {
	s := &State{
		CurrentURL: startURL,
		Target:     target,
		Visited:    make(map[string]struct{}),
		Outcome:    Scanning,
	}
	s.Visited[normalize(startURL)] = struct{}{}
	return s
}

// Seen reports whether rawURL was visited or is the current page.
func (s *State) Seen(rawURL string) bool {
	key := normalize(rawURL)
	if _, ok := s.Visited[key]; ok {
		return true
	}
	return key == normalize(s.CurrentURL)
}

// Loaded records the URL a fetch ended up at after redirects, so links back
// to it count as visited.
func (s *State) Loaded(finalURL string) {
	if finalURL != "" {
		s.Visited[normalize(finalURL)] = struct{}{}
	}
}

// Advance moves the search to next. It reports false once the hop cap is hit,
// in which case the search is Aborted and CurrentURL is left on the last
// fetched page.
func (s *State) Advance(next string) bool {
	s.Visited[normalize(next)] = struct{}{}
	s.Hops++
	if s.Hops >= MaxHops {
		s.Outcome = Aborted
		return false
	}
	s.CurrentURL = next
	return true
}

// normalize drops the fragment, which never changes the fetched document.
func normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.IndexByte(rawURL, '#'); i >= 0 {
			return rawURL[:i]
		}
		return rawURL
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
