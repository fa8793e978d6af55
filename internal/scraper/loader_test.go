package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const boardPage = `<html><body>
<div class="listing">
  <div class="item"><span class="permalink"><a class="date">5. října 2022, 10:00</a></span></div>
</div>
<div class="pager"><a href="/boards/test?f=20221001-000000">&gt;</a></div>
</body></html>`

func newBoardServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	mux.HandleFunc("/boards/test", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(boardPage))
	})
	mux.HandleFunc("/private/board", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(boardPage))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	mux.HandleFunc("/challenge", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-DataDome", "protected")
		w.WriteHeader(http.StatusForbidden)
	})
	return httptest.NewServer(mux)
}

func TestLoader_Load(t *testing.T) {
	ts := newBoardServer()
	defer ts.Close()

	loader := NewLoader(newTestFetcher(t, FetchConfig{}), nil, nil)
	page, err := loader.Load(context.Background(), ts.URL+"/boards/test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.URL != ts.URL+"/boards/test" {
		t.Errorf("unexpected page url %s", page.URL)
	}
	if n := page.Doc.Find(".listing .item").Length(); n != 1 {
		t.Errorf("expected 1 item, got %d", n)
	}
}

func TestLoader_Errors(t *testing.T) {
	ts := newBoardServer()
	defer ts.Close()

	fetcher := newTestFetcher(t, FetchConfig{})
	loader := NewLoader(fetcher, NewRobotsChecker(fetcher, "", nil), nil)

	tests := []struct {
		path   string
		kind   ErrorKind
		status int
	}{
		{"/private/board", KindBlocked, 0},
		{"/gone", KindStatus, http.StatusGone},
		{"/challenge", KindChallenge, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			page, err := loader.Load(context.Background(), ts.URL+tt.path)
			if page != nil {
				t.Errorf("expected no page")
			}
			fe, ok := AsFetchError(err)
			if !ok {
				t.Fatalf("expected *FetchError, got %v", err)
			}
			if fe.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, fe.Kind)
			}
			if fe.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, fe.StatusCode)
			}
			if fe.UserMessage() != "Chyba při hledání data." {
				t.Errorf("unexpected user message %q", fe.UserMessage())
			}
		})
	}
}

func TestFetchError_Message(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&FetchError{Kind: KindNetwork, URL: "https://www.okoun.cz/boards/test", Cause: cause})

	if !errors.Is(err, cause) {
		t.Error("expected cause to unwrap")
	}
	want := "network error fetching https://www.okoun.cz/boards/test: connection refused"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}

	challenge := &FetchError{Kind: KindChallenge, URL: "u", StatusCode: 403, Source: "Akamai"}
	if got := challenge.Error(); got != "challenge error fetching u: Akamai challenge (status 403)" {
		t.Errorf("unexpected challenge message %q", got)
	}
}
