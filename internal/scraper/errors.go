package scraper

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes why a listing page could not be obtained.
type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"   // no response: DNS, TLS, timeout, cancellation
	KindStatus    ErrorKind = "status"    // HTTP status >= 400
	KindChallenge ErrorKind = "challenge" // bot protection page instead of the listing
	KindBlocked   ErrorKind = "blocked"   // disallowed by robots.txt
	KindParse     ErrorKind = "parse"     // body is not parseable HTML
)

// searchFailed is shown to the user whatever the kind.
const searchFailed = "Chyba při hledání data."

// FetchError is returned when a page in the scan could not be loaded. A scan
// never retries, so any FetchError ends it.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	// Source names the bot protection vendor for KindChallenge.
	Source string
	Cause  error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s error fetching %s", e.Kind, e.URL)
	switch {
	case e.Kind == KindChallenge && e.Source != "":
		msg += fmt.Sprintf(": %s challenge (status %d)", e.Source, e.StatusCode)
	case e.StatusCode != 0:
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the localized message for the end user.
func (e *FetchError) UserMessage() string {
	return searchFailed
}

// AsFetchError unwraps err to a *FetchError if it carries one.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
