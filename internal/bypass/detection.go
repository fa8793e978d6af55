// Package bypass recognises bot-protection challenge pages, which must not be
// mistaken for listing pages.
package bypass

import (
	"bytes"
	"net/http"
	"slices"
	"strings"
)

// Signature describes how one bot protection vendor shows up in a response.
type Signature struct {
	Source   string
	Statuses []int
	// Server header substrings, lower case.
	Servers []string
	// Header names whose presence alone is conclusive.
	Headers []string
	// Any one of BodyAny or all of BodyAll identifies the vendor.
	BodyAny [][]byte
	BodyAll [][]byte
}

// DefaultSignatures returns the standard list of bot protection signatures.
func DefaultSignatures() []Signature {
	return []Signature{
		{
			Source:   "Cloudflare",
			Statuses: []int{http.StatusForbidden, http.StatusServiceUnavailable},
			Servers:  []string{"cloudflare"},
			BodyAny: [][]byte{
				[]byte("cf-browser-verification"),
				[]byte("cloudflare-nginx"),
				[]byte("cf-turnstile"),
				[]byte("Attention Required! | Cloudflare"),
			},
		},
		{
			Source:   "Akamai",
			Statuses: []int{http.StatusForbidden},
			Servers:  []string{"akamai"},
			BodyAll:  [][]byte{[]byte("Reference #"), []byte("Access Denied")},
		},
		{
			Source:   "DataDome",
			Statuses: []int{http.StatusForbidden},
			Servers:  []string{"datadome"},
			Headers:  []string{"X-DataDome", "X-DataDome-Response"},
			BodyAny:  [][]byte{[]byte("geo.captcha-delivery.com"), []byte("datadome")},
		},
		{
			Source:   "PerimeterX",
			Statuses: []int{http.StatusForbidden},
			Headers:  []string{"X-Px-Captcha"},
			BodyAny: [][]byte{
				[]byte("client.perimeterx.net"),
				[]byte("px-captcha"),
				[]byte("_pxBlock"),
			},
		},
	}
}

// Match reports whether the response carries this signature.
func (s Signature) Match(status int, headers http.Header, body []byte) bool {
	if !slices.Contains(s.Statuses, status) {
		return false
	}

	server := strings.ToLower(headers.Get("Server"))
	for _, sv := range s.Servers {
		if server != "" && strings.Contains(server, sv) {
			return true
		}
	}
	for _, h := range s.Headers {
		if headers.Get(h) != "" {
			return true
		}
	}
	for _, marker := range s.BodyAny {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	if len(s.BodyAll) == 0 {
		return false
	}
	for _, marker := range s.BodyAll {
		if !bytes.Contains(body, marker) {
			return false
		}
	}
	return true
}

// Analyze runs the response through signatures in order and returns the
// source of the first one that matches.
func Analyze(status int, headers http.Header, body []byte, signatures []Signature) (bool, string) {
	for _, s := range signatures {
		if s.Match(status, headers, body) {
			return true, s.Source
		}
	}
	return false, ""
}
