package server

import (
	"slices"
	"strconv"
	"strings"
)

// Content types of the simple repository API.
const (
	TypeJSONv1     = "application/vnd.pypi.simple.v1+json"
	TypeJSONLatest = "application/vnd.pypi.simple.latest+json"
	TypeHTMLv1     = "application/vnd.pypi.simple.v1+html"
	TypeHTML       = "text/html"
)

var servable = []string{TypeJSONv1, TypeJSONLatest, TypeHTMLv1, TypeHTML}

type mediaRange struct {
	mime string
	q    float64
}

// Negotiate picks the response type for an Accept header. An empty header
// yields the v1 HTML type for PEP 503 clients, as does a header whose only
// acceptable match is */*. Media ranges without a q parameter have q=1;
// ties keep header order. ok is false when nothing servable is acceptable.
func Negotiate(header string) (contentType string, ok bool) {
	if strings.TrimSpace(header) == "" {
		return TypeHTMLv1, true
	}

	var ranges []mediaRange
	for _, opt := range strings.Split(header, ",") {
		if r, ok := parseMediaRange(opt); ok {
			ranges = append(ranges, r)
		}
	}
	slices.SortStableFunc(ranges, func(a, b mediaRange) int {
		switch {
		case a.q > b.q:
			return -1
		case a.q < b.q:
			return 1
		}
		return 0
	})

	acceptsAll := false
	for _, r := range ranges {
		if r.q <= 0 {
			continue
		}
		if r.mime == "*/*" {
			acceptsAll = true
		}
		if slices.Contains(servable, r.mime) {
			return r.mime, true
		}
	}
	if acceptsAll {
		return TypeHTMLv1, true
	}
	return "", false
}

func parseMediaRange(opt string) (mediaRange, bool) {
	mime, params, _ := strings.Cut(opt, ";")
	r := mediaRange{mime: strings.ToLower(strings.TrimSpace(mime)), q: 1}
	if r.mime == "" {
		return r, false
	}
	for _, p := range strings.Split(params, ";") {
		k, v, found := strings.Cut(strings.TrimSpace(p), "=")
		if !found || strings.TrimSpace(k) != "q" {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || q < 0 || q > 1 {
			return r, false
		}
		r.q = q
	}
	return r, true
}

func isJSON(contentType string) bool {
	return contentType == TypeJSONv1 || contentType == TypeJSONLatest
}
