package server

import "testing"

func TestNegotiate(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"", TypeHTMLv1, true},
		{"*/*", TypeHTMLv1, true},
		{"text/html", TypeHTML, true},
		{TypeJSONv1, TypeJSONv1, true},
		{TypeJSONLatest, TypeJSONLatest, true},
		{"application/vnd.pypi.simple.v1+json, application/vnd.pypi.simple.v1+html; q=0.1, text/html; q=0.01", TypeJSONv1, true},
		{"text/html;q=0.2, application/vnd.pypi.simple.v1+json;q=0.9", TypeJSONv1, true},
		{"application/json, */*;q=0.1", TypeHTMLv1, true},
		{"application/json", "", false},
		{"text/html;q=0", "", false},
		{"text/html;q=bogus, application/vnd.pypi.simple.v1+html", TypeHTMLv1, true},
	}
	for _, tt := range tests {
		got, ok := Negotiate(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Negotiate(%q) = (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
