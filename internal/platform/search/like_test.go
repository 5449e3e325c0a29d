package search

import "testing"

func TestMatchLike(t *testing.T) {
	tests := []struct {
		input      string
		pattern    string
		ignoreCase bool
		want       bool
	}{
		{"bruce", "br*ce", false, true},
		{"bruce", "?r?ce", false, true},
		{"Bruce", "?r?ce", false, true},
		{"Bruce", "?R?ce", false, false},
		{"Bruce", "?R?ce", true, true},
		{"Bruce", "B*e", false, true},
		{"Bruce", "B?e", false, false},
		{"Bruce", "*,*", false, false},
		{"Bruce,Dick", "*,*", false, true},
		{"bruce", "Bruce", false, false},
		{"bruce", "Bruce", true, true},
		{"Bruce", "*", false, true},
		{"", "*", false, true},
		{"", "?", false, false},
		{"Bruce", "Br**ce", false, true},
		{"a*b", `a\*b`, false, true},
		{"axb", `a\*b`, false, false},
		{"what?", `what\?`, false, true},
		{"Bruce", `Bruce\`, false, false},
		{"Élodie", "é*", true, true},
	}
	for _, tt := range tests {
		if got := MatchLike(tt.input, tt.pattern, tt.ignoreCase); got != tt.want {
			t.Errorf("MatchLike(%q, %q, %v) = %v, want %v", tt.input, tt.pattern, tt.ignoreCase, got, tt.want)
		}
	}
}

func TestSQLLikePattern(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"Br*ce", "Br%ce"},
		{"?r?ce", "_r_ce"},
		{"100%*", `100\%%`},
		{"snake_case*", `snake\_case%`},
		{`a\*b`, "a*b"},
		{`back\\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		got, err := sqlLikePattern(tt.pattern)
		if err != nil {
			t.Fatalf("sqlLikePattern(%q) error: %v", tt.pattern, err)
		}
		if got != tt.want {
			t.Errorf("sqlLikePattern(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}
