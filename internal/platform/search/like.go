package search

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	literal tokenKind = iota
	anyOne            // ?
	anyRun            // *
)

type token struct {
	kind tokenKind
	r    rune
}

// tokenize splits a wildcard pattern, resolving backslash escapes.
func tokenize(pattern string) ([]token, error) {
	runes := []rune(pattern)
	toks := make([]token, 0, len(runes))
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; r {
		case '\\':
			if i+1 == len(runes) {
				return nil, fmt.Errorf("%w: dangling escape in %q", ErrInvalidCriterion, pattern)
			}
			i++
			toks = append(toks, token{kind: literal, r: runes[i]})
		case '*':
			// consecutive stars are one star
			if n := len(toks); n > 0 && toks[n-1].kind == anyRun {
				continue
			}
			toks = append(toks, token{kind: anyRun})
		case '?':
			toks = append(toks, token{kind: anyOne})
		default:
			toks = append(toks, token{kind: literal, r: r})
		}
	}
	return toks, nil
}

// MatchLike reports whether input matches the wildcard pattern: * matches any
// run of characters (including none), ? exactly one. A malformed pattern
// matches nothing.
func MatchLike(input, pattern string, ignoreCase bool) bool {
	toks, err := tokenize(pattern)
	if err != nil {
		return false
	}
	return matchTokens([]rune(input), toks, ignoreCase)
}

func matchTokens(in []rune, toks []token, ignoreCase bool) bool {
	eq := func(a, b rune) bool {
		if ignoreCase {
			return unicode.ToLower(a) == unicode.ToLower(b)
		}
		return a == b
	}

	// greedy matching with a single backtrack point on the last star
	i, t := 0, 0
	star, mark := -1, 0
	for i < len(in) {
		switch {
		case t < len(toks) && toks[t].kind == anyRun:
			star, mark = t, i
			t++
		case t < len(toks) && (toks[t].kind == anyOne || eq(toks[t].r, in[i])):
			i++
			t++
		case star >= 0:
			mark++
			i, t = mark, star+1
		default:
			return false
		}
	}
	for t < len(toks) && toks[t].kind == anyRun {
		t++
	}
	return t == len(toks)
}

// patternString serializes tokens back to the criteria syntax.
func patternString(toks []token) string {
	var b strings.Builder
	for _, tk := range toks {
		switch tk.kind {
		case anyOne:
			b.WriteByte('?')
		case anyRun:
			b.WriteByte('*')
		default:
			if tk.r == '*' || tk.r == '?' || tk.r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(tk.r)
		}
	}
	return b.String()
}

// sqlLikePattern converts a wildcard pattern to a LIKE pattern using the
// default backslash escape.
func sqlLikePattern(pattern string) (string, error) {
	toks, err := tokenize(pattern)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, tk := range toks {
		switch tk.kind {
		case anyOne:
			b.WriteByte('_')
		case anyRun:
			b.WriteByte('%')
		default:
			b.WriteString(escapeLike(string(tk.r)))
		}
	}
	return b.String(), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike quotes LIKE metacharacters in a literal.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func literalString(toks []token) string {
	var b strings.Builder
	for _, tk := range toks {
		b.WriteRune(tk.r)
	}
	return b.String()
}
