package search

import (
	"errors"
	"fmt"
	"strings"
)

// Parse turns one criteria-language value into a filter on field. Blank
// values yield a nil filter.
func Parse(field, raw string) (Filter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var alternatives []Filter
	for _, term := range splitAlternatives(raw) {
		c, err := parseTerm(field, strings.TrimSpace(term))
		if err != nil {
			return nil, err
		}
		alternatives = append(alternatives, c)
	}
	return AnyOf(alternatives...), nil
}

// splitAlternatives splits on unescaped '|' and keeps escapes in place.
func splitAlternatives(raw string) []string {
	var (
		parts []string
		cur   strings.Builder
	)
	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '\\':
			cur.WriteRune(runes[i])
			if i+1 < len(runes) {
				i++
				cur.WriteRune(runes[i])
			}
		case '|':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(runes[i])
		}
	}
	return append(parts, cur.String())
}

func parseTerm(field, term string) (*Criterion, error) {
	negate := strings.HasPrefix(term, "!")
	if negate {
		term = term[1:]
	}
	if term == "" {
		return nil, fmt.Errorf("%w: empty value for %s", ErrInvalidCriterion, field)
	}

	toks, err := tokenize(term)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}

	c := classify(field, toks)
	if negate {
		c.Operator = c.Operator.Negate()
	}
	return c, nil
}

// classify picks the narrowest operator able to express the pattern.
func classify(field string, toks []token) *Criterion {
	runs, ones := 0, 0
	for _, tk := range toks {
		switch tk.kind {
		case anyRun:
			runs++
		case anyOne:
			ones++
		}
	}

	n := len(toks)
	switch {
	case runs == 0 && ones == 0:
		return Where(field, EqualTo, literalString(toks))
	case ones > 0:
		return Where(field, Like, patternString(toks))
	case n == 1:
		// a lone star matches any value
		return Where(field, IsNotNull, nil)
	case runs == 1 && toks[0].kind == anyRun:
		return Where(field, EndsWith, literalString(toks[1:]))
	case runs == 1 && toks[n-1].kind == anyRun:
		return Where(field, StartsWith, literalString(toks[:n-1]))
	case runs == 2 && toks[0].kind == anyRun && toks[n-1].kind == anyRun:
		return Where(field, Contains, literalString(toks[1:n-1]))
	}
	return Where(field, Like, patternString(toks))
}

// Builder accumulates the criteria of a search request. Every criterion is
// combined with AND.
type Builder struct {
	filters []Filter
	errs    []error
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Text adds a criteria-language value. Blank values are ignored.
func (b *Builder) Text(field, raw string) *Builder {
	f, err := Parse(field, raw)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	return b.Add(f)
}

// Compare adds a typed comparison, for dates, numbers and identifiers.
func (b *Builder) Compare(field string, op Operator, value interface{}) *Builder {
	if !op.Valid() {
		b.errs = append(b.errs, fmt.Errorf("%w: operator %q", ErrInvalidCriterion, op))
		return b
	}
	return b.Add(Where(field, op, value))
}

func (b *Builder) Add(f Filter) *Builder {
	if f != nil {
		b.filters = append(b.filters, f)
	}
	return b
}

// Build returns the combined filter, nil when no criteria were given.
func (b *Builder) Build() (Filter, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	return AllOf(b.filters...), nil
}
