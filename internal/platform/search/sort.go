package search

import (
	"fmt"
	"sort"
	"strings"
)

// Sort is one ORDER BY directive.
type Sort struct {
	Field string
	Desc  bool
}

// ParseSort parses "-lastname,+firstname,birthDate": a leading "-" sorts
// descending, "+" or nothing ascending.
func ParseSort(raw string) []Sort {
	var sorts []Sort
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		s := Sort{}
		switch {
		case strings.HasPrefix(part, "-"):
			s.Desc = true
			part = part[1:]
		case strings.HasPrefix(part, "+"):
			part = part[1:]
		}
		if s.Field = strings.TrimSpace(part); s.Field != "" {
			sorts = append(sorts, s)
		}
	}
	return sorts
}

// Validate returns ErrUnknownField when f or sorts reference a field
// outside columns.
func Validate(f Filter, sorts []Sort, columns Columns) error {
	for _, field := range Fields(f) {
		if _, ok := columns[field]; !ok {
			return unknown(field)
		}
	}
	for _, s := range sorts {
		if _, ok := columns[s.Field]; !ok {
			return unknown(s.Field)
		}
	}
	return nil
}

func unknown(field string) error {
	return fmt.Errorf("%w: %s", ErrUnknownField, field)
}

// SortSlice orders items in memory by sorts, keeping the input order of
// ties. Nulls sort after every value, so they come last ascending and
// first descending, as in PostgreSQL.
func SortSlice[T any](items []T, sorts []Sort, get func(T) Getter) {
	if len(sorts) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := get(items[i]), get(items[j])
		for _, s := range sorts {
			av, _ := a(s.Field)
			bv, _ := b(s.Field)
			av, bv = deref(av), deref(bv)
			var cmp int
			switch {
			case av == nil && bv == nil:
				cmp = 0
			case av == nil:
				cmp = 1
			case bv == nil:
				cmp = -1
			default:
				cmp, _ = compare(av, bv)
			}
			if cmp == 0 {
				continue
			}
			if s.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// Paginate returns the page of items for a 1-based page.
func Paginate[T any](items []T, page, pageSize int) []T {
	start := (page - 1) * pageSize
	if start >= len(items) || start < 0 {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
