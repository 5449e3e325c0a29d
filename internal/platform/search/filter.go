// Package search turns query string criteria into filter trees that can be
// evaluated in memory or compiled to PostgreSQL.
//
// Criteria language:
//
//	Bruce       equals "Bruce" (case-insensitive)
//	Br*         starts with "Br"
//	*ce         ends with "ce"
//	*ru*        contains "ru"
//	B*e, Br?ce  wildcard pattern: * matches any run, ? exactly one character
//	!Br*        negates any of the above
//	Bruce|Dick  either alternative
//	\*          literal *, likewise \? \! \| \\
package search

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownField is returned when a filter or sort names a field that
	// is not searchable.
	ErrUnknownField = errors.New("unknown search field")
	// ErrUnsupportedOperator is returned when an operator does not apply to
	// the field type.
	ErrUnsupportedOperator = errors.New("unsupported operator for field")
	// ErrInvalidCriterion is returned for malformed criteria.
	ErrInvalidCriterion = errors.New("invalid search criterion")
)

type Operator string

const (
	EqualTo            Operator = "eq"
	NotEqualTo         Operator = "neq"
	LessThan           Operator = "lt"
	LessThanOrEqual    Operator = "lte"
	GreaterThan        Operator = "gt"
	GreaterThanOrEqual Operator = "gte"
	Contains           Operator = "contains"
	NotContains        Operator = "notcontains"
	StartsWith         Operator = "startswith"
	NotStartsWith      Operator = "notstartswith"
	EndsWith           Operator = "endswith"
	NotEndsWith        Operator = "notendswith"
	Like               Operator = "like"
	NotLike            Operator = "notlike"
	IsNull             Operator = "isnull"
	IsNotNull          Operator = "isnotnull"
	IsEmpty            Operator = "isempty"
	IsNotEmpty         Operator = "isnotempty"
)

var negations = map[Operator]Operator{
	EqualTo:         NotEqualTo,
	LessThan:        GreaterThanOrEqual,
	LessThanOrEqual: GreaterThan,
	Contains:        NotContains,
	StartsWith:      NotStartsWith,
	EndsWith:        NotEndsWith,
	Like:            NotLike,
	IsNull:          IsNotNull,
	IsEmpty:         IsNotEmpty,
}

func init() {
	pairs := make(map[Operator]Operator, len(negations))
	for op, neg := range negations {
		pairs[neg] = op
	}
	for op, neg := range pairs {
		negations[op] = neg
	}
}

// Negate returns the operator selecting the complement of op.
func (op Operator) Negate() Operator {
	return negations[op]
}

// Unary reports whether the operator ignores the criterion value.
func (op Operator) Unary() bool {
	switch op {
	case IsNull, IsNotNull, IsEmpty, IsNotEmpty:
		return true
	}
	return false
}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	_, ok := negations[op]
	return ok
}

type Logic string

const (
	And Logic = "and"
	Or  Logic = "or"
)

// Filter is either a *Criterion or a *Composite.
type Filter interface {
	fmt.Stringer
	filter()
}

// Criterion tests one field. Like/NotLike values use the wildcard syntax of
// the criteria language.
type Criterion struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"op"`
	Value    interface{} `json:"value,omitempty"`
}

// Composite combines at least two filters.
type Composite struct {
	Logic   Logic    `json:"logic"`
	Filters []Filter `json:"filters"`
}

func (*Criterion) filter() {}
func (*Composite) filter() {}

func (c *Criterion) String() string {
	if c.Operator.Unary() {
		return fmt.Sprintf("%s %s", c.Field, c.Operator)
	}
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

func (c *Composite) String() string {
	s := "("
	for i, f := range c.Filters {
		if i > 0 {
			s += " " + string(c.Logic) + " "
		}
		s += f.String()
	}
	return s + ")"
}

// Where builds a criterion.
func Where(field string, op Operator, value interface{}) *Criterion {
	return &Criterion{Field: field, Operator: op, Value: value}
}

// AllOf combines filters with AND, dropping nils. It returns nil when nothing
// is left and the filter itself when only one is.
func AllOf(filters ...Filter) Filter {
	return combine(And, filters)
}

// AnyOf combines filters with OR, dropping nils.
func AnyOf(filters ...Filter) Filter {
	return combine(Or, filters)
}

func combine(logic Logic, filters []Filter) Filter {
	var kept []Filter
	for _, f := range filters {
		if f == nil {
			continue
		}
		if c, ok := f.(*Criterion); ok && c == nil {
			continue
		}
		// flatten nested filters with the same logic
		if c, ok := f.(*Composite); ok && c.Logic == logic {
			kept = append(kept, c.Filters...)
			continue
		}
		kept = append(kept, f)
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &Composite{Logic: logic, Filters: kept}
}

// Fields returns every field referenced by f.
func Fields(f Filter) []string {
	var out []string
	var walk func(Filter)
	walk = func(f Filter) {
		switch t := f.(type) {
		case *Criterion:
			out = append(out, t.Field)
		case *Composite:
			for _, c := range t.Filters {
				walk(c)
			}
		}
	}
	if f != nil {
		walk(f)
	}
	return out
}
