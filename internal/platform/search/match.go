package search

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Getter resolves a field of the value being filtered. ok is false for
// fields the value does not have.
type Getter func(field string) (value interface{}, ok bool)

// Match evaluates f in memory. A nil filter matches everything. Null
// values only satisfy the null and empty operators, mirroring SQL.
func Match(f Filter, get Getter) bool {
	switch t := f.(type) {
	case nil:
		return true
	case *Criterion:
		if t == nil {
			return true
		}
		return matchCriterion(t, get)
	case *Composite:
		for _, sub := range t.Filters {
			ok := Match(sub, get)
			if t.Logic == Or && ok {
				return true
			}
			if t.Logic != Or && !ok {
				return false
			}
		}
		return t.Logic != Or
	}
	return false
}

func matchCriterion(c *Criterion, get Getter) bool {
	raw, ok := get(c.Field)
	if !ok {
		return false
	}
	v := deref(raw)

	switch c.Operator {
	case IsNull:
		return v == nil
	case IsNotNull:
		return v != nil
	case IsEmpty:
		return v == nil || v == ""
	case IsNotEmpty:
		return v != nil && v != ""
	}
	if v == nil {
		return false
	}

	switch c.Operator {
	case Contains, NotContains, StartsWith, NotStartsWith, EndsWith, NotEndsWith, Like, NotLike:
		s := strings.ToLower(stringOf(v))
		needle := strings.ToLower(stringOf(c.Value))
		var hit bool
		switch c.Operator {
		case Contains, NotContains:
			hit = strings.Contains(s, needle)
		case StartsWith, NotStartsWith:
			hit = strings.HasPrefix(s, needle)
		case EndsWith, NotEndsWith:
			hit = strings.HasSuffix(s, needle)
		default:
			hit = MatchLike(stringOf(v), stringOf(c.Value), true)
		}
		return hit == (c.Operator == Contains || c.Operator == StartsWith || c.Operator == EndsWith || c.Operator == Like)
	}

	cmp, ok := compare(v, deref(c.Value))
	if !ok {
		return false
	}
	switch c.Operator {
	case EqualTo:
		return cmp == 0
	case NotEqualTo:
		return cmp != 0
	case LessThan:
		return cmp < 0
	case LessThanOrEqual:
		return cmp <= 0
	case GreaterThan:
		return cmp > 0
	case GreaterThanOrEqual:
		return cmp >= 0
	}
	return false
}

func deref(v interface{}) interface{} {
	switch t := v.(type) {
	case *string:
		if t == nil {
			return nil
		}
		return *t
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	case *uuid.UUID:
		if t == nil {
			return nil
		}
		return *t
	case *int:
		if t == nil {
			return nil
		}
		return *t
	case *float64:
		if t == nil {
			return nil
		}
		return *t
	}
	return v
}

func stringOf(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case uuid.UUID:
		return t.String()
	case time.Time:
		return t.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

// compare orders a stored value against a criterion value, converting the
// criterion to the stored type when it arrives as text.
func compare(stored, want interface{}) (int, bool) {
	switch s := stored.(type) {
	case string:
		w := strings.ToLower(stringOf(want))
		return strings.Compare(strings.ToLower(s), w), true
	case uuid.UUID:
		w, err := toUUID(want)
		if err != nil {
			return 0, false
		}
		return strings.Compare(s.String(), w.String()), true
	case time.Time:
		w, err := toTime(want)
		if err != nil {
			return 0, false
		}
		return s.Compare(w), true
	case bool:
		w, err := strconv.ParseBool(stringOf(want))
		if err != nil {
			return 0, false
		}
		if s == w {
			return 0, true
		}
		return 1, true
	}

	sf, ok := toFloat(stored)
	if !ok {
		return 0, false
	}
	wf, ok := toFloat(want)
	if !ok {
		return 0, false
	}
	switch {
	case sf < wf:
		return -1, true
	case sf > wf:
		return 1, true
	}
	return 0, true
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

func toUUID(v interface{}) (uuid.UUID, error) {
	switch t := v.(type) {
	case uuid.UUID:
		return t, nil
	case string:
		if id, err := uuid.Parse(t); err == nil {
			return id, nil
		}
	}
	return uuid.Nil, fmt.Errorf("%w: %v is not an identifier", ErrInvalidCriterion, v)
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: %v is not a date", ErrInvalidCriterion, v)
}
