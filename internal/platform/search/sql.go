package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/medeasy/medeasy/internal/platform/db"
)

// Kind is the SQL type family of a searchable column.
type Kind int

const (
	Text Kind = iota
	Number
	Time
	UUID
	Bool
)

// Column maps a search field to a SQL expression.
type Column struct {
	Name string
	Kind Kind
}

// Columns is the whitelist of searchable and sortable fields of a resource.
type Columns map[string]Column

// Query builds the count and page statements of a search.
type Query struct {
	table   string
	cols    string
	where   strings.Builder
	args    []interface{}
	orderBy string
}

// NewQuery creates a query selecting cols from table (which may be a join).
func NewQuery(table, cols string) *Query {
	return &Query{table: table, cols: cols}
}

// Arg registers a bind argument and returns its placeholder.
func (q *Query) Arg(v interface{}) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

// Add appends a raw WHERE fragment, placeholders come from Arg.
func (q *Query) Add(clause string) {
	q.where.WriteString(" AND ")
	q.where.WriteString(clause)
}

// Filter compiles f against columns and appends it to the WHERE clause.
func (q *Query) Filter(f Filter, columns Columns) error {
	if f == nil {
		return nil
	}
	clause, err := q.compile(f, columns)
	if err != nil {
		return err
	}
	q.Add(clause)
	return nil
}

func (q *Query) compile(f Filter, columns Columns) (string, error) {
	switch t := f.(type) {
	case *Criterion:
		col, ok := columns[t.Field]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownField, t.Field)
		}
		return q.criterion(t, col)
	case *Composite:
		parts := make([]string, 0, len(t.Filters))
		for _, sub := range t.Filters {
			p, err := q.compile(sub, columns)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		sep := " AND "
		if t.Logic == Or {
			sep = " OR "
		}
		return "(" + strings.Join(parts, sep) + ")", nil
	}
	return "", fmt.Errorf("%w: %T", ErrInvalidCriterion, f)
}

// Exists appends "EXISTS (sub AND <f>)" for criteria on related rows. sub
// must be a correlated SELECT ending with a WHERE clause.
func (q *Query) Exists(sub string, f Filter, columns Columns) error {
	if f == nil {
		return nil
	}
	clause, err := q.compile(f, columns)
	if err != nil {
		return err
	}
	q.Add("EXISTS (" + sub + " AND " + clause + ")")
	return nil
}

var comparisons = map[Operator]string{
	EqualTo:            "=",
	NotEqualTo:         "<>",
	LessThan:           "<",
	LessThanOrEqual:    "<=",
	GreaterThan:        ">",
	GreaterThanOrEqual: ">=",
}

func (q *Query) criterion(c *Criterion, col Column) (string, error) {
	name := col.Name
	switch c.Operator {
	case IsNull:
		return name + " IS NULL", nil
	case IsNotNull:
		return name + " IS NOT NULL", nil
	case IsEmpty, IsNotEmpty:
		if col.Kind != Text {
			return "", fmt.Errorf("%w: %s %s", ErrUnsupportedOperator, c.Field, c.Operator)
		}
		if c.Operator == IsEmpty {
			return "(" + name + " IS NULL OR " + name + " = '')", nil
		}
		return "(" + name + " IS NOT NULL AND " + name + " <> '')", nil
	}

	if col.Kind == Text {
		return q.textCriterion(c, name)
	}

	sqlOp, ok := comparisons[c.Operator]
	if !ok {
		return "", fmt.Errorf("%w: %s %s", ErrUnsupportedOperator, c.Field, c.Operator)
	}
	v, err := convert(deref(c.Value), col.Kind)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.Field, err)
	}
	return name + " " + sqlOp + " " + q.Arg(v), nil
}

// textCriterion matches case-insensitively through ILIKE.
func (q *Query) textCriterion(c *Criterion, name string) (string, error) {
	value := stringOf(deref(c.Value))
	var pattern string
	switch c.Operator {
	case EqualTo, NotEqualTo:
		pattern = escapeLike(value)
	case Contains, NotContains:
		pattern = "%" + escapeLike(value) + "%"
	case StartsWith, NotStartsWith:
		pattern = escapeLike(value) + "%"
	case EndsWith, NotEndsWith:
		pattern = "%" + escapeLike(value)
	case Like, NotLike:
		p, err := sqlLikePattern(value)
		if err != nil {
			return "", fmt.Errorf("%s: %w", c.Field, err)
		}
		pattern = p
	default:
		sqlOp := comparisons[c.Operator]
		return "LOWER(" + name + ") " + sqlOp + " LOWER(" + q.Arg(value) + ")", nil
	}

	clause := name + " ILIKE " + q.Arg(pattern)
	switch c.Operator {
	case NotEqualTo, NotContains, NotStartsWith, NotEndsWith, NotLike:
		return "NOT (" + clause + ")", nil
	}
	return clause, nil
}

func convert(v interface{}, kind Kind) (interface{}, error) {
	switch kind {
	case Time:
		return toTime(v)
	case UUID:
		return toUUID(v)
	case Number:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: %v is not a number", ErrInvalidCriterion, v)
		}
		return f, nil
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		b, err := strconv.ParseBool(stringOf(v))
		if err != nil {
			return nil, fmt.Errorf("%w: %v is not a boolean", ErrInvalidCriterion, v)
		}
		return b, nil
	}
	return v, nil
}

// OrderBy sets ORDER BY from sorts. fallback is used when sorts is empty
// and as a final tie breaker otherwise.
func (q *Query) OrderBy(sorts []Sort, columns Columns, fallback string) error {
	parts := make([]string, 0, len(sorts)+1)
	for _, s := range sorts {
		col, ok := columns[s.Field]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, s.Field)
		}
		dir := " ASC"
		if s.Desc {
			dir = " DESC"
		}
		parts = append(parts, col.Name+dir)
	}
	if fallback != "" {
		parts = append(parts, fallback)
	}
	q.orderBy = strings.Join(parts, ", ")
	return nil
}

// CountSQL returns the statement counting every match.
func (q *Query) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.table, q.where.String())
}

// Args returns the bind arguments of CountSQL.
func (q *Query) Args() []interface{} {
	return q.args
}

// PageSQL returns the statement of one page and its arguments.
func (q *Query) PageSQL(limit, offset int) (string, []interface{}) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where.String())
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	n := len(q.args)
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)

	args := make([]interface{}, n, n+2)
	copy(args, q.args)
	return sql, append(args, limit, offset)
}

// Page returns the count and page statements for db.QueryPage.
func (q *Query) Page(limit, offset int) db.PageQuery {
	sql, args := q.PageSQL(limit, offset)
	return db.PageQuery{CountSQL: q.CountSQL(), CountArgs: q.Args(), PageSQL: sql, PageArgs: args}
}
