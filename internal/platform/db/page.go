package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PageQuery is a count statement paired with the statement of one page.
type PageQuery struct {
	CountSQL  string
	CountArgs []interface{}
	PageSQL   string
	PageArgs  []interface{}
}

// QueryPage runs q on conn and scans every row of the page with scan.
func QueryPage[T any](ctx context.Context, conn Querier, q PageQuery, scan func(pgx.Row) (T, error)) ([]T, int, error) {
	var total int
	if err := conn.QueryRow(ctx, q.CountSQL, q.CountArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	rows, err := conn.Query(ctx, q.PageSQL, q.PageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query page: %w", err)
	}
	items, err := ScanAll(rows, scan)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ScanAll scans and closes rows.
func ScanAll[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var items []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
