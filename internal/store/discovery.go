// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/northbound/archivist/internal/archiveerr"
)

// FieldCoverage reports how many rows exist in table and how many of
// those have a non-null value in column. Table and column names are never
// taken from user input — callers pass names from a fixed, code-declared
// field list (internal/discovery), never from a request body, so building
// the query by string formatting here is safe.
func (s *Store) FieldCoverage(ctx context.Context, table, column string) (total, nonNull int, err error) {
	q := fmt.Sprintf(`SELECT COUNT(*), COUNT(%s) FROM %s`, column, table)
	if scanErr := s.db.QueryRowContext(ctx, q).Scan(&total, &nonNull); scanErr != nil {
		return 0, 0, archiveerr.New(archiveerr.KindBackend, "store.FieldCoverage", scanErr)
	}
	return total, nonNull, nil
}

// FieldDistinctCount returns the number of distinct non-null values in
// column.
func (s *Store) FieldDistinctCount(ctx context.Context, table, column string) (int, error) {
	q := fmt.Sprintf(`SELECT COUNT(DISTINCT %s) FROM %s WHERE %s IS NOT NULL`, column, table, column)
	var n int
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, archiveerr.New(archiveerr.KindBackend, "store.FieldDistinctCount", err)
	}
	return n, nil
}

// ValueCount is one {value, count} pair for an enum facet.
type ValueCount struct {
	Value string
	Count int
}

// FieldTopValues returns the top limit values of column by frequency.
func (s *Store) FieldTopValues(ctx context.Context, table, column string, limit int) ([]ValueCount, error) {
	q := fmt.Sprintf(`SELECT %s, COUNT(*) c FROM %s WHERE %s IS NOT NULL GROUP BY %s ORDER BY c DESC LIMIT ?`, column, table, column, column)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.FieldTopValues", err)
	}
	defer rows.Close()

	var out []ValueCount
	for rows.Next() {
		var v sql.NullString
		var c int
		if err := rows.Scan(&v, &c); err != nil {
			return nil, archiveerr.New(archiveerr.KindBackend, "store.FieldTopValues", err)
		}
		out = append(out, ValueCount{Value: v.String, Count: c})
	}
	return out, rows.Err()
}

// FieldRange returns the min/max of column as driver-native values (time.Time
// for DATETIME columns, float64/int64 for numeric ones): the caller
// (internal/discovery) knows which shape to expect per declared field.
func (s *Store) FieldRange(ctx context.Context, table, column string) (min, max interface{}, err error) {
	q := fmt.Sprintf(`SELECT MIN(%s), MAX(%s) FROM %s WHERE %s IS NOT NULL`, column, column, table, column)
	var minVal, maxVal interface{}
	if scanErr := s.db.QueryRowContext(ctx, q).Scan(&minVal, &maxVal); scanErr != nil {
		return nil, nil, archiveerr.New(archiveerr.KindBackend, "store.FieldRange", scanErr)
	}
	return minVal, maxVal, nil
}

// FieldBooleanCounts returns counts of truthy (1) vs falsy/null (0 or NULL)
// rows for a boolean-shaped integer column.
func (s *Store) FieldBooleanCounts(ctx context.Context, table, column string) (trueCount, falseCount int, err error) {
	q := fmt.Sprintf(`SELECT COALESCE(SUM(CASE WHEN %s = 1 THEN 1 ELSE 0 END), 0), COALESCE(SUM(CASE WHEN %s IS NULL OR %s != 1 THEN 1 ELSE 0 END), 0) FROM %s`, column, column, column, table)
	if scanErr := s.db.QueryRowContext(ctx, q).Scan(&trueCount, &falseCount); scanErr != nil {
		return 0, 0, archiveerr.New(archiveerr.KindBackend, "store.FieldBooleanCounts", scanErr)
	}
	return trueCount, falseCount, nil
}
