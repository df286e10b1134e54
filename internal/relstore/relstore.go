// Package relstore is the materialized relational store stager
// Runnables write into: a pooled Postgres connection wrapped around
// one upsert primitive, mirroring how every stager in the original
// system's src/actions/stage/*.rs pushes a batch of parsed rows
// through a shared connection pool.
package relstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgxpool.Pool with the one operation the stagers need.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and verifies connectivity.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("relstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("relstore: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Row is one record to upsert, keyed by column name.
type Row map[string]any

// UpsertRows inserts rows into table, updating every non-key column
// on conflict against conflictCols. All rows in a call must share the
// same set of columns. A nil Store persists nothing and reports zero
// rows.
func (s *Store) UpsertRows(ctx context.Context, table string, conflictCols []string, rows []Row) (int64, error) {
	if s == nil || len(rows) == 0 {
		return 0, nil
	}
	cols := columnsOf(rows[0])

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(cols, ", "))

	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, c := range cols {
			if j > 0 {
				sb.WriteString(", ")
			}
			args = append(args, row[c])
			fmt.Fprintf(&sb, "$%d", len(args))
		}
		sb.WriteString(")")
	}

	fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET ", strings.Join(conflictCols, ", "))
	set := updateClauses(cols, conflictCols)
	sb.WriteString(strings.Join(set, ", "))

	tag, err := s.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("relstore: upsert into %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func columnsOf(row Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	return cols
}

func updateClauses(cols, conflictCols []string) []string {
	isKey := make(map[string]bool, len(conflictCols))
	for _, c := range conflictCols {
		isKey[c] = true
	}
	var out []string
	for _, c := range cols {
		if isKey[c] {
			continue
		}
		out = append(out, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	return out
}
