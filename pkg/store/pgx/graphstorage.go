// Package pgx reads graph sources from PostgreSQL.
package pgx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/util"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

var (
	_ store.GraphSource = (*GraphDBStorage)(nil)
	_ store.Importer    = (*GraphDBStorage)(nil)
)

// GraphDBStorage implements the graph source providers on top of the
// PostgreSQL schema in internal/db. Project ids are numeric in the database;
// a non-numeric project id matches nothing.
type GraphDBStorage struct {
	conn      pgxIConn
	maxTries  int
	backoff   util.Backoff
	batchSize int
}

type GraphDBStorageOption func(*GraphDBStorage)

// WithRetries sets how often a failed read is attempted and the pause
// between attempts.
func WithRetries(maxTries int, backoff util.Backoff) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		s.maxTries = maxTries
		s.backoff = backoff
	}
}

// WithBatchSize sets the number of statements sent per batch on import.
func WithBatchSize(n int) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		s.batchSize = n
	}
}

// NewGraphDBStorageWithConnection creates a storage on an existing pool or
// connection.
func NewGraphDBStorageWithConnection(conn pgxIConn, opts ...GraphDBStorageOption) *GraphDBStorage {
	s := &GraphDBStorage{
		conn:      conn,
		maxTries:  3,
		backoff:   util.ExponentialBackoff(100*time.Millisecond, 2*time.Second),
		batchSize: 500,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

func parseProjectID(projectID string) (int64, bool) {
	id, err := strconv.ParseInt(projectID, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// query runs a read with retries. Errors reported by the server are not
// retried, only transport failures are.
func query[T any](ctx context.Context, s *GraphDBStorage, what string, fn func(ctx context.Context) (T, error)) (T, error) {
	res, err := util.RetryWithBackoff(ctx, s.maxTries, s.backoff, func(ctx context.Context) (T, error) {
		res, err := fn(ctx)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return res, util.Permanent(err)
		}
		return res, err
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to query %s: %w", what, err)
	}
	return res, nil
}

// nonNil keeps empty filters as empty arrays; a NULL array has no
// cardinality.
func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
