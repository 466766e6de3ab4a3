// Package postgres implements the orderflow repositories on PostgreSQL
// through database/sql and lib/pq. Unit row locks are taken with
// SELECT ... FOR UPDATE and held until the surrounding transaction
// commits or rolls back.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/sokoide/orderflow/pkg/domain"
)

// Store wraps the database handle and implements domain.Transactor.
type Store struct {
	db *sql.DB
}

// Open connects to the database and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Commit() error   { return t.tx.Commit() }
func (t *pgTx) Rollback() error { return t.tx.Rollback() }

// Begin opens a read-write transaction.
func (s *Store) Begin(ctx context.Context) (domain.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

func sqlTx(tx domain.Tx) (*sql.Tx, error) {
	t, ok := tx.(*pgTx)
	if !ok {
		return nil, errors.New("postgres: foreign transaction")
	}
	return t.tx, nil
}
