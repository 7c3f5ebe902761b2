package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/jonathan/one-click-apply/migrations"
)

// PgxPool is the subset of *pgxpool.Pool used by the Postgres store.
// It is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Close()
}

// Postgres is a Store backed by the kv table of a PostgreSQL database.
type Postgres struct {
	pool PgxPool
	notifier
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool PgxPool) *Postgres {
	return &Postgres{pool: pool}
}

// OpenPostgres applies pending migrations and connects a pool to dsn.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if err := MigrateUp(ctx, dsn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPostgres(pool), nil
}

// MigrateUp runs all pending migrations from the embedded filesystem.
func MigrateUp(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

const (
	pgSelectMany = `SELECT key, value FROM kv WHERE key = ANY($1)`
	pgSelectLock = `SELECT value FROM kv WHERE key = $1 FOR UPDATE`
	pgUpsert     = `INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, now()) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	pgDelete     = `DELETE FROM kv WHERE key = $1`
)

// Get implements Store.
func (p *Postgres) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := p.pool.Query(ctx, pgSelectMany, keys)
	if err != nil {
		return nil, fmt.Errorf("query kv: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan kv: %w", err)
		}
		out[key] = json.RawMessage(value)
	}
	return out, rows.Err()
}

// Set implements Store.
func (p *Postgres) Set(ctx context.Context, items map[string]any) error {
	keys, encoded, err := encode(items)
	if err != nil {
		return err
	}

	var changes []Change
	err = p.inTx(ctx, func(tx pgx.Tx) error {
		for _, k := range keys {
			old, err := lockValue(ctx, tx, k)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, pgUpsert, k, encoded[k]); err != nil {
				return fmt.Errorf("write %s: %w", k, err)
			}
			changes = append(changes, Change{Key: k, OldValue: old, NewValue: encoded[k]})
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.notify(changes)
	return nil
}

// Remove implements Store.
func (p *Postgres) Remove(ctx context.Context, keys ...string) error {
	var changes []Change
	err := p.inTx(ctx, func(tx pgx.Tx) error {
		for _, k := range keys {
			old, err := lockValue(ctx, tx, k)
			if err != nil {
				return err
			}
			if old == nil {
				continue
			}
			if _, err := tx.Exec(ctx, pgDelete, k); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
			changes = append(changes, Change{Key: k, OldValue: old})
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.notify(changes)
	return nil
}

// OnChange implements Store.
func (p *Postgres) OnChange(fn ChangeFunc) func() { return p.subscribe(fn) }

// Close implements Store.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) inTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("commit: %w", e)
		}
	}()
	return fn(tx)
}

// lockValue reads the current value of key under a row lock. It returns nil for an absent key.
func lockValue(ctx context.Context, tx pgx.Tx, key string) (json.RawMessage, error) {
	var old []byte
	err := tx.QueryRow(ctx, pgSelectLock, key).Scan(&old)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return json.RawMessage(old), nil
}
