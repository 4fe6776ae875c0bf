package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite keeps each collection in its own table of JSON documents. The
// schema is owned by the database package migrations.
type SQLite struct {
	db *sql.DB
	sqliteTx
}

var _ Store = (*SQLite)(nil)

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, sqliteTx: sqliteTx{q: db}}
}

func (s *SQLite) Update(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", "", "", err)
	}
	defer tx.Rollback()

	if err := fn(sqliteTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit", "", "", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	q querier
}

func keyColumn(c Collection) string {
	if c.AutoIncrement() {
		return "id"
	}
	return "key"
}

// keyArg binds integer keys as integers so comparisons hit the rowid.
func keyArg(c Collection, key Key) any {
	if c.AutoIncrement() {
		id, _ := key.Int64()
		return id
	}
	return string(key)
}

func (t sqliteTx) Put(ctx context.Context, c Collection, key Key, value any) (Key, error) {
	if err := checkKey("put", c, key); err != nil {
		return "", err
	}

	doc, err := json.Marshal(value)
	if err != nil {
		return "", storageErr("put", c, key, fmt.Errorf("encode: %w", err))
	}

	if key == "" {
		res, err := t.q.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (doc) VALUES (?)`, c), string(doc))
		if err != nil {
			return "", storageErr("put", c, key, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return "", storageErr("put", c, key, err)
		}
		return IntKey(id), nil
	}

	col := keyColumn(c)
	_, err = t.q.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s, doc) VALUES (?, ?)
		ON CONFLICT (%s) DO UPDATE SET doc = excluded.doc`, c, col, col),
		keyArg(c, key),
		string(doc),
	)
	if err != nil {
		return "", storageErr("put", c, key, err)
	}
	return key, nil
}

func (t sqliteTx) Get(ctx context.Context, c Collection, key Key, dst any) (bool, error) {
	if err := checkKey("get", c, key); err != nil {
		return false, err
	}

	var doc string
	err := t.q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE %s = ?`, c, keyColumn(c)),
		keyArg(c, key),
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("get", c, key, err)
	}

	if err := json.Unmarshal([]byte(doc), dst); err != nil {
		return false, storageErr("get", c, key, fmt.Errorf("decode: %w", err))
	}
	return true, nil
}

func (t sqliteTx) GetAll(ctx context.Context, c Collection, fn func(key Key, decode Decoder) error) error {
	if !c.valid() {
		return storageErr("get_all", c, "", ErrUnknownCollection)
	}

	col := keyColumn(c)
	rows, err := t.q.QueryContext(ctx, fmt.Sprintf(`SELECT %s, doc FROM %s ORDER BY %s`, col, c, col))
	if err != nil {
		return storageErr("get_all", c, "", err)
	}

	// materialize first: callbacks may issue further queries on the same
	// single connection
	type entry struct {
		key Key
		doc []byte
	}
	var entries []entry
	for rows.Next() {
		var key, doc string
		if err := rows.Scan(&key, &doc); err != nil {
			rows.Close()
			return storageErr("get_all", c, "", err)
		}
		entries = append(entries, entry{Key(key), []byte(doc)})
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return storageErr("get_all", c, "", err)
	}

	for _, e := range entries {
		decode := func(dst any) error {
			if err := json.Unmarshal(e.doc, dst); err != nil {
				return storageErr("get_all", c, e.key, fmt.Errorf("decode: %w", err))
			}
			return nil
		}
		if err := fn(e.key, decode); err != nil {
			return err
		}
	}
	return nil
}

func (t sqliteTx) Delete(ctx context.Context, c Collection, key Key) error {
	if err := checkKey("delete", c, key); err != nil {
		return err
	}

	_, err := t.q.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, c, keyColumn(c)),
		keyArg(c, key),
	)
	return storageErr("delete", c, key, err)
}
