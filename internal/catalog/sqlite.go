package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"tensord/pkg/tensorvec"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS model_info (
	model_name  TEXT PRIMARY KEY,
	model_path  TEXT NOT NULL,
	base_model  TEXT,
	md5         TEXT,
	preprocess  TEXT,
	postprocess TEXT,
	description TEXT
);

CREATE TABLE IF NOT EXISTS base_model_info (
	base_model TEXT PRIMARY KEY,
	model_path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS model_layer_info (
	model_name  TEXT NOT NULL,
	layer_index INTEGER NOT NULL,
	layer_name  TEXT NOT NULL,
	parameter   TEXT NOT NULL,
	PRIMARY KEY (model_name, layer_index)
);
`

// SQLiteStore is a Store and Writer backed by a SQLite database file.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// OpenSQLite opens (creating if needed) the catalog at path. Use ":memory:"
// for a private in-memory catalog.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		// WAL for concurrent readers; wait on locks instead of failing.
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrapError("open", fmt.Errorf("failed to open database: %w", err))
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(2 * time.Hour)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, wrapError("open", fmt.Errorf("failed to create tables: %w", err))
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path is the database location given to OpenSQLite.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// readTx runs fn inside one transaction so multi-row reads see a single snapshot.
func (s *SQLiteStore) readTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return wrapError(op, ErrClosed)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapError(op, err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return wrapError(op, err)
	}
	return nil
}

func (s *SQLiteStore) writeTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return wrapError(op, ErrClosed)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapError(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return wrapError(op, err)
	}
	return wrapError(op, tx.Commit())
}

func (s *SQLiteStore) ModelPath(ctx context.Context, modelName string) (ModelRecord, error) {
	var rec ModelRecord
	err := s.readTx(ctx, "model_path", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT model_name, model_path, base_model, md5, preprocess, postprocess, description
			FROM model_info WHERE model_name = ?`, modelName)
		r, err := scanModel(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("model %q: %w", modelName, ErrNotFound)
		}
		rec = r
		return err
	})
	return rec, err
}

func (s *SQLiteStore) BaseModelPath(ctx context.Context, baseName string) (string, error) {
	var path string
	err := s.readTx(ctx, "base_model_path", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT model_path FROM base_model_info WHERE base_model = ?`, baseName).Scan(&path)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("base model %q: %w", baseName, ErrNotFound)
		}
		return err
	})
	return path, err
}

func (s *SQLiteStore) LayerParameters(ctx context.Context, modelName string) ([]LayerParameter, error) {
	var out []LayerParameter
	err := s.readTx(ctx, "layer_parameters", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT layer_name, parameter FROM model_layer_info
			WHERE model_name = ? ORDER BY layer_index`, modelName)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name, literal string
			if err := rows.Scan(&name, &literal); err != nil {
				return err
			}
			v, err := tensorvec.Parse(literal)
			if err != nil {
				return fmt.Errorf("layer %q: %w", name, err)
			}
			out = append(out, LayerParameter{Name: name, Value: v})
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(out) == 0 {
			return fmt.Errorf("layers of %q: %w", modelName, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) ListModels(ctx context.Context) ([]ModelRecord, error) {
	var out []ModelRecord
	err := s.readTx(ctx, "list_models", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT model_name, model_path, base_model, md5, preprocess, postprocess, description
			FROM model_info ORDER BY model_name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanModel(rows)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanModel(sc scanner) (ModelRecord, error) {
	var (
		r                             ModelRecord
		base, sum, pre, post, comment sql.NullString
	)
	if err := sc.Scan(&r.Name, &r.Path, &base, &sum, &pre, &post, &comment); err != nil {
		return ModelRecord{}, err
	}
	r.BaseModel, r.MD5 = base.String, sum.String
	r.Preprocess, r.Postprocess, r.Description = pre.String, post.String, comment.String
	return r, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// PutModel inserts or replaces a model_info row.
func (s *SQLiteStore) PutModel(ctx context.Context, rec ModelRecord) error {
	if rec.Name == "" || rec.Path == "" {
		return wrapError("put_model", errors.New("model name and path are required"))
	}
	return s.writeTx(ctx, "put_model", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO model_info (model_name, model_path, base_model, md5, preprocess, postprocess, description)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(model_name) DO UPDATE SET
				model_path = excluded.model_path,
				base_model = excluded.base_model,
				md5 = excluded.md5,
				preprocess = excluded.preprocess,
				postprocess = excluded.postprocess,
				description = excluded.description`,
			rec.Name, rec.Path, nullable(rec.BaseModel), nullable(rec.MD5),
			nullable(rec.Preprocess), nullable(rec.Postprocess), nullable(rec.Description))
		return err
	})
}

// PutBaseModel inserts or replaces a base_model_info row.
func (s *SQLiteStore) PutBaseModel(ctx context.Context, name, path string) error {
	if name == "" || path == "" {
		return wrapError("put_base_model", errors.New("base model name and path are required"))
	}
	return s.writeTx(ctx, "put_base_model", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO base_model_info (base_model, model_path) VALUES (?, ?)
			ON CONFLICT(base_model) DO UPDATE SET model_path = excluded.model_path`, name, path)
		return err
	})
}

// PutLayerParameters replaces every layer row of modelName. Values are
// stored as untruncated literals so they parse back exactly.
func (s *SQLiteStore) PutLayerParameters(ctx context.Context, modelName string, params []LayerParameter) error {
	literals := make([]string, len(params))
	for i, p := range params {
		lit, err := tensorvec.FormatFull(p.Value)
		if err != nil {
			return wrapError("put_layer_parameters", fmt.Errorf("layer %q: %w", p.Name, err))
		}
		literals[i] = lit
	}
	return s.writeTx(ctx, "put_layer_parameters", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM model_layer_info WHERE model_name = ?`, modelName); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO model_layer_info (model_name, layer_index, layer_name, parameter) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, p := range params {
			if _, err := stmt.ExecContext(ctx, modelName, i, p.Name, literals[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteModel removes a model and its layer rows.
func (s *SQLiteStore) DeleteModel(ctx context.Context, modelName string) error {
	return s.writeTx(ctx, "delete_model", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM model_info WHERE model_name = ?`, modelName)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("model %q: %w", modelName, ErrNotFound)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM model_layer_info WHERE model_name = ?`, modelName)
		return err
	})
}
