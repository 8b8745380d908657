// Package postgres implements the checkpoint.Saver contract on PostgreSQL.
//
// Checkpoints live in one table keyed by (thread_id, thread_ts); the
// checkpoint and metadata columns hold the same encoded text the Redis
// saver stores, so payload semantics are identical across backends.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallnest/checkpointgo/checkpoint"
	"github.com/smallnest/checkpointgo/log"
	"github.com/smallnest/checkpointgo/serde"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Saver persists checkpoints in PostgreSQL.
type Saver struct {
	pool      DBPool
	tableName string
	serde     serde.Serializer
}

var (
	_ checkpoint.Saver      = (*Saver)(nil)
	_ checkpoint.AsyncSaver = (*Saver)(nil)
)

// Options configuration for the Postgres saver
type Options struct {
	ConnString string
	TableName  string           // Default "checkpoints"
	Serde      serde.Serializer // Default serde.JSONBinary
}

// NewSaver creates a saver backed by a new pgx connection pool.
func NewSaver(ctx context.Context, opts Options) (*Saver, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return NewSaverWithPool(pool, opts), nil
}

// NewSaverWithPool creates a saver over an existing pool.
// Useful for testing with mocks.
func NewSaverWithPool(pool DBPool, opts Options) *Saver {
	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}
	sd := opts.Serde
	if sd == nil {
		sd = serde.JSONBinary{}
	}
	return &Saver{
		pool:      pool,
		tableName: tableName,
		serde:     sd,
	}
}

// InitSchema creates the necessary table if it doesn't exist
func (s *Saver) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			thread_id TEXT NOT NULL,
			thread_ts TEXT NOT NULL,
			parent_ts TEXT NOT NULL DEFAULT '',
			checkpoint TEXT NOT NULL,
			metadata TEXT NOT NULL,
			PRIMARY KEY (thread_id, thread_ts)
		);
		CREATE INDEX IF NOT EXISTS idx_%s_thread_id ON %s (thread_id);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *Saver) Close() {
	s.pool.Close()
}

// Put writes one checkpoint; a retry with the same (thread_id, thread_ts)
// overwrites the previous record.
func (s *Saver) Put(ctx context.Context, cfg checkpoint.Config, cp *checkpoint.Checkpoint, md *checkpoint.Metadata) (checkpoint.Config, error) {
	if cfg.ThreadID == "" {
		return checkpoint.Config{}, &checkpoint.ConfigurationError{Reason: "thread_id is required"}
	}

	encCP, err := checkpoint.EncodeCheckpoint(s.serde, cp)
	if err != nil {
		log.Error("failed to encode checkpoint for thread %s ts %s: %v", cfg.ThreadID, cp.TS, err)
		return checkpoint.Config{}, err
	}
	encMD, err := checkpoint.EncodeMetadata(s.serde, md)
	if err != nil {
		log.Error("failed to encode metadata for thread %s ts %s: %v", cfg.ThreadID, cp.TS, err)
		return checkpoint.Config{}, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (thread_id, thread_ts, parent_ts, checkpoint, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (thread_id, thread_ts) DO UPDATE SET
			parent_ts = EXCLUDED.parent_ts,
			checkpoint = EXCLUDED.checkpoint,
			metadata = EXCLUDED.metadata
	`, s.tableName)

	_, err = s.pool.Exec(ctx, query, cfg.ThreadID, cp.TS, cfg.ThreadTS, encCP, encMD)
	if err != nil {
		serr := &checkpoint.StoreError{Op: "put", ThreadID: cfg.ThreadID, ThreadTS: cp.TS, Err: err}
		log.Error("%v", serr)
		return checkpoint.Config{}, serr
	}

	log.Info("checkpoint stored for thread %s ts %s", cfg.ThreadID, cp.TS)
	return checkpoint.Config{ThreadID: cfg.ThreadID, ThreadTS: cp.TS}, nil
}

// GetTuple fetches the checkpoint addressed by cfg, resolving to the
// latest version when cfg.ThreadTS is empty.
func (s *Saver) GetTuple(ctx context.Context, cfg checkpoint.Config) (*checkpoint.Tuple, error) {
	var row pgx.Row
	if cfg.ThreadTS != "" {
		query := fmt.Sprintf(`
			SELECT thread_ts, parent_ts, checkpoint, metadata
			FROM %s
			WHERE thread_id = $1 AND thread_ts = $2
		`, s.tableName)
		row = s.pool.QueryRow(ctx, query, cfg.ThreadID, cfg.ThreadTS)
	} else {
		query := fmt.Sprintf(`
			SELECT thread_ts, parent_ts, checkpoint, metadata
			FROM %s
			WHERE thread_id = $1
			ORDER BY thread_ts DESC
			LIMIT 1
		`, s.tableName)
		row = s.pool.QueryRow(ctx, query, cfg.ThreadID)
	}

	var threadTS, parentTS, encCP, encMD string
	if err := row.Scan(&threadTS, &parentTS, &encCP, &encMD); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Info("no checkpoints found for thread %s", cfg.ThreadID)
			return nil, nil
		}
		serr := &checkpoint.StoreError{Op: "get", ThreadID: cfg.ThreadID, ThreadTS: cfg.ThreadTS, Err: err}
		log.Error("%v", serr)
		return nil, serr
	}

	return s.decodeTuple(cfg, cfg.ThreadID, parentTS, encCP, encMD)
}

// List yields checkpoints for one thread, or all threads when cfg is nil,
// in descending version order. Each range re-queries the store.
func (s *Saver) List(ctx context.Context, cfg *checkpoint.Config, opts checkpoint.ListOptions) iter.Seq2[*checkpoint.Tuple, error] {
	threadID := ""
	if cfg != nil {
		threadID = cfg.ThreadID
	}
	return func(yield func(*checkpoint.Tuple, error) bool) {
		query := fmt.Sprintf(`
			SELECT thread_id, thread_ts, parent_ts, checkpoint, metadata
			FROM %s
		`, s.tableName)
		var args []any
		var conds []string
		if threadID != "" {
			args = append(args, threadID)
			conds = append(conds, fmt.Sprintf("thread_id = $%d", len(args)))
		}
		if opts.Before != nil {
			args = append(args, opts.Before.ThreadTS)
			conds = append(conds, fmt.Sprintf("thread_ts < $%d", len(args)))
		}
		for i, cond := range conds {
			if i == 0 {
				query += " WHERE " + cond
			} else {
				query += " AND " + cond
			}
		}
		query += " ORDER BY thread_ts DESC"
		if opts.Limit > 0 {
			args = append(args, opts.Limit)
			query += fmt.Sprintf(" LIMIT $%d", len(args))
		}

		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			serr := &checkpoint.StoreError{Op: "list", ThreadID: threadID, Err: err}
			log.Error("%v", serr)
			yield(nil, serr)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var tid, threadTS, parentTS, encCP, encMD string
			if err := rows.Scan(&tid, &threadTS, &parentTS, &encCP, &encMD); err != nil {
				serr := &checkpoint.StoreError{Op: "list", ThreadID: threadID, Err: err}
				log.Error("%v", serr)
				yield(nil, serr)
				return
			}
			if encCP == "" || encMD == "" {
				continue
			}
			tupleCfg := checkpoint.Config{ThreadID: tid, ThreadTS: threadTS}
			tup, err := s.decodeTuple(tupleCfg, tid, parentTS, encCP, encMD)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(tup, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			serr := &checkpoint.StoreError{Op: "list", ThreadID: threadID, Err: err}
			log.Error("%v", serr)
			yield(nil, serr)
		}
	}
}

// PutAsync is the non-blocking form of Put.
func (s *Saver) PutAsync(ctx context.Context, cfg checkpoint.Config, cp *checkpoint.Checkpoint, md *checkpoint.Metadata) <-chan checkpoint.PutResult {
	return checkpoint.AsyncPut(ctx, s, cfg, cp, md)
}

// GetTupleAsync is the non-blocking form of GetTuple.
func (s *Saver) GetTupleAsync(ctx context.Context, cfg checkpoint.Config) <-chan checkpoint.GetResult {
	return checkpoint.AsyncGetTuple(ctx, s, cfg)
}

// ListAsync is the non-blocking form of List.
func (s *Saver) ListAsync(ctx context.Context, cfg *checkpoint.Config, opts checkpoint.ListOptions) <-chan checkpoint.ListItem {
	return checkpoint.AsyncList(ctx, s, cfg, opts)
}

func (s *Saver) decodeTuple(cfg checkpoint.Config, threadID, parentTS, encCP, encMD string) (*checkpoint.Tuple, error) {
	cp, err := checkpoint.DecodeCheckpoint(s.serde, encCP)
	if err != nil {
		log.Error("failed to decode checkpoint for thread %s: %v", threadID, err)
		return nil, err
	}
	md, err := checkpoint.DecodeMetadata(s.serde, encMD)
	if err != nil {
		log.Error("failed to decode metadata for thread %s: %v", threadID, err)
		return nil, err
	}
	var parent *checkpoint.Config
	if parentTS != "" {
		parent = &checkpoint.Config{ThreadID: threadID, ThreadTS: parentTS}
	}
	return &checkpoint.Tuple{
		Config:       cfg,
		Checkpoint:   cp,
		Metadata:     md,
		ParentConfig: parent,
	}, nil
}
