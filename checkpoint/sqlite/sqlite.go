// Package sqlite implements the checkpoint.Saver contract on SQLite, for
// single-process deployments that need durable history without a server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/checkpointgo/checkpoint"
	"github.com/smallnest/checkpointgo/log"
	"github.com/smallnest/checkpointgo/serde"
)

// Saver persists checkpoints in a SQLite database file.
type Saver struct {
	db        *sql.DB
	tableName string
	serde     serde.Serializer
}

var (
	_ checkpoint.Saver      = (*Saver)(nil)
	_ checkpoint.AsyncSaver = (*Saver)(nil)
)

// Options configuration for the SQLite saver
type Options struct {
	Path      string
	TableName string           // Default "checkpoints"
	Serde     serde.Serializer // Default serde.JSONBinary
}

// NewSaver opens the database and creates the schema if needed.
func NewSaver(opts Options) (*Saver, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}
	sd := opts.Serde
	if sd == nil {
		sd = serde.JSONBinary{}
	}

	saver := &Saver{
		db:        db,
		tableName: tableName,
		serde:     sd,
	}
	if err := saver.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return saver, nil
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

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Saver) Close() error {
	return s.db.Close()
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
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(thread_id, thread_ts) DO UPDATE SET
			parent_ts = excluded.parent_ts,
			checkpoint = excluded.checkpoint,
			metadata = excluded.metadata
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query, cfg.ThreadID, cp.TS, cfg.ThreadTS, encCP, encMD)
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
	var row *sql.Row
	if cfg.ThreadTS != "" {
		query := fmt.Sprintf(`
			SELECT thread_ts, parent_ts, checkpoint, metadata
			FROM %s
			WHERE thread_id = ? AND thread_ts = ?
		`, s.tableName)
		row = s.db.QueryRowContext(ctx, query, cfg.ThreadID, cfg.ThreadTS)
	} else {
		query := fmt.Sprintf(`
			SELECT thread_ts, parent_ts, checkpoint, metadata
			FROM %s
			WHERE thread_id = ?
			ORDER BY thread_ts DESC
			LIMIT 1
		`, s.tableName)
		row = s.db.QueryRowContext(ctx, query, cfg.ThreadID)
	}

	var threadTS, parentTS, encCP, encMD string
	if err := row.Scan(&threadTS, &parentTS, &encCP, &encMD); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
			conds = append(conds, "thread_id = ?")
			args = append(args, threadID)
		}
		if opts.Before != nil {
			conds = append(conds, "thread_ts < ?")
			args = append(args, opts.Before.ThreadTS)
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
			query += " LIMIT ?"
			args = append(args, opts.Limit)
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
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
