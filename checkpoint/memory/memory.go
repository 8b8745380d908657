// Package memory implements the checkpoint.Saver contract in process
// memory. It stores the same encoded record fields as the Redis saver, so
// round-trip semantics are identical; intended for tests and single-process
// development.
package memory

import (
	"context"
	"iter"
	"sort"
	"sync"

	"github.com/smallnest/checkpointgo/checkpoint"
	"github.com/smallnest/checkpointgo/log"
	"github.com/smallnest/checkpointgo/serde"
)

type record struct {
	checkpoint string
	metadata   string
	parentTS   string
}

// Saver keeps checkpoints in a mutex-guarded map keyed by thread id and
// version marker.
type Saver struct {
	mu      sync.RWMutex
	threads map[string]map[string]record
	serde   serde.Serializer
}

var (
	_ checkpoint.Saver      = (*Saver)(nil)
	_ checkpoint.AsyncSaver = (*Saver)(nil)
)

// NewSaver creates an empty in-memory saver.
func NewSaver() *Saver {
	return &Saver{
		threads: make(map[string]map[string]record),
		serde:   serde.JSONBinary{},
	}
}

// Put writes one checkpoint and returns a Config addressing it.
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

	s.mu.Lock()
	defer s.mu.Unlock()
	versions, ok := s.threads[cfg.ThreadID]
	if !ok {
		versions = make(map[string]record)
		s.threads[cfg.ThreadID] = versions
	}
	versions[cp.TS] = record{checkpoint: encCP, metadata: encMD, parentTS: cfg.ThreadTS}

	return checkpoint.Config{ThreadID: cfg.ThreadID, ThreadTS: cp.TS}, nil
}

// GetTuple fetches the checkpoint addressed by cfg, resolving to the
// latest version when cfg.ThreadTS is empty.
func (s *Saver) GetTuple(ctx context.Context, cfg checkpoint.Config) (*checkpoint.Tuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.threads[cfg.ThreadID]
	if len(versions) == 0 {
		return nil, nil
	}

	ts := cfg.ThreadTS
	if ts == "" {
		for v := range versions {
			if v > ts {
				ts = v
			}
		}
	}
	rec, ok := versions[ts]
	if !ok {
		return nil, nil
	}
	return s.decodeTuple(cfg, cfg.ThreadID, ts, rec)
}

// List yields checkpoints in descending version order. Each range takes a
// fresh snapshot of the store.
func (s *Saver) List(ctx context.Context, cfg *checkpoint.Config, opts checkpoint.ListOptions) iter.Seq2[*checkpoint.Tuple, error] {
	threadID := ""
	if cfg != nil {
		threadID = cfg.ThreadID
	}
	return func(yield func(*checkpoint.Tuple, error) bool) {
		type entry struct {
			threadID string
			ts       string
			rec      record
		}

		s.mu.RLock()
		var entries []entry
		for tid, versions := range s.threads {
			if threadID != "" && tid != threadID {
				continue
			}
			for ts, rec := range versions {
				entries = append(entries, entry{threadID: tid, ts: ts, rec: rec})
			}
		}
		s.mu.RUnlock()

		if opts.Before != nil {
			filtered := entries[:0]
			for _, e := range entries {
				if e.ts < opts.Before.ThreadTS {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].ts > entries[j].ts })
		if opts.Limit > 0 && len(entries) > opts.Limit {
			entries = entries[:opts.Limit]
		}

		for _, e := range entries {
			if e.rec.checkpoint == "" || e.rec.metadata == "" {
				continue
			}
			tupleCfg := checkpoint.Config{ThreadID: e.threadID, ThreadTS: e.ts}
			tup, err := s.decodeTuple(tupleCfg, e.threadID, e.ts, e.rec)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(tup, nil) {
				return
			}
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

func (s *Saver) decodeTuple(cfg checkpoint.Config, threadID, ts string, rec record) (*checkpoint.Tuple, error) {
	cp, err := checkpoint.DecodeCheckpoint(s.serde, rec.checkpoint)
	if err != nil {
		log.Error("failed to decode checkpoint for thread %s ts %s: %v", threadID, ts, err)
		return nil, err
	}
	md, err := checkpoint.DecodeMetadata(s.serde, rec.metadata)
	if err != nil {
		log.Error("failed to decode metadata for thread %s ts %s: %v", threadID, ts, err)
		return nil, err
	}
	var parent *checkpoint.Config
	if rec.parentTS != "" {
		parent = &checkpoint.Config{ThreadID: threadID, ThreadTS: rec.parentTS}
	}
	return &checkpoint.Tuple{
		Config:       cfg,
		Checkpoint:   cp,
		Metadata:     md,
		ParentConfig: parent,
	}, nil
}
