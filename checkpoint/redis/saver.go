// Package redis implements the checkpoint.Saver contract on Redis.
//
// Each checkpoint is one hash under "checkpoint:{thread_id}:{ts}" with the
// fields checkpoint, metadata and parent_ts. Writes are last-write-wins;
// the saver performs no retries, caching or locking of its own.
package redis

import (
	"context"
	"iter"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/smallnest/checkpointgo/checkpoint"
	"github.com/smallnest/checkpointgo/log"
	"github.com/smallnest/checkpointgo/serde"
)

// Saver persists checkpoints in Redis. It is stateless between calls; all
// state lives in the backing store.
type Saver struct {
	source ConnSource
	serde  serde.Serializer
	ttl    time.Duration
}

var (
	_ checkpoint.Saver      = (*Saver)(nil)
	_ checkpoint.AsyncSaver = (*Saver)(nil)
)

// Options configuration for the Redis saver
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration    // Expiration for checkpoints, default 0 (no expiration)
	Serde    serde.Serializer // Default serde.JSONBinary
}

// NewSaver creates a saver that owns its client and leases a dedicated
// connection per operation.
func NewSaver(opts Options) *Saver {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewSaverWithSource(PooledClient(client), opts)
}

// NewSaverWithSource creates a saver over an existing connection source.
func NewSaverWithSource(source ConnSource, opts Options) *Saver {
	sd := opts.Serde
	if sd == nil {
		sd = serde.JSONBinary{}
	}
	return &Saver{
		source: source,
		serde:  sd,
		ttl:    opts.TTL,
	}
}

// Put writes one checkpoint with its metadata and returns a Config
// addressing the new version. The input cfg.ThreadTS, when set, is
// recorded as the parent version.
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

	conn, release, err := s.source.acquire()
	if err != nil {
		log.Error("put: %v", err)
		return checkpoint.Config{}, err
	}
	defer release()

	key := checkpointKey(cfg.ThreadID, cp.TS)
	fields := map[string]any{
		checkpoint.FieldCheckpoint: encCP,
		checkpoint.FieldMetadata:   encMD,
		checkpoint.FieldParentTS:   cfg.ThreadTS,
	}
	if err := conn.HSet(ctx, key, fields).Err(); err != nil {
		serr := &checkpoint.StoreError{Op: "put", ThreadID: cfg.ThreadID, ThreadTS: cp.TS, Err: err}
		log.Error("%v", serr)
		return checkpoint.Config{}, serr
	}
	if s.ttl > 0 {
		if err := conn.Expire(ctx, key, s.ttl).Err(); err != nil {
			serr := &checkpoint.StoreError{Op: "put", ThreadID: cfg.ThreadID, ThreadTS: cp.TS, Err: err}
			log.Error("%v", serr)
			return checkpoint.Config{}, serr
		}
	}

	log.Info("checkpoint stored for thread %s ts %s", cfg.ThreadID, cp.TS)
	return checkpoint.Config{ThreadID: cfg.ThreadID, ThreadTS: cp.TS}, nil
}

// GetTuple fetches the checkpoint addressed by cfg, resolving to the
// latest version when cfg.ThreadTS is empty. A missing thread or version
// yields (nil, nil).
func (s *Saver) GetTuple(ctx context.Context, cfg checkpoint.Config) (*checkpoint.Tuple, error) {
	conn, release, err := s.source.acquire()
	if err != nil {
		log.Error("get: %v", err)
		return nil, err
	}
	defer release()

	var key string
	if cfg.ThreadTS != "" {
		key = checkpointKey(cfg.ThreadID, cfg.ThreadTS)
	} else {
		keys, err := conn.Keys(ctx, checkpointPattern(cfg.ThreadID)).Result()
		if err != nil {
			serr := &checkpoint.StoreError{Op: "get", ThreadID: cfg.ThreadID, Err: err}
			log.Error("%v", serr)
			return nil, serr
		}
		if len(keys) == 0 {
			log.Info("no checkpoints found for thread %s", cfg.ThreadID)
			return nil, nil
		}
		key = keys[0]
		for _, k := range keys[1:] {
			if keyTS(k) > keyTS(key) {
				key = k
			}
		}
	}

	data, err := conn.HGetAll(ctx, key).Result()
	if err != nil {
		serr := &checkpoint.StoreError{Op: "get", ThreadID: cfg.ThreadID, ThreadTS: cfg.ThreadTS, Err: err}
		log.Error("%v", serr)
		return nil, serr
	}
	if len(data) == 0 {
		log.Info("no checkpoint data found for key %s", key)
		return nil, nil
	}

	return s.decodeTuple(cfg, cfg.ThreadID, data)
}

// List yields checkpoints for one thread, or for all threads when cfg is
// nil, in descending version order. The sequence re-queries the store on
// every range; nothing is cached between calls. Records missing either
// required field are skipped.
func (s *Saver) List(ctx context.Context, cfg *checkpoint.Config, opts checkpoint.ListOptions) iter.Seq2[*checkpoint.Tuple, error] {
	threadID := ""
	if cfg != nil {
		threadID = cfg.ThreadID
	}
	return func(yield func(*checkpoint.Tuple, error) bool) {
		conn, release, err := s.source.acquire()
		if err != nil {
			log.Error("list: %v", err)
			yield(nil, err)
			return
		}
		defer release()

		keys, err := conn.Keys(ctx, checkpointPattern(threadID)).Result()
		if err != nil {
			serr := &checkpoint.StoreError{Op: "list", ThreadID: threadID, Err: err}
			log.Error("%v", serr)
			yield(nil, serr)
			return
		}

		if opts.Before != nil {
			filtered := keys[:0]
			for _, k := range keys {
				if keyTS(k) < opts.Before.ThreadTS {
					filtered = append(filtered, k)
				}
			}
			keys = filtered
		}
		sort.Slice(keys, func(i, j int) bool {
			return keyTS(keys[i]) > keyTS(keys[j])
		})
		if opts.Limit > 0 && len(keys) > opts.Limit {
			keys = keys[:opts.Limit]
		}

		for _, key := range keys {
			data, err := conn.HGetAll(ctx, key).Result()
			if err != nil {
				serr := &checkpoint.StoreError{Op: "list", ThreadID: threadID, ThreadTS: keyTS(key), Err: err}
				log.Error("%v", serr)
				yield(nil, serr)
				return
			}
			if data[checkpoint.FieldCheckpoint] == "" || data[checkpoint.FieldMetadata] == "" {
				continue
			}
			tupleCfg := checkpoint.Config{ThreadID: keyThreadID(key), ThreadTS: keyTS(key)}
			tup, err := s.decodeTuple(tupleCfg, tupleCfg.ThreadID, data)
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

// decodeTuple assembles a Tuple from one stored hash.
func (s *Saver) decodeTuple(cfg checkpoint.Config, threadID string, data map[string]string) (*checkpoint.Tuple, error) {
	cp, err := checkpoint.DecodeCheckpoint(s.serde, data[checkpoint.FieldCheckpoint])
	if err != nil {
		log.Error("failed to decode checkpoint for thread %s: %v", threadID, err)
		return nil, err
	}
	md, err := checkpoint.DecodeMetadata(s.serde, data[checkpoint.FieldMetadata])
	if err != nil {
		log.Error("failed to decode metadata for thread %s: %v", threadID, err)
		return nil, err
	}
	var parent *checkpoint.Config
	if pts := data[checkpoint.FieldParentTS]; pts != "" {
		parent = &checkpoint.Config{ThreadID: threadID, ThreadTS: pts}
	}
	return &checkpoint.Tuple{
		Config:       cfg,
		Checkpoint:   cp,
		Metadata:     md,
		ParentConfig: parent,
	}, nil
}
