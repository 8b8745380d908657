// Package checkpoint defines the types and contracts for persisting
// versioned snapshots of a conversation thread, plus the blocking and
// channel-based access paths every backend implements.
package checkpoint

import (
	"context"
	"fmt"
	"iter"
	"time"
)

// Checkpoint is a snapshot of thread state at a specific version.
// TS is the version marker; callers are expected to supply markers whose
// lexical order matches chronological order (see NextTS).
type Checkpoint struct {
	V             int            `json:"v"`
	TS            string         `json:"ts"`
	ChannelValues map[string]any `json:"channel_values"`
}

// Metadata carries provenance for one checkpoint. It has no identity of
// its own and is stored and loaded alongside the checkpoint.
type Metadata struct {
	Source string         `json:"source"`
	Step   int            `json:"step"`
	Writes map[string]any `json:"writes,omitempty"`
}

// Config addresses a checkpoint. An empty ThreadTS means "latest".
type Config struct {
	ThreadID string `json:"thread_id"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// Tuple is the read-side aggregate returned by GetTuple and List.
// ParentConfig is set only when the checkpoint recorded a predecessor.
type Tuple struct {
	Config       Config
	Checkpoint   *Checkpoint
	Metadata     *Metadata
	ParentConfig *Config
}

// ListOptions narrows a List call. Before keeps only versions strictly
// older than Before.ThreadTS; Limit truncates the result when positive.
type ListOptions struct {
	Before *Config
	Limit  int
}

// Saver is the blocking checkpoint persistence contract.
//
// Put writes one checkpoint and returns a Config addressing it; threading
// that Config into the next Put records the parent chain. GetTuple returns
// nil (not an error) when no matching record exists. List yields tuples in
// descending version order; the sequence is finite and restartable, each
// range re-queries the store.
type Saver interface {
	Put(ctx context.Context, cfg Config, cp *Checkpoint, md *Metadata) (Config, error)
	GetTuple(ctx context.Context, cfg Config) (*Tuple, error)
	List(ctx context.Context, cfg *Config, opts ListOptions) iter.Seq2[*Tuple, error]
}

// PutResult is delivered by AsyncSaver.PutAsync.
type PutResult struct {
	Config Config
	Err    error
}

// GetResult is delivered by AsyncSaver.GetTupleAsync.
type GetResult struct {
	Tuple *Tuple
	Err   error
}

// ListItem is one element of an AsyncSaver.ListAsync stream.
type ListItem struct {
	Tuple *Tuple
	Err   error
}

// AsyncSaver is the non-blocking access path. Contracts are identical to
// Saver; each channel is closed once the operation completes, and sends
// respect ctx cancellation.
type AsyncSaver interface {
	PutAsync(ctx context.Context, cfg Config, cp *Checkpoint, md *Metadata) <-chan PutResult
	GetTupleAsync(ctx context.Context, cfg Config) <-chan GetResult
	ListAsync(ctx context.Context, cfg *Config, opts ListOptions) <-chan ListItem
}

// NextTS returns a version marker for a new checkpoint. Markers are
// zero-padded nanosecond timestamps, so lexical order matches creation
// order. The store itself never validates markers at write time; callers
// that supply their own must keep them lexically monotonic.
func NextTS() string {
	return fmt.Sprintf("%020d", time.Now().UnixNano())
}
