package redis

import (
	"context"

	"github.com/smallnest/checkpointgo/checkpoint"
)

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
