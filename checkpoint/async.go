package checkpoint

import "context"

// AsyncPut runs s.Put on its own goroutine and delivers the result on a
// channel that is closed after the single send. Backends use it to provide
// the AsyncSaver contract over their blocking implementation.
func AsyncPut(ctx context.Context, s Saver, cfg Config, cp *Checkpoint, md *Metadata) <-chan PutResult {
	out := make(chan PutResult, 1)
	go func() {
		defer close(out)
		next, err := s.Put(ctx, cfg, cp, md)
		out <- PutResult{Config: next, Err: err}
	}()
	return out
}

// AsyncGetTuple runs s.GetTuple on its own goroutine.
func AsyncGetTuple(ctx context.Context, s Saver, cfg Config) <-chan GetResult {
	out := make(chan GetResult, 1)
	go func() {
		defer close(out)
		tup, err := s.GetTuple(ctx, cfg)
		out <- GetResult{Tuple: tup, Err: err}
	}()
	return out
}

// AsyncList streams s.List over a channel. The channel is closed when the
// sequence ends, an error is delivered, or ctx is cancelled.
func AsyncList(ctx context.Context, s Saver, cfg *Config, opts ListOptions) <-chan ListItem {
	out := make(chan ListItem)
	go func() {
		defer close(out)
		for tup, err := range s.List(ctx, cfg, opts) {
			select {
			case out <- ListItem{Tuple: tup, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}
