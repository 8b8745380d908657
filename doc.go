// Checkpoint Go - Durable conversation checkpoints for Go agents
//
// checkpointgo persists versioned snapshots of a long-running conversation
// thread and retrieves them by thread id and version marker. It is the
// persistence side of a graph-style orchestration engine: the engine
// decides when to checkpoint, this module stores the result and hands back
// the config that links the next save into the thread's parent chain.
//
// # Quick Start
//
// Install the package:
//
//	go get github.com/smallnest/checkpointgo
//
// Basic example:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//
//		"github.com/smallnest/checkpointgo/checkpoint"
//		"github.com/smallnest/checkpointgo/checkpoint/redis"
//	)
//
//	func main() {
//		saver := redis.NewSaver(redis.Options{Addr: "localhost:6379"})
//		ctx := context.Background()
//
//		cfg := checkpoint.Config{ThreadID: "conversation-1"}
//		cfg, _ = saver.Put(ctx, cfg, &checkpoint.Checkpoint{
//			V:             1,
//			TS:            checkpoint.NextTS(),
//			ChannelValues: map[string]any{"messages": []any{"hello"}},
//		}, &checkpoint.Metadata{Source: "loop", Step: 1})
//
//		tup, _ := saver.GetTuple(ctx, checkpoint.Config{ThreadID: "conversation-1"})
//		fmt.Println(tup.Checkpoint.ChannelValues["messages"])
//	}
//
// # Packages
//
//   - checkpoint: core types, error taxonomy and the Saver/AsyncSaver contracts
//   - checkpoint/redis: Redis-backed saver, the primary backend
//   - checkpoint/postgres: PostgreSQL-backed saver over pgx
//   - checkpoint/sqlite: SQLite-backed saver for single-process use
//   - checkpoint/memory: in-memory saver for tests and development
//   - serde: hybrid JSON/binary codec used by every backend
//   - log: leveled logging shared across the module
//
// Every backend offers the same blocking and channel-based access paths,
// the same record shape and the same error behavior, so they are drop-in
// replacements for each other.
package checkpointgo
