package redis

import (
	goredis "github.com/redis/go-redis/v9"

	"github.com/smallnest/checkpointgo/checkpoint"
)

type connKind int

const (
	connNone connKind = iota
	connShared
	connPooled
)

// ConnSource selects how a Saver obtains its Redis connection for the
// duration of one operation. The zero value is unusable and makes every
// operation fail with a ConfigurationError before any I/O.
type ConnSource struct {
	kind   connKind
	client *goredis.Client
}

// SharedClient wraps a caller-owned client. The client is reused across
// operations and never closed by the saver; its lifetime belongs to the
// caller.
func SharedClient(client *goredis.Client) ConnSource {
	return ConnSource{kind: connShared, client: client}
}

// PooledClient leases a dedicated connection from the client's pool for
// each operation and returns it on every exit path.
func PooledClient(client *goredis.Client) ConnSource {
	return ConnSource{kind: connPooled, client: client}
}

// acquire returns a ready connection and a release func. The release func
// must be called exactly once, typically via defer.
func (s ConnSource) acquire() (goredis.Cmdable, func(), error) {
	switch s.kind {
	case connShared:
		return s.client, func() {}, nil
	case connPooled:
		conn := s.client.Conn()
		return conn, func() { _ = conn.Close() }, nil
	default:
		return nil, nil, &checkpoint.ConfigurationError{Reason: "no redis client or pool configured"}
	}
}
