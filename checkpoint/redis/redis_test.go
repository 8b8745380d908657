package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/checkpointgo/checkpoint"
)

func newTestSaver(t *testing.T) (*Saver, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewSaverWithSource(SharedClient(client), Options{}), mr
}

func mustPut(t *testing.T, s *Saver, cfg checkpoint.Config, ts string, values map[string]any) checkpoint.Config {
	t.Helper()

	next, err := s.Put(context.Background(), cfg, &checkpoint.Checkpoint{
		V:             1,
		TS:            ts,
		ChannelValues: values,
	}, &checkpoint.Metadata{Source: "loop", Step: 1})
	require.NoError(t, err)
	return next
}

func TestPutGetRoundTrip(t *testing.T) {
	s, _ := newTestSaver(t)
	ctx := context.Background()

	cfg := checkpoint.Config{ThreadID: "s"}
	values := map[string]any{
		"x":    float64(1),
		"blob": []byte{0xca, 0xfe},
	}
	next := mustPut(t, s, cfg, "t1", values)
	assert.Equal(t, checkpoint.Config{ThreadID: "s", ThreadTS: "t1"}, next)

	tup, err := s.GetTuple(ctx, checkpoint.Config{ThreadID: "s"})
	require.NoError(t, err)
	require.NotNil(t, tup)
	assert.Equal(t, "t1", tup.Checkpoint.TS)
	assert.Equal(t, float64(1), tup.Checkpoint.ChannelValues["x"])
	assert.Equal(t, []byte{0xca, 0xfe}, tup.Checkpoint.ChannelValues["blob"])
	assert.Equal(t, "loop", tup.Metadata.Source)
	assert.Nil(t, tup.ParentConfig)
}

func TestGetLatestResolution(t *testing.T) {
	s, _ := newTestSaver(t)
	ctx := context.Background()

	cfg := checkpoint.Config{ThreadID: "s"}
	mustPut(t, s, cfg, "t1", map[string]any{"n": float64(1)})
	mustPut(t, s, cfg, "t2", map[string]any{"n": float64(2)})
	mustPut(t, s, cfg, "t3", map[string]any{"n": float64(3)})

	tup, err := s.GetTuple(ctx, checkpoint.Config{ThreadID: "s"})
	require.NoError(t, err)
	require.NotNil(t, tup)
	assert.Equal(t, "t3", tup.Checkpoint.TS)
	assert.Equal(t, float64(3), tup.Checkpoint.ChannelValues["n"])
}

func TestGetSpecificVersion(t *testing.T) {
	s, _ := newTestSaver(t)
	ctx := context.Background()

	cfg := checkpoint.Config{ThreadID: "s"}
	mustPut(t, s, cfg, "t1", map[string]any{"n": float64(1)})
	mustPut(t, s, cfg, "t2", map[string]any{"n": float64(2)})

	tup, err := s.GetTuple(ctx, checkpoint.Config{ThreadID: "s", ThreadTS: "t1"})
	require.NoError(t, err)
	require.NotNil(t, tup)
	assert.Equal(t, "t1", tup.Checkpoint.TS)
}

func TestGetAbsentThread(t *testing.T) {
	s, _ := newTestSaver(t)

	tup, err := s.GetTuple(context.Background(), checkpoint.Config{ThreadID: "unknown"})
	assert.NoError(t, err)
	assert.Nil(t, tup)
}

func TestParentChain(t *testing.T) {
	s, _ := newTestSaver(t)
	ctx := context.Background()

	cfg := checkpoint.Config{ThreadID: "s"}
	next := mustPut(t, s, cfg, "t1", map[string]any{"x": float64(1)})

	// Threading the returned config records t1 as the parent of t2.
	mustPut(t, s, next, "t2", map[string]any{"x": float64(2)})

	tup, err := s.GetTuple(ctx, checkpoint.Config{ThreadID: "s"})
	require.NoError(t, err)
	require.NotNil(t, tup)
	assert.Equal(t, "t2", tup.Checkpoint.TS)
	require.NotNil(t, tup.ParentConfig)
	assert.Equal(t, "s", tup.ParentConfig.ThreadID)
	assert.Equal(t, "t1", tup.ParentConfig.ThreadTS)
}

func collect(t *testing.T, s *Saver, cfg *checkpoint.Config, opts checkpoint.ListOptions) []*checkpoint.Tuple {
	t.Helper()

	var tuples []*checkpoint.Tuple
	for tup, err := range s.List(context.Background(), cfg, opts) {
		require.NoError(t, err)
		tuples = append(tuples, tup)
	}
	return tuples
}

func TestListHistoryOrdering(t *testing.T) {
	s, _ := newTestSaver(t)

	cfg := checkpoint.Config{ThreadID: "s"}
	mustPut(t, s, cfg, "t1", nil)
	mustPut(t, s, cfg, "t2", nil)
	mustPut(t, s, cfg, "t3", nil)

	tuples := collect(t, s, &cfg, checkpoint.ListOptions{})
	require.Len(t, tuples, 3)
	assert.Equal(t, "t3", tuples[0].Checkpoint.TS)
	assert.Equal(t, "t2", tuples[1].Checkpoint.TS)
	assert.Equal(t, "t1", tuples[2].Checkpoint.TS)
	assert.Equal(t, "s", tuples[0].Config.ThreadID)
	assert.Equal(t, "t3", tuples[0].Config.ThreadTS)
}

func TestListBeforeFilter(t *testing.T) {
	s, _ := newTestSaver(t)

	cfg := checkpoint.Config{ThreadID: "s"}
	mustPut(t, s, cfg, "t1", nil)
	mustPut(t, s, cfg, "t2", nil)
	mustPut(t, s, cfg, "t3", nil)

	tuples := collect(t, s, &cfg, checkpoint.ListOptions{
		Before: &checkpoint.Config{ThreadID: "s", ThreadTS: "t2"},
	})
	require.Len(t, tuples, 1)
	assert.Equal(t, "t1", tuples[0].Checkpoint.TS)
}

func TestListLimit(t *testing.T) {
	s, _ := newTestSaver(t)

	cfg := checkpoint.Config{ThreadID: "s"}
	mustPut(t, s, cfg, "t1", nil)
	mustPut(t, s, cfg, "t2", nil)
	mustPut(t, s, cfg, "t3", nil)

	tuples := collect(t, s, &cfg, checkpoint.ListOptions{Limit: 2})
	require.Len(t, tuples, 2)
	assert.Equal(t, "t3", tuples[0].Checkpoint.TS)
	assert.Equal(t, "t2", tuples[1].Checkpoint.TS)
}

func TestListAllThreads(t *testing.T) {
	s, _ := newTestSaver(t)

	mustPut(t, s, checkpoint.Config{ThreadID: "a"}, "t1", nil)
	mustPut(t, s, checkpoint.Config{ThreadID: "b"}, "t2", nil)

	tuples := collect(t, s, nil, checkpoint.ListOptions{})
	require.Len(t, tuples, 2)
	assert.Equal(t, "b", tuples[0].Config.ThreadID)
	assert.Equal(t, "a", tuples[1].Config.ThreadID)
}

func TestListSkipsIncompleteRecords(t *testing.T) {
	s, mr := newTestSaver(t)

	cfg := checkpoint.Config{ThreadID: "s"}
	mustPut(t, s, cfg, "t1", nil)

	// A record without the metadata field is skipped, not surfaced.
	mr.HSet("checkpoint:s:t2", "checkpoint", "{}")

	tuples := collect(t, s, &cfg, checkpoint.ListOptions{})
	require.Len(t, tuples, 1)
	assert.Equal(t, "t1", tuples[0].Checkpoint.TS)
}

func TestListRestartable(t *testing.T) {
	s, _ := newTestSaver(t)

	cfg := checkpoint.Config{ThreadID: "s"}
	mustPut(t, s, cfg, "t1", nil)

	seq := s.List(context.Background(), &cfg, checkpoint.ListOptions{})
	first := 0
	for _, err := range seq {
		require.NoError(t, err)
		first++
	}

	// A second save is visible on the next range: the sequence re-queries.
	mustPut(t, s, cfg, "t2", nil)
	second := 0
	for _, err := range seq {
		require.NoError(t, err)
		second++
	}
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestPutRequiresThreadID(t *testing.T) {
	s, _ := newTestSaver(t)

	_, err := s.Put(context.Background(), checkpoint.Config{}, &checkpoint.Checkpoint{TS: "t1"}, &checkpoint.Metadata{})
	require.Error(t, err)
	var cerr *checkpoint.ConfigurationError
	assert.ErrorAs(t, err, &cerr)
}

func TestZeroConnSource(t *testing.T) {
	s := NewSaverWithSource(ConnSource{}, Options{})

	_, err := s.Put(context.Background(), checkpoint.Config{ThreadID: "s"}, &checkpoint.Checkpoint{TS: "t1"}, &checkpoint.Metadata{})
	require.Error(t, err)
	var cerr *checkpoint.ConfigurationError
	assert.ErrorAs(t, err, &cerr)

	_, err = s.GetTuple(context.Background(), checkpoint.Config{ThreadID: "s"})
	assert.ErrorAs(t, err, &cerr)
}

func TestGetCorruptRecord(t *testing.T) {
	s, mr := newTestSaver(t)

	mr.HSet("checkpoint:s:t1", "checkpoint", "{corrupt", "metadata", "{}")

	_, err := s.GetTuple(context.Background(), checkpoint.Config{ThreadID: "s", ThreadTS: "t1"})
	require.Error(t, err)
	var serr *checkpoint.SerializationError
	assert.ErrorAs(t, err, &serr)
}

func TestPooledSource(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewSaverWithSource(PooledClient(client), Options{})
	cfg := checkpoint.Config{ThreadID: "s"}
	mustPut(t, s, cfg, "t1", map[string]any{"x": float64(1)})

	tup, err := s.GetTuple(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, tup)
	assert.Equal(t, "t1", tup.Checkpoint.TS)
}

func TestAsyncPaths(t *testing.T) {
	s, _ := newTestSaver(t)
	ctx := context.Background()

	cfg := checkpoint.Config{ThreadID: "s"}
	res := <-s.PutAsync(ctx, cfg, &checkpoint.Checkpoint{V: 1, TS: "t1", ChannelValues: map[string]any{"x": float64(1)}}, &checkpoint.Metadata{Source: "loop"})
	require.NoError(t, res.Err)
	assert.Equal(t, "t1", res.Config.ThreadTS)

	got := <-s.GetTupleAsync(ctx, cfg)
	require.NoError(t, got.Err)
	require.NotNil(t, got.Tuple)
	assert.Equal(t, "t1", got.Tuple.Checkpoint.TS)

	var count int
	for item := range s.ListAsync(ctx, &cfg, checkpoint.ListOptions{}) {
		require.NoError(t, item.Err)
		count++
	}
	assert.Equal(t, 1, count)
}

func TestScenario(t *testing.T) {
	s, _ := newTestSaver(t)
	ctx := context.Background()

	cfg := checkpoint.Config{ThreadID: "s"}
	next := mustPut(t, s, cfg, "t1", map[string]any{"x": float64(1)})

	tup, err := s.GetTuple(ctx, checkpoint.Config{ThreadID: "s"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), tup.Checkpoint.ChannelValues["x"])
	assert.Nil(t, tup.ParentConfig)

	mustPut(t, s, next, "t2", map[string]any{"x": float64(2)})

	tup, err = s.GetTuple(ctx, checkpoint.Config{ThreadID: "s"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), tup.Checkpoint.ChannelValues["x"])
	require.NotNil(t, tup.ParentConfig)
	assert.Equal(t, "t1", tup.ParentConfig.ThreadTS)

	tuples := collect(t, s, &cfg, checkpoint.ListOptions{})
	require.Len(t, tuples, 2)
	assert.Equal(t, "t2", tuples[0].Checkpoint.TS)
	assert.Equal(t, "t1", tuples[1].Checkpoint.TS)
}
