package checkpoint

import (
	"testing"

	"github.com/smallnest/checkpointgo/serde"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointCodecRoundTrip(t *testing.T) {
	s := serde.JSONBinary{}

	cp := &Checkpoint{
		V:  1,
		TS: NextTS(),
		ChannelValues: map[string]any{
			"messages": []any{"hi"},
			"blob":     []byte{0x01, 0x02},
		},
	}

	raw, err := EncodeCheckpoint(s, cp)
	require.NoError(t, err)

	got, err := DecodeCheckpoint(s, raw)
	require.NoError(t, err)
	assert.Equal(t, cp.V, got.V)
	assert.Equal(t, cp.TS, got.TS)
	assert.Equal(t, []byte{0x01, 0x02}, got.ChannelValues["blob"])
	assert.Equal(t, []any{"hi"}, got.ChannelValues["messages"])
}

func TestMetadataCodecRoundTrip(t *testing.T) {
	s := serde.JSONBinary{}

	md := &Metadata{
		Source: "loop",
		Step:   3,
		Writes: map[string]any{"chatbot": "ok"},
	}

	raw, err := EncodeMetadata(s, md)
	require.NoError(t, err)

	got, err := DecodeMetadata(s, raw)
	require.NoError(t, err)
	assert.Equal(t, md, got)
}

func TestDecodeCheckpointMissingTS(t *testing.T) {
	s := serde.JSONBinary{}

	_, err := DecodeCheckpoint(s, `{"v":1}`)
	require.Error(t, err)
	var serr *SerializationError
	assert.ErrorAs(t, err, &serr)
}

func TestDecodeCheckpointCorruptData(t *testing.T) {
	s := serde.JSONBinary{}

	_, err := DecodeCheckpoint(s, "{corrupt")
	require.Error(t, err)
	var serr *SerializationError
	assert.ErrorAs(t, err, &serr)
}

func TestNextTSLexicalOrder(t *testing.T) {
	a := NextTS()
	b := NextTS()
	assert.Len(t, a, 20)
	assert.LessOrEqual(t, a, b)
}
