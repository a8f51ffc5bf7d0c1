package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/palemoky/gamestate/internal/game"
)

func TestNewCodec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", "json", false},
		{"json", "json", false},
		{"proto", "proto", false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		c, err := NewCodec(tt.name)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, c.Name())
	}
}

func TestJSONCodec_WireFormat(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+8", 8*3600)
	s := &game.State{
		SessionID:     "abc",
		CurrentPlayer: "player_1",
		Phase:         game.PhaseReadyToStart,
		PlayerCount:   2,
		LastUpdated:   time.Date(2026, 1, 2, 11, 4, 5, 123456789, loc),
	}

	data, err := JSONCodec{}.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"sessionId": "abc",
		"currentPlayer": "player_1",
		"phase": "READY_TO_START",
		"playerCount": 2,
		"lastUpdated": "2026-01-02T03:04:05.123456789Z"
	}`, string(data))

	// 编码不修改入参
	assert.Equal(t, loc, s.LastUpdated.Location())
}

func TestCodecs_RoundTrip(t *testing.T) {
	t.Parallel()

	states := []*game.State{
		game.NewDefault("fresh", time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)),
		{SessionID: "ended", Phase: game.PhaseEnded, PlayerCount: 0, LastUpdated: time.Unix(0, 1).UTC()},
		{SessionID: "会话", CurrentPlayer: "玩家", Phase: game.PhaseInProgress, PlayerCount: 42, LastUpdated: time.Date(1999, 12, 31, 23, 59, 59, 999999999, time.UTC)},
	}

	for _, codec := range []Codec{JSONCodec{}, ProtoCodec{}} {
		for _, want := range states {
			data, err := codec.Marshal(want)
			require.NoError(t, err)

			got, err := codec.Unmarshal(data)
			require.NoError(t, err, "%s: %s", codec.Name(), want.SessionID)
			assert.True(t, want.Equal(got), "%s: %+v != %+v", codec.Name(), want, got)
		}
	}
}

func TestCodecs_RejectNil(t *testing.T) {
	t.Parallel()

	_, err := JSONCodec{}.Marshal(nil)
	assert.Error(t, err)
	_, err = ProtoCodec{}.Marshal(nil)
	assert.Error(t, err)
}

func TestCodecs_RejectInvalidRecords(t *testing.T) {
	t.Parallel()

	_, err := JSONCodec{}.Unmarshal([]byte(`{"phase":"ENDED"}`))
	assert.Error(t, err, "missing sessionId")

	_, err = JSONCodec{}.Unmarshal([]byte(`{"sessionId":"a","phase":"ENDED","playerCount":-1}`))
	assert.Error(t, err, "negative count")

	_, err = ProtoCodec{}.Unmarshal([]byte{0xff, 0xff})
	assert.Error(t, err, "truncated tag")

	_, err = ProtoCodec{}.Unmarshal(nil)
	assert.Error(t, err, "empty record has no sessionId")
}

func TestProtoCodec_SkipsUnknownFields(t *testing.T) {
	t.Parallel()

	want := game.NewDefault("s1", time.Date(2026, 6, 1, 0, 0, 0, 500, time.UTC))
	data, err := ProtoCodec{}.Marshal(want)
	require.NoError(t, err)

	// 新版本追加的字段不影响旧版本解码
	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendString(data, "future")
	data = protowire.AppendTag(data, 100, protowire.VarintType)
	data = protowire.AppendVarint(data, 7)

	got, err := ProtoCodec{}.Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestProtoCodec_SmallerThanJSON(t *testing.T) {
	t.Parallel()

	s := game.NewDefault("session-123", time.Now())
	j, err := JSONCodec{}.Marshal(s)
	require.NoError(t, err)
	p, err := ProtoCodec{}.Marshal(s)
	require.NoError(t, err)
	assert.Less(t, len(p), len(j))
}
