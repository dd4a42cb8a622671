package messages

import (
	"strings"
	"testing"

	"github.com/cbodonnell/roomsync/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float(v float64) *float64 {
	return &v
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantTypes []MessageType
		wantErr   bool
	}{
		{
			name:      "get_game",
			input:     `{"get_game": {"room1": {"roomID": 1, "objects": [], "players": [], "npcs": []}}}`,
			wantTypes: []MessageType{MessageTypeGetGame},
		},
		{
			name:      "get_player",
			input:     `{"get_player": {"id": 7, "x": 10, "y": 20}}`,
			wantTypes: []MessageType{MessageTypeGetPlayer},
		},
		{
			name:      "update_position",
			input:     `{"update_position": {"id": 7, "x": 1}}`,
			wantTypes: []MessageType{MessageTypeUpdatePosition},
		},
		{
			name:      "update_npc_position",
			input:     `{"update_npc_position": {"id": 3, "spriteState": 2}}`,
			wantTypes: []MessageType{MessageTypeUpdateNPCPosition},
		},
		{
			name:      "generic update",
			input:     `{"type": "update", "player_id": "7", "data": {"x": 42, "y": 9}}`,
			wantTypes: []MessageType{MessageTypeUpdate},
		},
		{
			name:      "two keys run in enumeration order",
			input:     `{"update_position": {"id": 1, "x": 1}, "get_player": {"id": 1}}`,
			wantTypes: []MessageType{MessageTypeGetPlayer, MessageTypeUpdatePosition},
		},
		{
			name:      "status ack",
			input:     `{"status": "ok"}`,
			wantTypes: []MessageType{MessageTypeStatus},
		},
		{
			name:      "client id",
			input:     `{"client_id": 12}`,
			wantTypes: []MessageType{MessageTypeClientID},
		},
		{
			name:    "not json",
			input:   `{"get_game": `,
			wantErr: true,
		},
		{
			name:    "no recognized key",
			input:   `{"hello": "world"}`,
			wantErr: true,
		},
		{
			name:    "unknown type",
			input:   `{"type": "teleport", "player_id": 1}`,
			wantErr: true,
		},
		{
			name:    "update without player id",
			input:   `{"type": "update", "data": {"x": 1}}`,
			wantErr: true,
		},
		{
			name:    "sprite state out of range",
			input:   `{"update_position": {"id": 1, "spriteState": 9}}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsDecodeError(err))
				return
			}
			require.NoError(t, err)

			gotTypes := make([]MessageType, len(got))
			for i, msg := range got {
				gotTypes[i] = msg.Type()
			}
			assert.Equal(t, tt.wantTypes, gotTypes)
		})
	}
}

func TestDecode_payloads(t *testing.T) {
	msgs, err := Decode([]byte(`{"type": "update", "player_id": "7", "data": {"x": 42, "y": 9}}`))
	require.NoError(t, err)
	update := msgs[0].(*Update)
	assert.Equal(t, types.EntityID(7), update.PlayerID)
	assert.Equal(t, 42.0, *update.Data.X)
	assert.Equal(t, 9.0, *update.Data.Y)

	msgs, err = Decode([]byte(`{"update_position": {"id": 7, "x": 3}}`))
	require.NoError(t, err)
	patch := msgs[0].(*UpdatePosition).Patch
	assert.Equal(t, types.EntityID(7), patch.ID)
	assert.Equal(t, 3.0, *patch.X)
	assert.Nil(t, patch.Y)
	assert.Nil(t, patch.Width)
	assert.Nil(t, patch.Height)
	assert.Nil(t, patch.SpriteState)

	msgs, err = Decode([]byte(`{"get_player": {"id": 7, "x": 10, "y": 20, "width": 50, "height": 50, "spriteState": 3, "skin": 1, "shields": 2, "room": 1}}`))
	require.NoError(t, err)
	assert.Equal(t, types.Player{ID: 7, X: 10, Y: 20, Width: 50, Height: 50, SpriteState: types.SpriteStateRight, Skin: 1, Shields: 2, Room: 1}, msgs[0].(*GetPlayer).Player)

	msgs, err = Decode([]byte(`{"status": "error", "error": "bad"}`))
	require.NoError(t, err)
	assert.Equal(t, &Status{Status: StatusError, Error: "bad"}, msgs[0])

	msgs, err = Decode([]byte(`{"get_game": null}`))
	require.NoError(t, err)
	assert.Nil(t, msgs[0].(*GetGame).Game)
}

func TestEncode(t *testing.T) {
	b, err := Encode(OK())
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": "ok"}`, string(b))

	b, err = Encode(Failure("no recognized key"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": "error", "error": "no recognized key"}`, string(b))

	b, err = Encode(&Update{PlayerID: 7, Data: UpdateData{X: float(42), Y: float(9)}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type": "update", "player_id": 7, "data": {"x": 42, "y": 9}}`, string(b))

	b, err = Encode(&UpdatePosition{Patch: types.EntityPatch{ID: 2, Y: float(5)}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"update_position": {"id": 2, "y": 5}}`, string(b))
	assert.False(t, strings.Contains(string(b), "\n"))

	b, err = Encode(&ClientID{ClientID: 9}, &GetGame{Game: types.NewGame(1)})
	require.NoError(t, err)
	msgs, err := Decode(b)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, types.NewGame(1), msgs[0].(*GetGame).Game)
	assert.Equal(t, types.EntityID(9), msgs[1].(*ClientID).ClientID)

	_, err = Encode()
	assert.Error(t, err)
}

func TestCompress(t *testing.T) {
	b, err := Encode(&GetGame{Game: types.NewGame(2)})
	require.NoError(t, err)

	compressed := Compress(b)
	got, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	_, err = Decompress([]byte("not zstd"))
	assert.Error(t, err)
}
