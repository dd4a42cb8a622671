package game

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cbodonnell/roomsync/pkg/game/constants"
	"github.com/cbodonnell/roomsync/pkg/game/types"
	"github.com/cbodonnell/roomsync/pkg/messages"
	"github.com/cbodonnell/roomsync/pkg/network"
	"github.com/cbodonnell/roomsync/pkg/state"
	"github.com/cbodonnell/roomsync/pkg/workers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	id   uint32
	mu   sync.Mutex
	sent []string
}

func (c *recordingConn) ID() uint32 { return c.id }

func (c *recordingConn) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, string(payload))
	return nil
}

func (c *recordingConn) Receive(ctx context.Context) ([]byte, error) {
	return nil, &network.ErrConnectionClosed{}
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) RemoteAddr() string { return "test" }

func newTestStore() *state.Store {
	return state.NewStore(state.NewStoreOptions{Game: types.NewGame(constants.DefaultRoomCount)})
}

func TestServerHandler_HandleMessage(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(store *state.Store)
		payload       string
		wantReply     string
		wantBroadcast []messages.MessageType
		check         func(t *testing.T, store *state.Store)
	}{
		{
			name:          "get_player is upserted into every room",
			payload:       `{"get_player": {"id": 7, "x": 10, "y": 20, "width": 50, "height": 50, "spriteState": 1, "skin": 0, "shields": 0, "room": 1}}`,
			wantReply:     `{"status": "ok"}`,
			wantBroadcast: []messages.MessageType{messages.MessageTypeGetPlayer},
			check: func(t *testing.T, store *state.Store) {
				for _, key := range []string{"room1", "room2"} {
					room, ok := store.Room(key)
					require.True(t, ok)
					require.Len(t, room.Players, 1)
					assert.Equal(t, types.EntityID(7), room.Players[0].ID)
					assert.Equal(t, 10.0, room.Players[0].X)
				}
			},
		},
		{
			name: "generic update moves the player",
			setup: func(store *state.Store) {
				store.UpsertPlayer(types.Player{ID: 7, X: 10, Y: 20, Room: 1})
			},
			payload:       `{"type": "update", "player_id": "7", "data": {"x": 42, "y": 9}}`,
			wantReply:     `{"status": "ok"}`,
			wantBroadcast: []messages.MessageType{messages.MessageTypeUpdatePosition},
			check: func(t *testing.T, store *state.Store) {
				room, _ := store.Room("room1")
				assert.Equal(t, 42.0, room.Players[0].X)
				assert.Equal(t, 9.0, room.Players[0].Y)
			},
		},
		{
			name: "update_position patches only the given fields",
			setup: func(store *state.Store) {
				store.UpsertPlayer(types.Player{ID: 7, X: 10, Y: 20, SpriteState: types.SpriteStateDown, Room: 1})
			},
			payload:       `{"update_position": {"id": 7, "x": 11, "spriteState": 3}}`,
			wantReply:     `{"status": "ok"}`,
			wantBroadcast: []messages.MessageType{messages.MessageTypeUpdatePosition},
			check: func(t *testing.T, store *state.Store) {
				room, _ := store.Room("room2")
				assert.Equal(t, 11.0, room.Players[0].X)
				assert.Equal(t, 20.0, room.Players[0].Y)
				assert.Equal(t, types.SpriteStateRight, room.Players[0].SpriteState)
			},
		},
		{
			name:      "update_position for an unknown player is acked but not relayed",
			payload:   `{"update_position": {"id": 99, "x": 1}}`,
			wantReply: `{"status": "ok"}`,
			check: func(t *testing.T, store *state.Store) {
				assert.Equal(t, 0, store.PlayerCount())
			},
		},
		{
			name: "update_npc_position patches the NPC",
			setup: func(store *state.Store) {
				store.UpsertNPC(types.NPC{ID: 3, X: 1, Y: 1, Room: 2})
			},
			payload:       `{"update_npc_position": {"id": 3, "y": 5}}`,
			wantReply:     `{"status": "ok"}`,
			wantBroadcast: []messages.MessageType{messages.MessageTypeUpdateNPCPosition},
			check: func(t *testing.T, store *state.Store) {
				room, _ := store.Room("room2")
				assert.Equal(t, 1.0, room.NPCs[0].X)
				assert.Equal(t, 5.0, room.NPCs[0].Y)
			},
		},
		{
			name:      "malformed envelope gets an error response",
			payload:   `{"get_player": `,
			wantReply: `{"status": "error", "error": "unexpected end of JSON input"}`,
		},
		{
			name:      "unrecognized envelope gets an error response",
			payload:   `{"hello": 1}`,
			wantReply: `{"status": "error", "error": "no recognized key"}`,
		},
		{
			name:          "several keys run in order",
			payload:       `{"update_position": {"id": 4, "x": 8}, "get_player": {"id": 4, "x": 1, "room": 2}}`,
			wantReply:     `{"status": "ok"}`,
			wantBroadcast: []messages.MessageType{messages.MessageTypeGetPlayer, messages.MessageTypeUpdatePosition},
			check: func(t *testing.T, store *state.Store) {
				room, _ := store.Room("room2")
				assert.Equal(t, 8.0, room.Players[0].X)
			},
		},
		{
			name: "status from a client is ignored",
			setup: func(store *state.Store) {
				store.UpsertPlayer(types.Player{ID: 1, Room: 1})
			},
			payload:   `{"status": "ok"}`,
			wantReply: `{"status": "ok"}`,
			check: func(t *testing.T, store *state.Store) {
				assert.Equal(t, 2, store.PlayerCount())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			if tt.setup != nil {
				tt.setup(store)
			}
			out := make(chan workers.ServerMessage, 8)
			h := NewServerHandler(NewServerHandlerOptions{Store: store, ServerMessageChan: out})
			conn := &recordingConn{id: 11}

			h.HandleMessage(context.Background(), conn, []byte(tt.payload))

			require.Len(t, conn.sent, 1)
			assert.JSONEq(t, tt.wantReply, conn.sent[0])

			close(out)
			var got []messages.MessageType
			for msg := range out {
				assert.Equal(t, workers.RecipientsAllExcept, msg.Recipients)
				assert.Equal(t, uint32(11), msg.ClientID)
				for _, m := range msg.Messages {
					got = append(got, m.Type())
				}
			}
			assert.Equal(t, tt.wantBroadcast, got)

			if tt.check != nil {
				tt.check(t, store)
			}
		})
	}
}

func TestServerHandler_getGameRequest(t *testing.T) {
	store := newTestStore()
	store.UpsertPlayer(types.Player{ID: 2, X: 5, Room: 1})
	h := NewServerHandler(NewServerHandlerOptions{Store: store})
	conn := &recordingConn{id: 1}

	h.HandleMessage(context.Background(), conn, []byte(`{"get_game": null}`))

	require.Len(t, conn.sent, 1)
	msgs, err := messages.Decode([]byte(conn.sent[0]))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.Snapshot(), msgs[0].(*messages.GetGame).Game)
	assert.Equal(t, messages.OK(), msgs[1])
}

// serve runs the server handler behind a real dispatch loop on one end of a pipe.
func serve(t *testing.T, store *state.Store) (*network.TCPConn, <-chan struct{}) {
	t.Helper()
	a, b := net.Pipe()
	client, err := network.NewTCPConn(a, network.ConnOptions{ID: 1})
	require.NoError(t, err)
	server, err := network.NewTCPConn(b, network.ConnOptions{ID: 2})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	h := NewServerHandler(NewServerHandlerOptions{Store: store})
	done := make(chan struct{})
	go func() {
		network.ServeConn(context.Background(), server, nil, nil, h.HandleMessage)
		close(done)
	}()
	return client, done
}

func TestServerHandler_overConnection(t *testing.T) {
	store := newTestStore()
	client, done := serve(t, store)
	ctx := context.Background()

	exchange := func(payload string) string {
		require.NoError(t, client.Send(ctx, []byte(payload)))
		reply, err := client.Receive(ctx)
		require.NoError(t, err)
		return string(reply)
	}

	assert.JSONEq(t, `{"status": "ok"}`, exchange(`{"get_player": {"id": 7, "x": 10, "y": 20, "room": 1}}`))
	assert.JSONEq(t, `{"status": "error", "error": "no recognized key"}`, exchange(`{"nope": true}`))
	assert.JSONEq(t, `{"status": "ok"}`, exchange(`{"type": "update", "player_id": "7", "data": {"x": 42, "y": 9}}`))

	room, _ := store.Room("room1")
	assert.Equal(t, 42.0, room.Players[0].X)
	assert.Equal(t, 9.0, room.Players[0].Y)

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop did not exit after the peer closed")
	}
	// the departed player stays in the world
	assert.Equal(t, 2, store.PlayerCount())
}

func TestClientHandler_HandleMessage(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(store *state.Store)
		payloads []string
		check    func(t *testing.T, h *ClientHandler, store *state.Store)
	}{
		{
			name: "get_game replaces the shadow",
			setup: func(store *state.Store) {
				store.UpsertPlayer(types.Player{ID: 1, Room: 1})
			},
			payloads: []string{`{"get_game": {"room5": {"roomID": 5, "objects": [], "players": [], "npcs": []}}}`},
			check: func(t *testing.T, h *ClientHandler, store *state.Store) {
				assert.Equal(t, []string{"room5"}, store.RoomKeys())
				assert.Equal(t, 0, store.PlayerCount())
			},
		},
		{
			name:     "get_game without a tree is ignored",
			payloads: []string{`{"get_game": null}`},
			check: func(t *testing.T, h *ClientHandler, store *state.Store) {
				assert.Equal(t, []string{"room1", "room2"}, store.RoomKeys())
			},
		},
		{
			name: "player updates are applied",
			payloads: []string{
				`{"get_player": {"id": 3, "x": 1, "y": 1, "room": 1}}`,
				`{"update_position": {"id": 3, "x": 6}}`,
				`{"type": "update", "player_id": 3, "data": {"y": 8}}`,
			},
			check: func(t *testing.T, h *ClientHandler, store *state.Store) {
				room, _ := store.Room("room1")
				require.Len(t, room.Players, 1)
				assert.Equal(t, 6.0, room.Players[0].X)
				assert.Equal(t, 8.0, room.Players[0].Y)
			},
		},
		{
			name: "npc updates are applied",
			setup: func(store *state.Store) {
				store.UpsertNPC(types.NPC{ID: 9, Room: 1})
			},
			payloads: []string{`{"update_npc_position": {"id": 9, "x": 30, "spriteState": 2}}`},
			check: func(t *testing.T, h *ClientHandler, store *state.Store) {
				room, _ := store.Room("room1")
				assert.Equal(t, 30.0, room.NPCs[0].X)
				assert.Equal(t, types.SpriteStateLeft, room.NPCs[0].SpriteState)
			},
		},
		{
			name:     "client id is adopted",
			payloads: []string{`{"client_id": 12, "status": "ok"}`},
			check: func(t *testing.T, h *ClientHandler, store *state.Store) {
				assert.Equal(t, types.EntityID(12), h.ClientID())
			},
		},
		{
			name:     "garbage is dropped",
			payloads: []string{`not json`, `{"status": "error", "error": "bad"}`},
			check: func(t *testing.T, h *ClientHandler, store *state.Store) {
				assert.Equal(t, types.EntityID(0), h.ClientID())
				assert.Equal(t, types.NewGame(constants.DefaultRoomCount), store.Snapshot())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			if tt.setup != nil {
				tt.setup(store)
			}
			h := NewClientHandler(store)
			for _, p := range tt.payloads {
				h.HandleMessage([]byte(p))
			}
			tt.check(t, h, store)
		})
	}
}
