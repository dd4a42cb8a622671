package network

import (
	"context"
	"net"
	"testing"
	"time"

	mocks "github.com/cbodonnell/roomsync/mocks/github.com/cbodonnell/roomsync/pkg/queue"
	"github.com/cbodonnell/roomsync/pkg/game"
	"github.com/cbodonnell/roomsync/pkg/game/constants"
	"github.com/cbodonnell/roomsync/pkg/game/types"
	"github.com/cbodonnell/roomsync/pkg/messages"
	"github.com/cbodonnell/roomsync/pkg/network"
	"github.com/cbodonnell/roomsync/pkg/state"
	"github.com/cbodonnell/roomsync/pkg/workers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newShadowStore() *state.Store {
	return state.NewStore(state.NewStoreOptions{Game: types.NewGame(constants.DefaultRoomCount)})
}

// startServer runs a full server stack on loopback ports and returns its store.
func startServer(t *testing.T, ctx context.Context) (*network.NetworkManager, *state.Store) {
	t.Helper()
	store := newShadowStore()
	serverMessageChan := make(chan workers.ServerMessage, workers.ServerMessageChannelSize)
	clientManager := network.NewClientManager()
	handler := game.NewServerHandler(game.NewServerHandlerOptions{
		Store:             store,
		ServerMessageChan: serverMessageChan,
	})
	nm := network.NewNetworkManager(network.NewNetworkManagerOptions{
		ClientManager:  clientManager,
		TCPAddress:     "127.0.0.1:0",
		WSAddress:      "127.0.0.1:0",
		MessageHandler: handler.HandleMessage,
	})
	require.NoError(t, nm.Listen())

	go workers.NewServerMessageWorker(workers.NewServerMessageWorkerOptions{
		Sender:            nm,
		ServerMessageChan: serverMessageChan,
	}).Start(ctx)
	go workers.NewConnectionEventWorker(workers.NewConnectionEventWorkerOptions{
		ConnectionEventChan: clientManager.GetConnectionEventChan(),
		Store:               store,
		ServerMessageChan:   serverMessageChan,
	}).Start(ctx)
	go nm.Start(ctx)

	return nm, store
}

func TestNetworkManager_endToEnd(t *testing.T) {
	for _, tc := range []struct {
		name      string
		webSocket bool
		compress  bool
	}{
		{name: "tcp"},
		{name: "tcp compressed", compress: true},
		{name: "websocket", webSocket: true},
		{name: "websocket compressed", webSocket: true, compress: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			server, serverStore := startServer(t, ctx)

			address := server.TCPServer.Addr().String()
			if tc.webSocket {
				address = server.WSServer.Addr().String()
			}
			shadow := newShadowStore()
			client := NewNetworkManager(NewNetworkManagerOptions{
				Address:     address,
				WebSocket:   tc.webSocket,
				RetryPolicy: network.RetryPolicy{MaxAttempts: 1},
				Store:       shadow,
			})

			done := make(chan error, 1)
			go func() {
				done <- client.Start(ctx)
			}()

			require.Eventually(t, func() bool {
				return client.ClientID() != 0
			}, 2*time.Second, 10*time.Millisecond)

			require.NoError(t, client.Announce(ctx, types.Player{X: 10, Y: 20, Width: 50, Height: 50, Room: 2}))
			require.NoError(t, client.SetPosition(ctx, 42, 9))

			id := client.ClientID()
			require.Eventually(t, func() bool {
				room, _ := serverStore.Room("room2")
				return len(room.Players) == 1 && room.Players[0].ID == id && room.Players[0].X == 42 && room.Players[0].Y == 9
			}, 2*time.Second, 10*time.Millisecond)

			require.NoError(t, client.RequestGame(ctx))
			require.Eventually(t, func() bool {
				room, ok := client.MyRoom()
				return ok && room.RoomID == 2 && len(room.Players) == 1 && room.Players[0].X == 42
			}, 2*time.Second, 10*time.Millisecond)

			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("client did not stop")
			}
		})
	}
}

func TestNetworkManager_serverGoesAway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	serverCtx, stopServer := context.WithCancel(ctx)
	defer cancel()
	server, _ := startServer(t, serverCtx)

	client := NewNetworkManager(NewNetworkManagerOptions{
		Address:     server.TCPServer.Addr().String(),
		RetryPolicy: network.RetryPolicy{MaxAttempts: 1},
		Store:       newShadowStore(),
	})
	require.NoError(t, client.Connect(ctx))

	done := make(chan error, 1)
	go func() {
		done <- client.Start(ctx)
	}()
	require.Eventually(t, func() bool {
		return client.ClientID() != 0
	}, 2*time.Second, 10*time.Millisecond)

	stopServer()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the server closing")
	}
}

func TestNetworkManager_connectFails(t *testing.T) {
	client := NewNetworkManager(NewNetworkManagerOptions{
		Address:     "127.0.0.1:1",
		RetryPolicy: network.RetryPolicy{MaxAttempts: 2},
		Store:       newShadowStore(),
	})
	err := client.Start(context.Background())
	var connectErr *network.ConnectError
	assert.ErrorAs(t, err, &connectErr)
}

func TestNetworkManager_enqueue(t *testing.T) {
	mockQueue := mocks.NewQueue(t)
	client := NewNetworkManager(NewNetworkManagerOptions{
		OutboundQueue: mockQueue,
		Store:         newShadowStore(),
	})
	ctx := context.Background()

	mockQueue.EXPECT().Enqueue(ctx, mock.MatchedBy(func(item interface{}) bool {
		update, ok := item.(*messages.Update)
		return ok && update.PlayerID == 0 && *update.Data.X == 3 && *update.Data.Y == 4
	})).Return(nil).Once()
	require.NoError(t, client.SetPosition(ctx, 3, 4))

	mockQueue.EXPECT().Enqueue(ctx, mock.MatchedBy(func(item interface{}) bool {
		announce, ok := item.(*messages.GetPlayer)
		return ok && announce.Player.Room == 2
	})).Return(nil).Once()
	require.NoError(t, client.Announce(ctx, types.Player{Room: 2}))

	room, ok := client.MyRoom()
	require.True(t, ok)
	assert.Equal(t, 2, room.RoomID)

	mockQueue.EXPECT().Enqueue(ctx, mock.Anything).Return(context.Canceled).Once()
	assert.ErrorIs(t, client.RequestGame(ctx), context.Canceled)
}

func TestNetworkManager_defaults(t *testing.T) {
	client := NewNetworkManager(NewNetworkManagerOptions{Store: newShadowStore()})
	assert.Equal(t, network.DefaultRetryPolicy().MaxAttempts, client.retryPolicy.MaxAttempts)
	assert.Equal(t, types.EntityID(0), client.ClientID())
	room, ok := client.MyRoom()
	require.True(t, ok)
	assert.Equal(t, 1, room.RoomID)
}

func TestNetworkManager_dropsUnsentOnDisconnect(t *testing.T) {
	tests := []struct {
		name      string
		unsent    int
		wantClear bool
	}{
		{name: "nothing pending", unsent: 0},
		{name: "pending messages", unsent: 2, wantClear: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockQueue := mocks.NewQueue(t)
			client := NewNetworkManager(NewNetworkManagerOptions{
				OutboundQueue: mockQueue,
				Store:         newShadowStore(),
			})

			local, remote := net.Pipe()
			conn, err := network.NewTCPConn(local, network.ConnOptions{ID: 1})
			require.NoError(t, err)
			client.conn = conn
			remote.Close()

			mockQueue.EXPECT().Dequeue(mock.Anything).RunAndReturn(func(ctx context.Context) (interface{}, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}).Once()
			mockQueue.EXPECT().Size().Return(tt.unsent).Once()
			if tt.wantClear {
				mockQueue.EXPECT().ClearQueue().Return(nil).Once()
			}

			assert.NoError(t, client.Start(context.Background()))
		})
	}
}
