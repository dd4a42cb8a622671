package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cbodonnell/roomsync/pkg/game"
	"github.com/cbodonnell/roomsync/pkg/game/types"
	"github.com/cbodonnell/roomsync/pkg/log"
	"github.com/cbodonnell/roomsync/pkg/messages"
	"github.com/cbodonnell/roomsync/pkg/network"
	"github.com/cbodonnell/roomsync/pkg/queue"
	"github.com/cbodonnell/roomsync/pkg/state"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultServerHostname = "127.0.0.1"
	DefaultServerTCPPort  = 5766
	// OutboundQueueSize bounds the messages waiting to be sent to the server
	OutboundQueueSize = 100
)

// NetworkManager is the client side of the connection: it keeps the local
// shadow of the world up to date and sends the local player's changes.
type NetworkManager struct {
	address       string
	webSocket     bool
	compress      bool
	retryPolicy   network.RetryPolicy
	outboundQueue queue.Queue
	store         *state.Store
	handler       *game.ClientHandler
	room          atomic.Int64

	connLock sync.Mutex
	conn     network.Conn
}

type NewNetworkManagerOptions struct {
	// Address is host:port of the server
	Address string
	// WebSocket dials ws://Address/ instead of a framed TCP connection
	WebSocket     bool
	Compress      bool
	RetryPolicy   network.RetryPolicy
	OutboundQueue queue.Queue
	// Store is the local shadow of the world
	Store *state.Store
}

// NewNetworkManager creates a new network manager.
func NewNetworkManager(opts NewNetworkManagerOptions) *NetworkManager {
	outboundQueue := opts.OutboundQueue
	if outboundQueue == nil {
		outboundQueue = queue.NewInMemoryQueue(OutboundQueueSize)
	}
	retryPolicy := opts.RetryPolicy
	if retryPolicy.MaxAttempts == 0 {
		retryPolicy = network.DefaultRetryPolicy()
	}

	m := &NetworkManager{
		address:       opts.Address,
		webSocket:     opts.WebSocket,
		compress:      opts.Compress,
		retryPolicy:   retryPolicy,
		outboundQueue: outboundQueue,
		store:         opts.Store,
		handler:       game.NewClientHandler(opts.Store),
	}
	m.room.Store(1)
	return m
}

// Connect dials the server. Start calls it if it has not been called.
func (m *NetworkManager) Connect(ctx context.Context) error {
	var conn network.Conn
	var err error
	if m.webSocket {
		conn, err = DialWS(ctx, fmt.Sprintf("ws://%s/", m.address), m.retryPolicy, m.compress)
	} else {
		conn, err = network.Connect(ctx, m.address, m.retryPolicy, network.ConnOptions{Compress: m.compress})
	}
	if err != nil {
		return err
	}

	m.connLock.Lock()
	m.conn = conn
	m.connLock.Unlock()
	return nil
}

// Start runs the inbound and outbound loops until the server goes away or
// ctx is cancelled. A connection closed by the server is not an error.
func (m *NetworkManager) Start(ctx context.Context) error {
	if m.getConn() == nil {
		if err := m.Connect(ctx); err != nil {
			return err
		}
	}
	conn := m.getConn()
	defer conn.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.inbound(gctx, conn)
	})
	g.Go(func() error {
		return m.outbound(gctx, conn)
	})

	err := g.Wait()
	m.dropUnsent()
	if network.IsConnectionClosed(err) {
		log.Info("Server closed the connection")
		return nil
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *NetworkManager) inbound(ctx context.Context, conn network.Conn) error {
	for {
		payload, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		if len(payload) == 0 {
			continue
		}
		m.handler.HandleMessage(payload)
	}
}

func (m *NetworkManager) outbound(ctx context.Context, conn network.Conn) error {
	for {
		item, err := m.outboundQueue.Dequeue(ctx)
		if err != nil {
			return err
		}
		pending, err := m.outboundQueue.ReadAllMessages()
		if err != nil {
			return fmt.Errorf("failed to read outbound queue: %v", err)
		}

		for _, item := range append([]interface{}{item}, pending...) {
			msg, ok := item.(messages.Message)
			if !ok {
				log.Error("Dropping outbound item of type %T", item)
				continue
			}
			b, err := messages.Encode(msg)
			if err != nil {
				log.Error("Failed to encode %s: %v", msg.Type(), err)
				continue
			}
			if err := conn.Send(ctx, b); err != nil {
				return err
			}
		}
	}
}

// dropUnsent discards messages queued for a connection that is gone; they
// describe a session the server no longer knows about.
func (m *NetworkManager) dropUnsent() {
	unsent := m.outboundQueue.Size()
	if unsent == 0 {
		return
	}
	log.Warn("Dropping %d unsent messages", unsent)
	if err := m.outboundQueue.ClearQueue(); err != nil {
		log.Error("Failed to clear outbound queue: %v", err)
	}
}

func (m *NetworkManager) getConn() network.Conn {
	m.connLock.Lock()
	defer m.connLock.Unlock()
	return m.conn
}

// ClientID is the id the server assigned to this client, or 0 before the
// server has sent one.
func (m *NetworkManager) ClientID() types.EntityID {
	return m.handler.ClientID()
}

// MyRoom returns a copy of the room the local player is in.
func (m *NetworkManager) MyRoom() (*types.Room, bool) {
	return m.store.Room(types.RoomKey(int(m.room.Load())))
}

// Announce sends the full local player record. A zero player id is filled
// in with the client id.
func (m *NetworkManager) Announce(ctx context.Context, player types.Player) error {
	if player.ID == 0 {
		player.ID = m.ClientID()
	}
	m.room.Store(int64(player.Room))
	return m.outboundQueue.Enqueue(ctx, &messages.GetPlayer{Player: player})
}

// SetPosition sends the local player's new position. It blocks while the
// outbound queue is full.
func (m *NetworkManager) SetPosition(ctx context.Context, x, y float64) error {
	return m.outboundQueue.Enqueue(ctx, &messages.Update{
		PlayerID: m.ClientID(),
		Data:     messages.UpdateData{X: &x, Y: &y},
	})
}

// RequestGame asks the server for the whole world.
func (m *NetworkManager) RequestGame(ctx context.Context) error {
	return m.outboundQueue.Enqueue(ctx, &messages.GetGame{})
}
