package network

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cbodonnell/roomsync/pkg/log"
	"golang.org/x/sync/errgroup"
)

// DefaultSendTimeout bounds one write to one client during a fan-out.
const DefaultSendTimeout = 2 * time.Second

// NetworkManager owns the servers and the client registry on the server side.
type NetworkManager struct {
	ClientManager  *ClientManager
	TCPServer      *TCPServer
	WSServer       *WSServer
	messageHandler MessageHandler
	sendTimeout    time.Duration
}

type NewNetworkManagerOptions struct {
	ClientManager *ClientManager
	TCPAddress    string
	// WSAddress enables the WebSocket server when set
	WSAddress      string
	Compress       bool
	MessageHandler MessageHandler
	// SendTimeout bounds each send; a client that misses it is dropped.
	// Zero means DefaultSendTimeout.
	SendTimeout time.Duration
}

func NewNetworkManager(opts NewNetworkManagerOptions) *NetworkManager {
	sendTimeout := opts.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	n := &NetworkManager{
		ClientManager: opts.ClientManager,
		TCPServer: NewTCPServer(NewTCPServerOptions{
			Address:  opts.TCPAddress,
			Compress: opts.Compress,
		}),
		messageHandler: opts.MessageHandler,
		sendTimeout:    sendTimeout,
	}
	if opts.WSAddress != "" {
		n.WSServer = NewWSServer(NewWSServerOptions{
			Address:  opts.WSAddress,
			Compress: opts.Compress,
		})
	}
	return n
}

// Listen binds every configured server so their addresses are known before Start.
func (n *NetworkManager) Listen() error {
	if err := n.TCPServer.Listen(); err != nil {
		return err
	}
	if n.WSServer != nil {
		if err := n.WSServer.Listen(); err != nil {
			return err
		}
	}
	return nil
}

// Start runs the servers until ctx is cancelled or one of them fails.
func (n *NetworkManager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.TCPServer.Start(ctx, n.handleConnect, n.handleDisconnect, n.messageHandler)
	})
	if n.WSServer != nil {
		g.Go(func() error {
			return n.WSServer.Start(ctx, n.handleConnect, n.handleDisconnect, n.messageHandler)
		})
	}
	return g.Wait()
}

func (n *NetworkManager) handleConnect(ctx context.Context, conn Conn) {
	client := n.ClientManager.ConnectClient(conn)
	log.Info("Client %d connected from %s (session %s)", client.ID, client.RemoteAddr, client.SessionID)
}

func (n *NetworkManager) handleDisconnect(conn Conn) {
	if n.ClientManager.DisconnectClient(conn.ID(), conn) {
		log.Info("Client %d disconnected", conn.ID())
		return
	}
	// already dropped by a timed out send, or replaced by a newer connection
	log.Debug("Client %d disconnected after leaving the registry", conn.ID())
}

func (n *NetworkManager) SendToClient(ctx context.Context, clientID uint32, payload []byte) error {
	client, err := n.ClientManager.GetClient(clientID)
	if err != nil {
		return fmt.Errorf("failed to get client %d: %v", clientID, err)
	}

	if err := n.send(ctx, client, payload); err != nil {
		return fmt.Errorf("failed to send message to client %d: %w", clientID, err)
	}

	return nil
}

func (n *NetworkManager) SendToAll(ctx context.Context, payload []byte) {
	n.fanOut(ctx, n.ClientManager.GetClients(), payload)
}

// SendToAllExcept sends to every client but the one with clientID, usually the sender.
func (n *NetworkManager) SendToAllExcept(ctx context.Context, clientID uint32, payload []byte) {
	clients := n.ClientManager.GetClients()
	recipients := clients[:0]
	for _, client := range clients {
		if client.ID != clientID {
			recipients = append(recipients, client)
		}
	}
	n.fanOut(ctx, recipients, payload)
}

// fanOut sends to every client concurrently and returns once each send has
// finished or timed out, so one slow client delays a broadcast by at most
// the send timeout.
func (n *NetworkManager) fanOut(ctx context.Context, clients []*Client, payload []byte) {
	var g errgroup.Group
	for _, client := range clients {
		client := client
		g.Go(func() error {
			if err := n.send(ctx, client, payload); err != nil {
				log.Error("Failed to send message to client %d: %v", client.ID, err)
			}
			return nil
		})
	}
	g.Wait()
}

// send writes to one client within the send timeout. A client that cannot
// keep up is removed from the registry and its connection closed, which
// ends its dispatch loop.
func (n *NetworkManager) send(ctx context.Context, client *Client, payload []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, n.sendTimeout)
	defer cancel()

	err := client.Conn.Send(sendCtx, payload)
	if err == nil {
		return nil
	}
	timedOut := errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(sendCtx.Err(), context.DeadlineExceeded)
	if timedOut && ctx.Err() == nil {
		log.Warn("Dropping client %d: send did not finish within %s", client.ID, n.sendTimeout)
		n.ClientManager.DisconnectClient(client.ID, client.Conn)
		client.Conn.Close()
	}
	return err
}
