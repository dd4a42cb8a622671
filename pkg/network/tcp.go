package network

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/cbodonnell/roomsync/pkg/log"
)

// ConnectHandler runs once per accepted connection, before its first message.
type ConnectHandler func(ctx context.Context, conn Conn)

// DisconnectHandler runs exactly once when a connection's loop ends.
type DisconnectHandler func(conn Conn)

// MessageHandler handles one received payload. It runs on the connection's
// own loop, so messages from one connection are handled in order.
type MessageHandler func(ctx context.Context, conn Conn, payload []byte)

// ServeConn is the per-connection dispatch loop shared by every transport.
// It returns when the peer goes away, ctx is cancelled or a read fails.
func ServeConn(ctx context.Context, conn Conn, connectHandler ConnectHandler, disconnectHandler DisconnectHandler, messageHandler MessageHandler) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		if disconnectHandler != nil {
			disconnectHandler(conn)
		}
		conn.Close()
	}()

	if connectHandler != nil {
		connectHandler(ctx, conn)
	}

	for {
		payload, err := conn.Receive(ctx)
		if err != nil {
			if IsConnectionClosed(err) || ctx.Err() != nil {
				log.Debug("Connection %d closed", conn.ID())
				return
			}
			log.Error("Error reading message from connection %d: %v", conn.ID(), err)
			return
		}
		if len(payload) == 0 {
			continue
		}

		messageHandler(ctx, conn, payload)
	}
}

// TCPServer accepts framed TCP connections.
type TCPServer struct {
	address  string
	compress bool
	listener net.Listener
}

type NewTCPServerOptions struct {
	Address  string
	Compress bool
}

// NewTCPServer creates a new TCP server.
func NewTCPServer(opts NewTCPServerOptions) *TCPServer {
	return &TCPServer{
		address:  opts.Address,
		compress: opts.Compress,
	}
}

// Listen binds the listening socket. Start calls it if it has not been called.
func (s *TCPServer) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on TCP address %s: %v", s.address, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start accepts connections until ctx is cancelled, serving each on its own goroutine.
func (s *TCPServer) Start(ctx context.Context, connectHandler ConnectHandler, disconnectHandler DisconnectHandler, messageHandler MessageHandler) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	log.Info("TCP server listening on %s", s.listener.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		s.listener.Close()
	})
	defer stop()

	for {
		c, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Info("TCP server closed")
				return nil
			}
			log.Error("Failed to accept TCP connection: %v", err)
			continue
		}

		conn, err := NewTCPConn(c, ConnOptions{Compress: s.compress})
		if err != nil {
			log.Error("Failed to set up TCP connection from %s: %v", c.RemoteAddr().String(), err)
			c.Close()
			continue
		}

		log.Info("Accepted TCP connection %d from %s", conn.ID(), conn.RemoteAddr())
		go ServeConn(ctx, conn, connectHandler, disconnectHandler, messageHandler)
	}
}
