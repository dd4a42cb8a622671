package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/cbodonnell/roomsync/pkg/log"
	"github.com/cbodonnell/roomsync/pkg/messages"
	"nhooyr.io/websocket"
)

// WSConn carries one envelope per WebSocket message. Text messages hold raw
// JSON, binary messages hold zstd-compressed JSON.
type WSConn struct {
	conn       *websocket.Conn
	id         uint32
	remoteAddr string
	compress   bool
}

func NewWSConn(conn *websocket.Conn, id uint32, remoteAddr string, compress bool) *WSConn {
	conn.SetReadLimit(messages.MaxMessageSize)
	return &WSConn{
		conn:       conn,
		id:         id,
		remoteAddr: remoteAddr,
		compress:   compress,
	}
}

func (c *WSConn) ID() uint32 {
	return c.id
}

func (c *WSConn) RemoteAddr() string {
	return c.remoteAddr
}

func (c *WSConn) Send(ctx context.Context, payload []byte) error {
	typ := websocket.MessageText
	if c.compress {
		payload = messages.Compress(payload)
		typ = websocket.MessageBinary
	}

	if err := c.conn.Write(ctx, typ, payload); err != nil {
		if isWSClosed(err) {
			return &ErrConnectionClosed{}
		}
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}

	return nil
}

func (c *WSConn) Receive(ctx context.Context) ([]byte, error) {
	typ, payload, err := c.conn.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isWSClosed(err) {
			return nil, &ErrConnectionClosed{}
		}
		return nil, fmt.Errorf("failed to read message from WebSocket connection: %w", err)
	}

	if typ == websocket.MessageBinary {
		return messages.Decompress(payload)
	}
	return payload, nil
}

func (c *WSConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

func isWSClosed(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, net.ErrClosed)
}

// WSServer accepts WebSocket connections and feeds them to the same
// handlers as the TCP server.
type WSServer struct {
	address  string
	compress bool
	listener net.Listener
	ids      idAllocator
}

type NewWSServerOptions struct {
	Address  string
	Compress bool
}

// NewWSServer creates a new WebSocket server.
func NewWSServer(opts NewWSServerOptions) *WSServer {
	return &WSServer{
		address:  opts.Address,
		compress: opts.Compress,
	}
}

func (s *WSServer) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on WebSocket address %s: %v", s.address, err)
	}
	s.listener = listener
	return nil
}

func (s *WSServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start serves WebSocket upgrades until ctx is cancelled.
func (s *WSServer) Start(ctx context.Context, connectHandler ConnectHandler, disconnectHandler DisconnectHandler, messageHandler MessageHandler) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			log.Error("Failed to upgrade to WebSocket: %v", err)
			return
		}

		conn := NewWSConn(c, s.ids.Next(), r.RemoteAddr, s.compress)
		log.Info("Accepted WebSocket connection %d from %s", conn.ID(), conn.RemoteAddr())
		ServeConn(ctx, conn, connectHandler, disconnectHandler, messageHandler)
	})

	server := &http.Server{Handler: mux}
	stop := context.AfterFunc(ctx, func() {
		server.Close()
	})
	defer stop()

	log.Info("WebSocket server listening on %s", s.listener.Addr().String())
	if err := server.Serve(s.listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("WebSocket server closed")
			return nil
		}
		return fmt.Errorf("WebSocket server error: %v", err)
	}

	return nil
}
