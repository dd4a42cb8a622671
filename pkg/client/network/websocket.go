package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cbodonnell/roomsync/pkg/log"
	"github.com/cbodonnell/roomsync/pkg/messages"
	"github.com/cbodonnell/roomsync/pkg/network"
	"github.com/gorilla/websocket"
)

// WSConn is the client end of a WebSocket connection to the server.
type WSConn struct {
	conn      *websocket.Conn
	id        uint32
	writeLock sync.Mutex
	compress  bool
}

// DialWS connects to a WebSocket server at url, retrying per policy.
func DialWS(ctx context.Context, url string, policy network.RetryPolicy, compress bool) (*WSConn, error) {
	log.Info("Connecting to WebSocket server at %s", url)

	var conn *websocket.Conn
	err := policy.Do(ctx, func(attempt int) error {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, &network.ConnectError{
			Address:  url,
			Attempts: policy.MaxAttempts,
			Err:      err,
		}
	}
	conn.SetReadLimit(messages.MaxMessageSize)

	id, err := network.ConnIdentity(conn.NetConn())
	if err != nil {
		log.Warn("Failed to read WebSocket connection descriptor: %v", err)
	}

	log.Info("Connected to server at %s as connection %d", url, id)
	return &WSConn{
		conn:     conn,
		id:       id,
		compress: compress,
	}, nil
}

func (c *WSConn) ID() uint32 {
	return c.id
}

func (c *WSConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *WSConn) Send(ctx context.Context, payload []byte) error {
	typ := websocket.TextMessage
	if c.compress {
		payload = messages.Compress(payload)
		typ = websocket.BinaryMessage
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}

	if err := c.conn.WriteMessage(typ, payload); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
			return &network.ErrConnectionClosed{}
		}
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}

	return nil
}

func (c *WSConn) Receive(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	typ, payload, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, net.ErrClosed) {
			return nil, &network.ErrConnectionClosed{}
		}
		return nil, fmt.Errorf("failed to read message from WebSocket connection: %w", err)
	}

	if typ == websocket.BinaryMessage {
		return messages.Decompress(payload)
	}
	return payload, nil
}

func (c *WSConn) Close() error {
	c.writeLock.Lock()
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeLock.Unlock()
	return c.conn.Close()
}
