package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Conn is a duplex message stream to one peer.
type Conn interface {
	// ID is the connection's identity, stable for its lifetime.
	ID() uint32
	// Send writes one whole message.
	Send(ctx context.Context, payload []byte) error
	// Receive blocks until one whole message has arrived.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
	RemoteAddr() string
}

type ConnOptions struct {
	// Compress zstd-compresses outgoing frames
	Compress bool
	// ID overrides the descriptor-derived identity when non-zero
	ID uint32
}

// TCPConn is a framed connection over a stream socket.
type TCPConn struct {
	conn      net.Conn
	id        uint32
	reader    *FrameReader
	writeLock sync.Mutex
	compress  bool
}

// NewTCPConn wraps conn. Unless opts.ID is set, the identity is the socket's descriptor.
func NewTCPConn(conn net.Conn, opts ConnOptions) (*TCPConn, error) {
	id := opts.ID
	if id == 0 {
		fd, err := ConnIdentity(conn)
		if err != nil {
			return nil, fmt.Errorf("failed to derive connection identity: %v", err)
		}
		id = fd
	}

	return &TCPConn{
		conn:     conn,
		id:       id,
		reader:   NewFrameReader(conn),
		compress: opts.Compress,
	}, nil
}

func (c *TCPConn) ID() uint32 {
	return c.id
}

func (c *TCPConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Send writes the payload as one frame. Concurrent senders are serialized so
// frames never interleave.
func (c *TCPConn) Send(ctx context.Context, payload []byte) error {
	frame, err := EncodeFrame(payload, c.compress)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %v", err)
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}

	if _, err := c.conn.Write(frame); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return &ErrConnectionClosed{}
		}
		return fmt.Errorf("failed to write message to TCP connection: %w", err)
	}

	return nil
}

// Receive reads the next frame. Cancelling ctx unblocks a pending read.
func (c *TCPConn) Receive(ctx context.Context) ([]byte, error) {
	c.conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	payload, err := c.reader.ReadFrame()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, &ErrConnectionClosed{}
		}
		return nil, err
	}

	return payload, nil
}

func (c *TCPConn) Close() error {
	return c.conn.Close()
}

// ConnIdentity returns the platform descriptor of the socket behind conn.
func ConnIdentity(conn net.Conn) (uint32, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, fmt.Errorf("connection of type %T does not expose a descriptor", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("failed to get raw connection: %v", err)
	}

	var id uint32
	if err := raw.Control(func(fd uintptr) {
		id = uint32(fd)
	}); err != nil {
		return 0, fmt.Errorf("failed to read descriptor: %v", err)
	}

	return id, nil
}

// WSConnIDBase is the first identity handed to connections that have no
// descriptor of their own, chosen above any realistic descriptor number.
const WSConnIDBase uint32 = 1 << 20

// idAllocator hands out identities for descriptor-less connections.
type idAllocator struct {
	next atomic.Uint32
}

func (a *idAllocator) Next() uint32 {
	return WSConnIDBase + a.next.Add(1)
}
