package network

import (
	"context"
	"net"
	"time"

	"github.com/cbodonnell/roomsync/pkg/log"
)

const (
	DefaultConnectAttempts = 5
	DefaultConnectDelay    = 500 * time.Millisecond
)

// Clock is the time source the retry policy waits on.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// RetryPolicy retries an operation a bounded number of times with a fixed delay.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Clock       Clock
}

// DefaultRetryPolicy makes 5 attempts, 500ms apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultConnectAttempts,
		Delay:       DefaultConnectDelay,
		Clock:       realClock{},
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Do calls fn until it succeeds or the attempts run out, returning the last
// error. Waiting between attempts stops early if ctx is cancelled.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	clock := p.Clock
	if clock == nil {
		clock = realClock{}
	}

	attempts := p.attempts()
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		remaining := attempts - attempt
		if remaining == 0 {
			break
		}
		log.Warn("Attempt %d of %d failed: %v. Retrying in %s (%d attempts left)", attempt, attempts, err, p.Delay, remaining)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(p.Delay):
		}
	}

	return err
}

// Connect dials a TCP server, retrying per policy.
func Connect(ctx context.Context, address string, policy RetryPolicy, opts ConnOptions) (*TCPConn, error) {
	log.Info("Connecting to TCP server at %s", address)

	dialer := &net.Dialer{}
	var conn *TCPConn
	err := policy.Do(ctx, func(attempt int) error {
		c, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return err
		}
		tc, err := NewTCPConn(c, opts)
		if err != nil {
			c.Close()
			return err
		}
		conn = tc
		return nil
	})
	if err != nil {
		return nil, &ConnectError{
			Address:  address,
			Attempts: policy.attempts(),
			Err:      err,
		}
	}

	log.Info("Connected to server at %s as connection %d", address, conn.ID())
	return conn, nil
}
