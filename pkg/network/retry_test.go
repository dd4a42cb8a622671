package network

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock fires immediately and records every wait.
type fakeClock struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// blockedClock never fires.
type blockedClock struct{}

func (blockedClock) After(d time.Duration) <-chan time.Time {
	return make(chan time.Time)
}

func TestRetryPolicy_Do(t *testing.T) {
	errRefused := errors.New("connection refused")
	tests := []struct {
		name         string
		failures     int
		wantErr      bool
		wantAttempts int
		wantWaits    int
	}{
		{name: "first attempt succeeds", failures: 0, wantAttempts: 1, wantWaits: 0},
		{name: "succeeds on the third attempt", failures: 2, wantAttempts: 3, wantWaits: 2},
		{name: "succeeds on the last attempt", failures: 4, wantAttempts: 5, wantWaits: 4},
		{name: "attempts exhausted", failures: 10, wantErr: true, wantAttempts: 5, wantWaits: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{}
			policy := RetryPolicy{MaxAttempts: 5, Delay: DefaultConnectDelay, Clock: clock}

			attempts := 0
			err := policy.Do(context.Background(), func(attempt int) error {
				attempts++
				assert.Equal(t, attempts, attempt)
				if attempt <= tt.failures {
					return errRefused
				}
				return nil
			})

			if tt.wantErr {
				assert.ErrorIs(t, err, errRefused)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantAttempts, attempts)
			require.Len(t, clock.waits, tt.wantWaits)
			for _, d := range clock.waits {
				assert.Equal(t, 500*time.Millisecond, d)
			}
		})
	}
}

func TestRetryPolicy_DoCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, Delay: time.Hour, Clock: blockedClock{}}

	attempts := 0
	go cancel()
	err := policy.Do(ctx, func(attempt int) error {
		attempts++
		return errors.New("refused")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, policy.Delay)
}

func TestConnect(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		c, err := listener.Accept()
		if err == nil {
			defer c.Close()
			conn, _ := NewTCPConn(c, ConnOptions{ID: 99})
			conn.Send(context.Background(), []byte(`{"client_id":5}`))
		}
	}()

	conn, err := Connect(context.Background(), listener.Addr().String(), RetryPolicy{MaxAttempts: 1, Clock: &fakeClock{}}, ConnOptions{})
	require.NoError(t, err)
	defer conn.Close()
	assert.NotZero(t, conn.ID())

	got, err := conn.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"client_id":5}`, string(got))
}

func TestConnect_exhausted(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()
	listener.Close()

	clock := &fakeClock{}
	_, err = Connect(context.Background(), address, RetryPolicy{MaxAttempts: 5, Delay: DefaultConnectDelay, Clock: clock}, ConnOptions{})

	var connectErr *ConnectError
	require.ErrorAs(t, err, &connectErr)
	assert.Equal(t, address, connectErr.Address)
	assert.Equal(t, 5, connectErr.Attempts)
	assert.Error(t, connectErr.Unwrap())
	assert.Len(t, clock.waits, 4)
}
