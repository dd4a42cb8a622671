package workers

import (
	"context"
	"fmt"

	"github.com/cbodonnell/roomsync/pkg/log"
	"github.com/cbodonnell/roomsync/pkg/messages"
)

const (
	// ServerMessageChannelSize represents the size of the outbound server message channel
	ServerMessageChannelSize = 1024
)

// Sender delivers encoded envelopes to connected clients.
type Sender interface {
	SendToClient(ctx context.Context, clientID uint32, payload []byte) error
	SendToAll(ctx context.Context, payload []byte)
	SendToAllExcept(ctx context.Context, clientID uint32, payload []byte)
}

// Recipients selects who a server message goes to.
type Recipients int

const (
	RecipientsAll Recipients = iota
	RecipientsClient
	RecipientsAllExcept
)

// ServerMessage is one envelope to send. ClientID is the target for
// RecipientsClient and the excluded client for RecipientsAllExcept.
type ServerMessage struct {
	Recipients Recipients
	ClientID   uint32
	Messages   []messages.Message
	// Deferred, if set, builds more messages when the worker picks this one
	// up. Anything it reads from the world is then ordered with the
	// broadcasts queued before and after it.
	Deferred func() []messages.Message
}

type ServerMessageWorker struct {
	sender            Sender
	serverMessageChan <-chan ServerMessage
}

type NewServerMessageWorkerOptions struct {
	Sender            Sender
	ServerMessageChan <-chan ServerMessage
}

// NewServerMessageWorker creates a new ServerMessageWorker.
// The worker is the single consumer of outbound server messages, so network
// writes never happen under the store lock or on another client's loop.
func NewServerMessageWorker(opts NewServerMessageWorkerOptions) *ServerMessageWorker {
	return &ServerMessageWorker{
		sender:            opts.Sender,
		serverMessageChan: opts.ServerMessageChan,
	}
}

func (w *ServerMessageWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-w.serverMessageChan:
			if err := w.handleServerMessage(ctx, msg); err != nil {
				log.Error("Failed to handle server message: %v", err)
			}
		}
	}
}

func (w *ServerMessageWorker) handleServerMessage(ctx context.Context, msg ServerMessage) error {
	msgs := msg.Messages
	if msg.Deferred != nil {
		msgs = append(append([]messages.Message(nil), msgs...), msg.Deferred()...)
	}
	payload, err := messages.Encode(msgs...)
	if err != nil {
		return fmt.Errorf("failed to encode server message: %v", err)
	}

	switch msg.Recipients {
	case RecipientsAll:
		w.sender.SendToAll(ctx, payload)
	case RecipientsAllExcept:
		w.sender.SendToAllExcept(ctx, msg.ClientID, payload)
	case RecipientsClient:
		if err := w.sender.SendToClient(ctx, msg.ClientID, payload); err != nil {
			return fmt.Errorf("failed to send to client %d: %v", msg.ClientID, err)
		}
	default:
		return fmt.Errorf("unknown recipients: %v", msg.Recipients)
	}

	return nil
}

// Publish queues msg for the worker, giving up if ctx is done first.
func Publish(ctx context.Context, ch chan<- ServerMessage, msg ServerMessage) error {
	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
