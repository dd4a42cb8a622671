package workers

import (
	"context"

	gametypes "github.com/cbodonnell/roomsync/pkg/game/types"
	"github.com/cbodonnell/roomsync/pkg/log"
	"github.com/cbodonnell/roomsync/pkg/messages"
	"github.com/cbodonnell/roomsync/pkg/network"
	"github.com/cbodonnell/roomsync/pkg/state"
)

type ConnectionEventWorker struct {
	connectionEventChan <-chan network.ConnectionEvent
	store               *state.Store
	serverMessageChan   chan<- ServerMessage
}

type NewConnectionEventWorkerOptions struct {
	ConnectionEventChan <-chan network.ConnectionEvent
	Store               *state.Store
	ServerMessageChan   chan<- ServerMessage
}

// NewConnectionEventWorker creates a new ConnectionEventWorker.
// The worker greets every new connection with its client id and the
// current world, so clients never have to ask for it.
func NewConnectionEventWorker(opts NewConnectionEventWorkerOptions) *ConnectionEventWorker {
	return &ConnectionEventWorker{
		connectionEventChan: opts.ConnectionEventChan,
		store:               opts.Store,
		serverMessageChan:   opts.ServerMessageChan,
	}
}

func (w *ConnectionEventWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.connectionEventChan:
			switch event.Type {
			case network.ConnectionEventTypeConnect:
				w.handleClientConnect(ctx, event)
			case network.ConnectionEventTypeDisconnect:
				// player records outlive their connection
				log.Debug("Client %d (session %s) left, keeping its player records", event.ClientID, event.SessionID)
			default:
				log.Error("Unknown connection event type: %v", event.Type)
			}
		}
	}
}

func (w *ConnectionEventWorker) handleClientConnect(ctx context.Context, event network.ConnectionEvent) {
	// the snapshot is taken when the welcome is sent, not when it is queued,
	// so broadcasts queued in between are already part of it
	welcome := ServerMessage{
		Recipients: RecipientsClient,
		ClientID:   event.ClientID,
		Messages: []messages.Message{
			&messages.ClientID{ClientID: gametypes.EntityID(event.ClientID)},
		},
		Deferred: func() []messages.Message {
			return []messages.Message{&messages.GetGame{Game: w.store.Snapshot()}}
		},
	}
	if err := Publish(ctx, w.serverMessageChan, welcome); err != nil {
		log.Error("Failed to queue welcome for client %d: %v", event.ClientID, err)
	}
}
