package game

import (
	"context"
	"fmt"

	"github.com/cbodonnell/roomsync/pkg/log"
	"github.com/cbodonnell/roomsync/pkg/messages"
	"github.com/cbodonnell/roomsync/pkg/network"
	"github.com/cbodonnell/roomsync/pkg/state"
	"github.com/cbodonnell/roomsync/pkg/workers"
)

// ServerHandler applies client messages to the authoritative world and
// relays accepted changes to the other clients.
type ServerHandler struct {
	store             *state.Store
	serverMessageChan chan<- workers.ServerMessage
}

type NewServerHandlerOptions struct {
	Store             *state.Store
	ServerMessageChan chan<- workers.ServerMessage
}

func NewServerHandler(opts NewServerHandlerOptions) *ServerHandler {
	return &ServerHandler{
		store:             opts.Store,
		serverMessageChan: opts.ServerMessageChan,
	}
}

// HandleMessage is a network.MessageHandler. Every envelope is answered on
// the same connection, with an error response if it could not be decoded.
func (h *ServerHandler) HandleMessage(ctx context.Context, conn network.Conn, payload []byte) {
	msgs, err := messages.Decode(payload)
	if err != nil {
		log.Warn("Rejected message from client %d: %v", conn.ID(), err)
		reason := err.Error()
		if decodeErr, ok := err.(*messages.DecodeError); ok {
			reason = decodeErr.Reason
		}
		h.reply(ctx, conn, messages.Failure(reason))
		return
	}

	var replies []messages.Message
	for _, msg := range msgs {
		reply, err := h.handle(ctx, conn.ID(), msg)
		if err != nil {
			log.Error("Failed to handle %s from client %d: %v", msg.Type(), conn.ID(), err)
			continue
		}
		if reply != nil {
			replies = append(replies, reply)
		}
	}

	h.reply(ctx, conn, append(replies, messages.OK())...)
}

func (h *ServerHandler) handle(ctx context.Context, clientID uint32, msg messages.Message) (messages.Message, error) {
	switch m := msg.(type) {
	case *messages.GetGame:
		// a client's get_game is a request for the whole tree
		return &messages.GetGame{Game: h.store.Snapshot()}, nil
	case *messages.GetPlayer:
		result := h.store.UpsertPlayer(m.Player)
		log.Debug("Upserted player %d from client %d: %d replaced, %d appended", m.Player.ID, clientID, result.Replaced, result.Appended)
		return nil, h.broadcast(ctx, clientID, m)
	case *messages.UpdatePosition:
		if h.store.PatchPlayer(m.Patch) == 0 {
			log.Debug("Position update for unknown player %d from client %d", m.Patch.ID, clientID)
			return nil, nil
		}
		return nil, h.broadcast(ctx, clientID, m)
	case *messages.UpdateNPCPosition:
		if h.store.PatchNPC(m.Patch) == 0 {
			log.Debug("Position update for unknown NPC %d from client %d", m.Patch.ID, clientID)
			return nil, nil
		}
		return nil, h.broadcast(ctx, clientID, m)
	case *messages.Update:
		patch := m.Patch()
		if h.store.PatchPlayer(patch) == 0 {
			log.Debug("Update for unknown player %d from client %d", m.PlayerID, clientID)
			return nil, nil
		}
		return nil, h.broadcast(ctx, clientID, &messages.UpdatePosition{Patch: patch})
	case *messages.ClientID, *messages.Status:
		log.Trace("Ignoring %s from client %d", msg.Type(), clientID)
		return nil, nil
	default:
		return nil, fmt.Errorf("unhandled message type %T", msg)
	}
}

func (h *ServerHandler) broadcast(ctx context.Context, clientID uint32, msg messages.Message) error {
	if h.serverMessageChan == nil {
		return nil
	}
	return workers.Publish(ctx, h.serverMessageChan, workers.ServerMessage{
		Recipients: workers.RecipientsAllExcept,
		ClientID:   clientID,
		Messages:   []messages.Message{msg},
	})
}

func (h *ServerHandler) reply(ctx context.Context, conn network.Conn, msgs ...messages.Message) {
	b, err := messages.Encode(msgs...)
	if err != nil {
		log.Error("Failed to encode reply to client %d: %v", conn.ID(), err)
		return
	}
	if err := conn.Send(ctx, b); err != nil {
		log.Error("Failed to send reply to client %d: %v", conn.ID(), err)
	}
}
