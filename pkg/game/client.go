package game

import (
	"sync/atomic"

	"github.com/cbodonnell/roomsync/pkg/game/types"
	"github.com/cbodonnell/roomsync/pkg/log"
	"github.com/cbodonnell/roomsync/pkg/messages"
	"github.com/cbodonnell/roomsync/pkg/state"
)

// ClientHandler keeps a client's shadow copy of the world in step with the
// server. It never replies.
type ClientHandler struct {
	store    *state.Store
	clientID atomic.Uint32
}

func NewClientHandler(store *state.Store) *ClientHandler {
	return &ClientHandler{
		store: store,
	}
}

// ClientID is the id the server assigned, or 0 before one has arrived.
func (h *ClientHandler) ClientID() types.EntityID {
	return types.EntityID(h.clientID.Load())
}

// HandleMessage applies one envelope to the shadow world. Undecodable
// envelopes are dropped.
func (h *ClientHandler) HandleMessage(payload []byte) {
	msgs, err := messages.Decode(payload)
	if err != nil {
		log.Debug("Ignoring message from server: %v", err)
		return
	}

	for _, msg := range msgs {
		switch m := msg.(type) {
		case *messages.GetGame:
			if m.Game == nil {
				continue
			}
			h.store.Replace(m.Game)
		case *messages.GetPlayer:
			h.store.UpsertPlayer(m.Player)
		case *messages.UpdatePosition:
			h.store.PatchPlayer(m.Patch)
		case *messages.UpdateNPCPosition:
			h.store.PatchNPC(m.Patch)
		case *messages.Update:
			h.store.PatchPlayer(m.Patch())
		case *messages.ClientID:
			h.clientID.Store(uint32(m.ClientID))
			log.Info("Server assigned client id %d", m.ClientID)
		case *messages.Status:
			if m.Status == messages.StatusError {
				log.Warn("Server rejected a message: %s", m.Error)
			}
		}
	}
}
