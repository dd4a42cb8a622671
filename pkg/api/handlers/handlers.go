package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cbodonnell/roomsync/pkg/game/types"
	"github.com/cbodonnell/roomsync/pkg/log"
	"github.com/cbodonnell/roomsync/pkg/network"
	"github.com/gorilla/mux"
)

// World is the read side of the world state store.
type World interface {
	Snapshot() types.Game
	Room(key string) (*types.Room, bool)
	PlayerCount() int
}

// Clients lists connected clients.
type Clients interface {
	GetClients() []*network.Client
}

type Health struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Players int    `json:"players"`
}

type ClientInfo struct {
	ID          uint32    `json:"id"`
	SessionID   string    `json:"sessionID"`
	RemoteAddr  string    `json:"remoteAddr"`
	ConnectedAt time.Time `json:"connectedAt"`
}

func HandleHealthz(world World, clients Clients) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, Health{
			Status:  "ok",
			Clients: len(clients.GetClients()),
			Players: world.PlayerCount(),
		})
	}
}

func HandleGetGame(world World) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, world.Snapshot())
	}
}

func HandleGetRoom(world World) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomKey := mux.Vars(r)["roomKey"]
		room, ok := world.Room(roomKey)
		if !ok {
			http.Error(w, "Room not found", http.StatusNotFound)
			return
		}
		writeJSON(w, room)
	}
}

func HandleListClients(clients Clients) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := clients.GetClients()
		infos := make([]ClientInfo, 0, len(list))
		for _, c := range list {
			infos = append(infos, ClientInfo{
				ID:          c.ID,
				SessionID:   c.SessionID.String(),
				RemoteAddr:  c.RemoteAddr,
				ConnectedAt: c.ConnectedAt,
			})
		}
		writeJSON(w, infos)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
