package state

import (
	"github.com/cbodonnell/roomsync/pkg/game/types"
	"github.com/sasha-s/go-deadlock"
)

// UpsertPolicy selects which rooms an upserted player is written to.
type UpsertPolicy int

const (
	// UpsertAllRooms scans every room and, per room, replaces the matching
	// player or appends a new one. A new player therefore lands in every room.
	UpsertAllRooms UpsertPolicy = iota
	// UpsertOwnRoom only touches the room named by the player's Room field.
	UpsertOwnRoom
)

// Store is the shared world state. Every read and write takes the single
// store lock for the duration of the operation; callers must not perform
// network I/O from inside UpdateNPCs.
type Store struct {
	lock         deadlock.RWMutex
	game         types.Game
	upsertPolicy UpsertPolicy
}

type NewStoreOptions struct {
	Game         types.Game
	UpsertPolicy UpsertPolicy
}

// NewStore creates a store owning a copy of opts.Game.
func NewStore(opts NewStoreOptions) *Store {
	game := opts.Game.Copy()
	if game == nil {
		game = make(types.Game)
	}
	return &Store{
		game:         game,
		upsertPolicy: opts.UpsertPolicy,
	}
}

// Snapshot returns a deep copy of the whole world.
func (s *Store) Snapshot() types.Game {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.game.Copy()
}

// Room returns a copy of the room stored under key.
func (s *Store) Room(key string) (*types.Room, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	room, ok := s.game[key]
	if !ok || room == nil {
		return nil, false
	}
	return room.Copy(), true
}

// RoomKeys returns the keys of all rooms in a stable order.
func (s *Store) RoomKeys() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.game.Keys()
}

// PlayerCount returns the number of player records across all rooms.
func (s *Store) PlayerCount() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	count := 0
	for _, room := range s.game {
		if room != nil {
			count += len(room.Players)
		}
	}
	return count
}

// Replace discards the current world and stores a copy of game.
func (s *Store) Replace(game types.Game) {
	c := game.Copy()
	if c == nil {
		c = make(types.Game)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.game = c
}

// UpsertResult reports how an upsert changed the world.
type UpsertResult struct {
	Replaced int
	Appended int
}

// UpsertPlayer writes the full player record according to the store's upsert policy.
func (s *Store) UpsertPlayer(player types.Player) UpsertResult {
	s.lock.Lock()
	defer s.lock.Unlock()

	result := UpsertResult{}
	for _, key := range s.game.Keys() {
		room := s.game[key]
		if room == nil {
			continue
		}
		if s.upsertPolicy == UpsertOwnRoom && room.RoomID != player.Room {
			continue
		}
		replaced := false
		for i := range room.Players {
			if room.Players[i].ID == player.ID {
				room.Players[i] = player
				replaced = true
				break
			}
		}
		if replaced {
			result.Replaced++
			continue
		}
		room.Players = append(room.Players, player)
		result.Appended++
	}
	return result
}

// UpsertNPC replaces the NPC with the same id in its own room, or appends it there.
func (s *Store) UpsertNPC(npc types.NPC) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	room, ok := s.game[types.RoomKey(npc.Room)]
	if !ok || room == nil {
		return false
	}
	for i := range room.NPCs {
		if room.NPCs[i].ID == npc.ID {
			room.NPCs[i] = npc
			return true
		}
	}
	room.NPCs = append(room.NPCs, npc)
	return true
}

// PatchPlayer applies the patch to every player record with the patch's id
// and returns how many records matched.
func (s *Store) PatchPlayer(patch types.EntityPatch) int {
	s.lock.Lock()
	defer s.lock.Unlock()

	matched := 0
	for _, room := range s.game {
		if room == nil {
			continue
		}
		for i := range room.Players {
			if room.Players[i].ID == patch.ID {
				patch.ApplyToPlayer(&room.Players[i])
				matched++
			}
		}
	}
	return matched
}

// PatchNPC applies the patch to every NPC record with the patch's id
// and returns how many records matched.
func (s *Store) PatchNPC(patch types.EntityPatch) int {
	s.lock.Lock()
	defer s.lock.Unlock()

	matched := 0
	for _, room := range s.game {
		if room == nil {
			continue
		}
		for i := range room.NPCs {
			if room.NPCs[i].ID == patch.ID {
				patch.ApplyToNPC(&room.NPCs[i])
				matched++
			}
		}
	}
	return matched
}

// MovePlayer sets the position of every player record with the given id.
func (s *Store) MovePlayer(id types.EntityID, x, y float64) int {
	return s.PatchPlayer(types.EntityPatch{ID: id, X: &x, Y: &y})
}

// UpdateNPCs calls fn for every NPC while holding the store lock. Changes made
// through the pointer are kept. fn must not block.
func (s *Store) UpdateNPCs(fn func(roomKey string, npc *types.NPC)) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, key := range s.game.Keys() {
		room := s.game[key]
		if room == nil {
			continue
		}
		for i := range room.NPCs {
			fn(key, &room.NPCs[i])
		}
	}
}

// SetLockDebug toggles lock-order and lock-timeout checking for all stores.
func SetLockDebug(enabled bool) {
	deadlock.Opts.Disable = !enabled
}
