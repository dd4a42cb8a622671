package workers

import (
	"context"
	"math/rand"
	"time"

	"github.com/cbodonnell/roomsync/pkg/game/constants"
	gametypes "github.com/cbodonnell/roomsync/pkg/game/types"
	"github.com/cbodonnell/roomsync/pkg/kinematic"
	"github.com/cbodonnell/roomsync/pkg/log"
	"github.com/cbodonnell/roomsync/pkg/messages"
	"github.com/cbodonnell/roomsync/pkg/state"
)

const (
	DefaultNPCInterval = 100 * time.Millisecond
	// waypointTolerance is how close an NPC must get before picking a new waypoint
	waypointTolerance = 1.0
)

// NPCWorker seeds NPCs into every room and walks them between random
// waypoints, broadcasting each move.
type NPCWorker struct {
	store             *state.Store
	serverMessageChan chan<- ServerMessage
	count             int
	interval          time.Duration
	rng               *rand.Rand
	waypoints         map[gametypes.EntityID]kinematic.Vector
}

type NewNPCWorkerOptions struct {
	Store             *state.Store
	ServerMessageChan chan<- ServerMessage
	// Count is the number of NPCs per room
	Count    int
	Interval time.Duration
	Seed     int64
}

func NewNPCWorker(opts NewNPCWorkerOptions) *NPCWorker {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultNPCInterval
	}
	return &NPCWorker{
		store:             opts.Store,
		serverMessageChan: opts.ServerMessageChan,
		count:             opts.Count,
		interval:          interval,
		rng:               rand.New(rand.NewSource(opts.Seed)),
		waypoints:         make(map[gametypes.EntityID]kinematic.Vector),
	}
}

// Start seeds the NPCs and moves them every interval until ctx is cancelled.
func (w *NPCWorker) Start(ctx context.Context) {
	w.Seed()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, patch := range w.Step(w.interval.Seconds()) {
				msg := ServerMessage{
					Recipients: RecipientsAll,
					Messages:   []messages.Message{&messages.UpdateNPCPosition{Patch: patch}},
				}
				if err := Publish(ctx, w.serverMessageChan, msg); err != nil {
					return
				}
			}
		}
	}
}

// Seed adds count NPCs to every room.
func (w *NPCWorker) Seed() {
	next := gametypes.EntityID(constants.NPCIDBase)
	for _, key := range w.store.RoomKeys() {
		room, ok := w.store.Room(key)
		if !ok {
			continue
		}
		for i := 0; i < w.count; i++ {
			pos := w.randomPoint()
			npc := gametypes.NPC{
				ID:          next,
				X:           pos.X,
				Y:           pos.Y,
				Width:       constants.NPCWidth,
				Height:      constants.NPCHeight,
				SpriteState: gametypes.SpriteStateDown,
				Room:        room.RoomID,
			}
			if !w.store.UpsertNPC(npc) {
				log.Warn("Failed to seed NPC %d into %s", npc.ID, key)
				continue
			}
			w.waypoints[npc.ID] = w.randomPoint()
			next++
		}
		log.Debug("Seeded %d NPCs into %s", w.count, key)
	}
}

// Step advances every seeded NPC by dt seconds and returns the resulting patches.
func (w *NPCWorker) Step(dt float64) []gametypes.EntityPatch {
	var patches []gametypes.EntityPatch
	w.store.UpdateNPCs(func(roomKey string, npc *gametypes.NPC) {
		target, ok := w.waypoints[npc.ID]
		if !ok {
			return
		}

		pos := kinematic.Vector{X: npc.X, Y: npc.Y}
		next := kinematic.StepToward(pos, target, constants.NPCSpeed*dt)
		next = kinematic.Clamp(next, 0, 0, constants.WallWidth-constants.NPCWidth, constants.WallHeight-constants.NPCHeight)
		if next != pos {
			npc.SpriteState = SpriteStateForHeading(kinematic.Degrees(pos, next))
		}
		npc.X, npc.Y = next.X, next.Y

		if kinematic.Reached(next, target, waypointTolerance) {
			w.waypoints[npc.ID] = w.randomPoint()
		}

		x, y, sprite := npc.X, npc.Y, npc.SpriteState
		patches = append(patches, gametypes.EntityPatch{ID: npc.ID, X: &x, Y: &y, SpriteState: &sprite})
	})
	return patches
}

func (w *NPCWorker) randomPoint() kinematic.Vector {
	return kinematic.Vector{
		X: w.rng.Float64() * (constants.WallWidth - constants.NPCWidth),
		Y: w.rng.Float64() * (constants.WallHeight - constants.NPCHeight),
	}
}

// SpriteStateForHeading maps a heading in degrees (0 is right, 90 is down) to a facing.
func SpriteStateForHeading(degrees float64) gametypes.SpriteState {
	switch {
	case degrees >= 45 && degrees < 135:
		return gametypes.SpriteStateDown
	case degrees >= 135 && degrees < 225:
		return gametypes.SpriteStateLeft
	case degrees >= 225 && degrees < 315:
		return gametypes.SpriteStateUp
	default:
		return gametypes.SpriteStateRight
	}
}
