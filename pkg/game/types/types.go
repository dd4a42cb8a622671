package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cbodonnell/roomsync/pkg/game/constants"
)

// EntityID identifies a player or NPC. On the wire it may arrive as a JSON
// number or as a numeric string.
type EntityID uint32

func (id *EntityID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid entity id %s: %v", string(b), err)
	}
	*id = EntityID(v)
	return nil
}

// SpriteState is the cardinal direction an entity is facing.
type SpriteState uint8

const (
	SpriteStateUp SpriteState = iota
	SpriteStateDown
	SpriteStateLeft
	SpriteStateRight
)

func (s SpriteState) String() string {
	switch s {
	case SpriteStateUp:
		return "up"
	case SpriteStateDown:
		return "down"
	case SpriteStateLeft:
		return "left"
	case SpriteStateRight:
		return "right"
	default:
		return "unknown"
	}
}

func (s *SpriteState) UnmarshalJSON(b []byte) error {
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("invalid sprite state %s: %v", string(b), err)
	}
	if v < int(SpriteStateUp) || v > int(SpriteStateRight) {
		return fmt.Errorf("sprite state out of range: %d", v)
	}
	*s = SpriteState(v)
	return nil
}

// Object is a static rectangle. ID 0 is the room's outer wall.
type Object struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	ID     int     `json:"id"`
}

type Player struct {
	ID          EntityID    `json:"id"`
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	Width       float64     `json:"width"`
	Height      float64     `json:"height"`
	SpriteState SpriteState `json:"spriteState"`
	Skin        int         `json:"skin"`
	Shields     int         `json:"shields"`
	Room        int         `json:"room"`
}

// NPC has the same shape as a player but is never owned by a connection.
type NPC struct {
	ID          EntityID    `json:"id"`
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	Width       float64     `json:"width"`
	Height      float64     `json:"height"`
	SpriteState SpriteState `json:"spriteState"`
	Skin        int         `json:"skin"`
	Shields     int         `json:"shields"`
	Room        int         `json:"room"`
}

// EntityPatch is a partial update of a player or NPC. Nil fields are left unchanged.
type EntityPatch struct {
	ID          EntityID     `json:"id"`
	X           *float64     `json:"x,omitempty"`
	Y           *float64     `json:"y,omitempty"`
	Width       *float64     `json:"width,omitempty"`
	Height      *float64     `json:"height,omitempty"`
	SpriteState *SpriteState `json:"spriteState,omitempty"`
}

func (p *EntityPatch) applyTo(x, y, width, height *float64, spriteState *SpriteState) {
	if p.X != nil {
		*x = *p.X
	}
	if p.Y != nil {
		*y = *p.Y
	}
	if p.Width != nil {
		*width = *p.Width
	}
	if p.Height != nil {
		*height = *p.Height
	}
	if p.SpriteState != nil {
		*spriteState = *p.SpriteState
	}
}

// ApplyToPlayer patches the player in place.
func (p *EntityPatch) ApplyToPlayer(player *Player) {
	p.applyTo(&player.X, &player.Y, &player.Width, &player.Height, &player.SpriteState)
}

// ApplyToNPC patches the NPC in place.
func (p *EntityPatch) ApplyToNPC(npc *NPC) {
	p.applyTo(&npc.X, &npc.Y, &npc.Width, &npc.Height, &npc.SpriteState)
}

type Room struct {
	RoomID  int      `json:"roomID"`
	Objects []Object `json:"objects"`
	Players []Player `json:"players"`
	NPCs    []NPC    `json:"npcs"`
}

// Copy returns a deep copy of the room.
func (r *Room) Copy() *Room {
	c := &Room{
		RoomID:  r.RoomID,
		Objects: make([]Object, len(r.Objects)),
		Players: make([]Player, len(r.Players)),
		NPCs:    make([]NPC, len(r.NPCs)),
	}
	copy(c.Objects, r.Objects)
	copy(c.Players, r.Players)
	copy(c.NPCs, r.NPCs)
	return c
}

// Game is the full world tree keyed by room key.
type Game map[string]*Room

// RoomKey returns the key under which the room with the given id is stored.
func RoomKey(id int) string {
	return constants.RoomKeyPrefix + strconv.Itoa(id)
}

// NewGame creates a world with rooms 1..roomCount, each holding only its wall.
func NewGame(roomCount int) Game {
	g := make(Game, roomCount)
	for id := 1; id <= roomCount; id++ {
		g[RoomKey(id)] = &Room{
			RoomID: id,
			Objects: []Object{
				{X: 0, Y: 0, Width: constants.WallWidth, Height: constants.WallHeight, ID: constants.WallObjectID},
			},
			Players: []Player{},
			NPCs:    []NPC{},
		}
	}
	return g
}

// Copy returns a deep copy of the world.
func (g Game) Copy() Game {
	if g == nil {
		return nil
	}
	c := make(Game, len(g))
	for k, room := range g {
		if room == nil {
			c[k] = nil
			continue
		}
		c[k] = room.Copy()
	}
	return c
}

// Keys returns the room keys in a stable order.
func (g Game) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
