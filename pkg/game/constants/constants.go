package constants

const (
	// RoomKeyPrefix is prepended to a room's numeric id to form its key in the world tree
	RoomKeyPrefix string = "room"
	// DefaultRoomCount is the number of rooms created at world initialization
	DefaultRoomCount int = 2

	// WallObjectID is reserved for the room's outer bounding wall
	WallObjectID int = 0
	// Wall size
	WallWidth  float64 = 1000.0
	WallHeight float64 = 1000.0

	// Player size
	PlayerWidth  float64 = 50.0
	PlayerHeight float64 = 50.0
	// Player Starting X
	PlayerStartingX float64 = 400.0
	// Player Starting Y
	PlayerStartingY float64 = 250.0
	// PlayerSpeed is the per-frame movement speed used by the client
	PlayerSpeed float64 = 5.0

	// NPC size
	NPCWidth  float64 = 50.0
	NPCHeight float64 = 50.0
	// NPCSpeed is the distance an NPC covers per second
	NPCSpeed float64 = 60.0
	// NPCIDBase keeps NPC ids clear of connection-derived player ids
	NPCIDBase uint32 = 1 << 24
)
