package messages

import (
	"github.com/cbodonnell/roomsync/pkg/game/types"
)

const (
	// MessageBufferSize is the read buffer size of a connection
	MessageBufferSize = 1024
	// MaxMessageSize is the largest frame payload accepted from a peer
	MaxMessageSize = 1 << 20
)

// Envelope keys, listed in the order their handlers run.
const (
	KeyGetGame           = "get_game"
	KeyGetPlayer         = "get_player"
	KeyUpdatePosition    = "update_position"
	KeyUpdateNPCPosition = "update_npc_position"
	KeyType              = "type"
	KeyClientID          = "client_id"
	KeyStatus            = "status"
)

// Values of the "type" field.
const (
	TypeUpdate = "update"
)

// Status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// MessageType identifies a decoded message variant.
type MessageType uint8

const (
	MessageTypeGetGame MessageType = iota
	MessageTypeGetPlayer
	MessageTypeUpdatePosition
	MessageTypeUpdateNPCPosition
	MessageTypeUpdate
	MessageTypeClientID
	MessageTypeStatus
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeGetGame:
		return KeyGetGame
	case MessageTypeGetPlayer:
		return KeyGetPlayer
	case MessageTypeUpdatePosition:
		return KeyUpdatePosition
	case MessageTypeUpdateNPCPosition:
		return KeyUpdateNPCPosition
	case MessageTypeUpdate:
		return TypeUpdate
	case MessageTypeClientID:
		return KeyClientID
	case MessageTypeStatus:
		return KeyStatus
	default:
		return "unknown"
	}
}

// Message is one decoded envelope entry. The set of implementations is closed.
type Message interface {
	Type() MessageType
	isMessage()
}

// GetGame carries the whole world tree. Sent by a client with a nil Game it
// is a request for the tree.
type GetGame struct {
	Game types.Game
}

// GetPlayer carries a full player record to upsert.
type GetPlayer struct {
	Player types.Player
}

// UpdatePosition patches a player.
type UpdatePosition struct {
	Patch types.EntityPatch
}

// UpdateNPCPosition patches an NPC.
type UpdateNPCPosition struct {
	Patch types.EntityPatch
}

// UpdateData is the payload of a generic update.
type UpdateData struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
}

// Update is the client's generic attribute update: {"type":"update","player_id":..,"data":{..}}.
type Update struct {
	PlayerID types.EntityID
	Data     UpdateData
}

// ClientID tells a client which id the server knows it by.
type ClientID struct {
	ClientID types.EntityID
}

// Status acknowledges a message or reports why it was rejected.
type Status struct {
	Status string
	Error  string
}

func (*GetGame) Type() MessageType           { return MessageTypeGetGame }
func (*GetPlayer) Type() MessageType         { return MessageTypeGetPlayer }
func (*UpdatePosition) Type() MessageType    { return MessageTypeUpdatePosition }
func (*UpdateNPCPosition) Type() MessageType { return MessageTypeUpdateNPCPosition }
func (*Update) Type() MessageType            { return MessageTypeUpdate }
func (*ClientID) Type() MessageType          { return MessageTypeClientID }
func (*Status) Type() MessageType            { return MessageTypeStatus }

func (*GetGame) isMessage()           {}
func (*GetPlayer) isMessage()         {}
func (*UpdatePosition) isMessage()    {}
func (*UpdateNPCPosition) isMessage() {}
func (*Update) isMessage()            {}
func (*ClientID) isMessage()          {}
func (*Status) isMessage()            {}

// OK returns the fixed acknowledgment.
func OK() *Status {
	return &Status{Status: StatusOK}
}

// Failure returns an error response carrying reason.
func Failure(reason string) *Status {
	return &Status{Status: StatusError, Error: reason}
}

// Patch turns a generic update into a position patch of the named player.
func (u *Update) Patch() types.EntityPatch {
	return types.EntityPatch{
		ID: u.PlayerID,
		X:  u.Data.X,
		Y:  u.Data.Y,
	}
}
