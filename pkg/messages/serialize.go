package messages

import (
	"encoding/json"
	"fmt"

	"github.com/cbodonnell/roomsync/pkg/game/types"
	"github.com/klauspost/compress/zstd"
)

// DecodeError is returned when bytes cannot be turned into at least one message.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode envelope: %s", e.Reason)
}

// IsDecodeError reports whether err is a *DecodeError.
func IsDecodeError(err error) bool {
	_, ok := err.(*DecodeError)
	return ok
}

type updateEnvelope struct {
	PlayerID *types.EntityID `json:"player_id"`
	Data     UpdateData      `json:"data"`
}

type statusEnvelope struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type clientIDEnvelope struct {
	ClientID types.EntityID `json:"client_id"`
}

// Decode parses an envelope and returns one message per recognized key, in
// handler order: get_game, get_player, update_position, update_npc_position,
// type, client_id, status.
func Decode(b []byte) ([]Message, error) {
	envelope := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}

	msgs := make([]Message, 0, 1)

	if raw, ok := envelope[KeyGetGame]; ok {
		var game types.Game
		if err := json.Unmarshal(raw, &game); err != nil {
			return nil, &DecodeError{Reason: fmt.Sprintf("invalid %s payload: %v", KeyGetGame, err)}
		}
		msgs = append(msgs, &GetGame{Game: game})
	}

	if raw, ok := envelope[KeyGetPlayer]; ok {
		player := types.Player{}
		if err := json.Unmarshal(raw, &player); err != nil {
			return nil, &DecodeError{Reason: fmt.Sprintf("invalid %s payload: %v", KeyGetPlayer, err)}
		}
		msgs = append(msgs, &GetPlayer{Player: player})
	}

	if raw, ok := envelope[KeyUpdatePosition]; ok {
		patch := types.EntityPatch{}
		if err := json.Unmarshal(raw, &patch); err != nil {
			return nil, &DecodeError{Reason: fmt.Sprintf("invalid %s payload: %v", KeyUpdatePosition, err)}
		}
		msgs = append(msgs, &UpdatePosition{Patch: patch})
	}

	if raw, ok := envelope[KeyUpdateNPCPosition]; ok {
		patch := types.EntityPatch{}
		if err := json.Unmarshal(raw, &patch); err != nil {
			return nil, &DecodeError{Reason: fmt.Sprintf("invalid %s payload: %v", KeyUpdateNPCPosition, err)}
		}
		msgs = append(msgs, &UpdateNPCPosition{Patch: patch})
	}

	if raw, ok := envelope[KeyType]; ok {
		var t string
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, &DecodeError{Reason: fmt.Sprintf("invalid %s field: %v", KeyType, err)}
		}
		switch t {
		case TypeUpdate:
			update := updateEnvelope{}
			if err := json.Unmarshal(b, &update); err != nil {
				return nil, &DecodeError{Reason: fmt.Sprintf("invalid %s message: %v", TypeUpdate, err)}
			}
			if update.PlayerID == nil {
				return nil, &DecodeError{Reason: fmt.Sprintf("%s message is missing player_id", TypeUpdate)}
			}
			msgs = append(msgs, &Update{PlayerID: *update.PlayerID, Data: update.Data})
		default:
			return nil, &DecodeError{Reason: fmt.Sprintf("unknown message type %q", t)}
		}
	}

	if _, ok := envelope[KeyClientID]; ok {
		clientID := clientIDEnvelope{}
		if err := json.Unmarshal(b, &clientID); err != nil {
			return nil, &DecodeError{Reason: fmt.Sprintf("invalid %s payload: %v", KeyClientID, err)}
		}
		msgs = append(msgs, &ClientID{ClientID: clientID.ClientID})
	}

	if _, ok := envelope[KeyStatus]; ok {
		status := statusEnvelope{}
		if err := json.Unmarshal(b, &status); err != nil {
			return nil, &DecodeError{Reason: fmt.Sprintf("invalid %s payload: %v", KeyStatus, err)}
		}
		msgs = append(msgs, &Status{Status: status.Status, Error: status.Error})
	}

	if len(msgs) == 0 {
		return nil, &DecodeError{Reason: "no recognized key"}
	}

	return msgs, nil
}

// Encode builds a single envelope holding every message.
func Encode(msgs ...Message) ([]byte, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("no messages to encode")
	}

	envelope := make(map[string]interface{}, len(msgs))
	for _, msg := range msgs {
		switch m := msg.(type) {
		case *GetGame:
			envelope[KeyGetGame] = m.Game
		case *GetPlayer:
			envelope[KeyGetPlayer] = m.Player
		case *UpdatePosition:
			envelope[KeyUpdatePosition] = m.Patch
		case *UpdateNPCPosition:
			envelope[KeyUpdateNPCPosition] = m.Patch
		case *Update:
			envelope[KeyType] = TypeUpdate
			envelope["player_id"] = m.PlayerID
			envelope["data"] = m.Data
		case *ClientID:
			envelope[KeyClientID] = m.ClientID
		case *Status:
			envelope[KeyStatus] = m.Status
			if m.Error != "" {
				envelope["error"] = m.Error
			}
		default:
			return nil, fmt.Errorf("unknown message type %T", msg)
		}
	}

	b, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %v", err)
	}

	return b, nil
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxMessageSize))
)

// Compress compresses an encoded envelope.
func Compress(b []byte) []byte {
	return encoder.EncodeAll(b, make([]byte, 0, len(b)))
}

// Decompress reverses Compress.
func Decompress(b []byte) ([]byte, error) {
	out, err := decoder.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress message: %v", err)
	}
	if len(out) > MaxMessageSize {
		return nil, fmt.Errorf("decompressed message exceeds %d bytes", MaxMessageSize)
	}
	return out, nil
}
