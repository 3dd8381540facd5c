package wire

import (
	"fmt"

	"landsync/internal/config"
)

// CodecPair bundles the message codec and state-update codec a room was
// constructed with. They are negotiated together but remain independently
// swappable, per spec §4.1's hybrid-configuration allowance.
type CodecPair struct {
	Message      MessageCodec
	StateUpdate  StateUpdateCodec
	MergeCapable bool // true only when both halves are MessagePack (spec §4.6.9)
}

// BuildCodecPair constructs the (MessageCodec, StateUpdateCodec) pair a
// room's RoomConfig calls for. A hybrid configuration — state-update
// MessagePack paired with a non-MessagePack message encoding, or vice
// versa — is accepted rather than rejected: it simply never qualifies for
// the merged opcode-107 frame and falls back to separate frames (open
// question resolved in DESIGN.md).
func BuildCodecPair(cfg config.RoomConfig) (CodecPair, error) {
	msgCodec, err := buildMessageCodec(cfg.MessageEncoding)
	if err != nil {
		return CodecPair{}, err
	}
	stateCodec, err := buildStateUpdateCodec(cfg.StateUpdateEncoding, cfg.PathHashes)
	if err != nil {
		return CodecPair{}, err
	}

	merge := cfg.MessageEncoding == config.MessageEncodingOpcodeMsgpack &&
		(cfg.StateUpdateEncoding == config.StateUpdateEncodingOpcodeMsgpack) &&
		stateCodec.SupportsMerge()

	return CodecPair{Message: msgCodec, StateUpdate: stateCodec, MergeCapable: merge}, nil
}

func buildMessageCodec(enc config.MessageEncoding) (MessageCodec, error) {
	switch enc {
	case "", config.MessageEncodingJSONObject:
		return NewJSONMessageCodec(), nil
	case config.MessageEncodingOpcodeJSON:
		return NewOpcodeJSONMessageCodec(), nil
	case config.MessageEncodingOpcodeMsgpack:
		return NewMsgpackMessageCodec(), nil
	default:
		return nil, fmt.Errorf("wire: unknown message encoding %q", enc)
	}
}

func buildStateUpdateCodec(enc config.StateUpdateEncoding, pathHashes map[string]uint32) (StateUpdateCodec, error) {
	switch enc {
	case "", config.StateUpdateEncodingJSONObject:
		return NewJSONStateUpdateCodec(), nil
	case config.StateUpdateEncodingOpcodeJSON:
		return NewOpcodeJSONStateUpdateCodec(nil), nil
	case config.StateUpdateEncodingPathHashJSON:
		if len(pathHashes) == 0 {
			return nil, fmt.Errorf("wire: path-hash state encoding requires a non-empty path hash table")
		}
		return NewOpcodeJSONStateUpdateCodec(pathHashes), nil
	case config.StateUpdateEncodingOpcodeMsgpack:
		return NewMsgpackStateUpdateCodec(pathHashes), nil
	default:
		return nil, fmt.Errorf("wire: unknown state-update encoding %q", enc)
	}
}
