package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/qiminjie89/rtsession/pkg/transport"
)

// ErrMalformed 入站消息无法解析
var ErrMalformed = errors.New("malformed message")

// Decode 将一帧入站数据解码为具体的 Message 变体。
// 未识别的 type 返回 Unknown 而不是错误。
func Decode(codec Codec, data []byte) (Message, error) {
	if p, ok := bareSentinel(data); ok {
		return p, nil
	}

	fields, err := codec.UnmarshalMap(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kind, _ := fields["type"].(string)
	if kind == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	payload := payloadOf(fields)

	switch {
	case kind == TypePing || kind == "ping":
		return Ping{Lower: kind == "ping"}, nil
	case kind == TypePong || kind == "pong":
		return Pong{}, nil
	case kind == TypeConnected:
		var msg Connected
		if err := decodePayload(payload, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case kind == TypeFriendsOnlineSnapshot:
		var msg PresenceSnapshot
		if err := decodePayload(payload, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case kind == TypeFriendPresenceChanged:
		var msg PresenceDelta
		if err := decodePayload(payload, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case IsGameType(kind):
		room, err := roomIDOf(fields, payload)
		if err != nil {
			return nil, err
		}
		return GameEvent{Kind: kind, RoomID: room, Payload: payload}, nil
	case IsEventType(kind):
		return Event{Kind: kind, Payload: payload}, nil
	default:
		return Unknown{Kind: kind, Fields: fields}, nil
	}
}

// bareSentinel 识别裸字符串形式的 ping（含 JSON 字符串形式）
func bareSentinel(data []byte) (Ping, bool) {
	s := bytes.Trim(bytes.TrimSpace(data), `"`)
	switch string(s) {
	case "ping":
		return Ping{Bare: true, Lower: true}, true
	case "PING":
		return Ping{Bare: true}, true
	}
	return Ping{}, false
}

// PongFor 构造与 ping 形式对应的 pong，返回数据与帧类型
func PongFor(codec Codec, p Ping) ([]byte, int, error) {
	kind := TypePong
	if p.Lower {
		kind = "pong"
	}
	if p.Bare {
		return []byte(kind), transport.TextMessage, nil
	}
	data, err := codec.Marshal(Outbound{Type: kind})
	if err != nil {
		return nil, 0, err
	}
	return data, codec.FrameType(), nil
}

// payloadOf 优先取 payload 字段，否则将其余顶层字段视为载荷
func payloadOf(fields map[string]any) map[string]any {
	if p, ok := fields["payload"].(map[string]any); ok {
		return p
	}
	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "type" || k == "payload" {
			continue
		}
		payload[k] = v
	}
	return payload
}

func roomIDOf(fields, payload map[string]any) (ID, error) {
	if v, ok := fields["room_id"]; ok {
		return idFromAny(v)
	}
	if v, ok := payload["room_id"]; ok {
		return idFromAny(v)
	}
	return "", nil
}

func decodePayload(payload map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// DecodePayload 将事件载荷解码为结构体，数字与字符串可互相转换
func DecodePayload(payload map[string]any, out any) error {
	return decodePayload(payload, out)
}
