package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/qiminjie89/rtsession/pkg/transport"
)

// Codec 线上编解码
type Codec interface {
	// Name 编解码名称（json、msgpack）
	Name() string
	// FrameType 写出时使用的帧类型
	FrameType() int
	// Marshal 编码出站消息
	Marshal(v any) ([]byte, error)
	// UnmarshalMap 将入站对象解码为通用 map，交由 Decode 生成具体变体
	UnmarshalMap(data []byte) (map[string]any, error)
}

// JSONCodec 文本 JSON 编解码（默认）
type JSONCodec struct{}

// Name 实现 Codec
func (JSONCodec) Name() string { return "json" }

// FrameType 实现 Codec
func (JSONCodec) FrameType() int { return transport.TextMessage }

// Marshal 实现 Codec
func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// UnmarshalMap 实现 Codec，数字保留为 json.Number 以免大 ID 丢精度
func (JSONCodec) UnmarshalMap(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// MsgpackCodec 二进制 msgpack 编解码
type MsgpackCodec struct{}

// Name 实现 Codec
func (MsgpackCodec) Name() string { return "msgpack" }

// FrameType 实现 Codec
func (MsgpackCodec) FrameType() int { return transport.BinaryMessage }

// Marshal 实现 Codec
func (MsgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// UnmarshalMap 实现 Codec
func (MsgpackCodec) UnmarshalMap(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// CodecByName 按名称选择编解码
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
