package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// ID 实体标识。服务端使用数字 ID，客户端统一按字符串处理；
// 编码时纯数字的 ID 以数字形式写出，服务端才能解析到 uint 字段。
type ID string

// String 实现 fmt.Stringer
func (id ID) String() string {
	return string(id)
}

// IsZero 是否为空
func (id ID) IsZero() bool {
	return id == ""
}

func (id ID) numeric() (uint64, bool) {
	if id == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(string(id), 10, 64)
	if err != nil || strconv.FormatUint(n, 10) != string(id) {
		return 0, false
	}
	return n, true
}

// MarshalJSON 实现 json.Marshaler
func (id ID) MarshalJSON() ([]byte, error) {
	if n, ok := id.numeric(); ok {
		return []byte(strconv.FormatUint(n, 10)), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON 同时接受数字与字符串
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	if string(data) == "null" {
		*id = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

var (
	_ msgpack.CustomEncoder = ID("")
	_ msgpack.CustomDecoder = (*ID)(nil)
)

// EncodeMsgpack 实现 msgpack.CustomEncoder
func (id ID) EncodeMsgpack(enc *msgpack.Encoder) error {
	if n, ok := id.numeric(); ok {
		return enc.EncodeUint(n)
	}
	return enc.EncodeString(string(id))
}

// DecodeMsgpack 实现 msgpack.CustomDecoder
func (id *ID) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	parsed, err := idFromAny(v)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func idFromAny(v any) (ID, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return ID(x), nil
	case json.Number:
		return ID(x.String()), nil
	case int8:
		return ID(strconv.FormatInt(int64(x), 10)), nil
	case int16:
		return ID(strconv.FormatInt(int64(x), 10)), nil
	case int32:
		return ID(strconv.FormatInt(int64(x), 10)), nil
	case int64:
		return ID(strconv.FormatInt(x, 10)), nil
	case int:
		return ID(strconv.Itoa(x)), nil
	case uint8:
		return ID(strconv.FormatUint(uint64(x), 10)), nil
	case uint16:
		return ID(strconv.FormatUint(uint64(x), 10)), nil
	case uint32:
		return ID(strconv.FormatUint(uint64(x), 10)), nil
	case uint64:
		return ID(strconv.FormatUint(x, 10)), nil
	case uint:
		return ID(strconv.FormatUint(uint64(x), 10)), nil
	case float64:
		return ID(strconv.FormatFloat(x, 'f', -1, 64)), nil
	default:
		return "", fmt.Errorf("id: unsupported value type %T", v)
	}
}
