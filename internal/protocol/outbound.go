package protocol

// Outbound 出站信封
type Outbound struct {
	Type    string `json:"type" msgpack:"type"`
	RoomID  ID     `json:"room_id,omitempty" msgpack:"room_id,omitempty"`
	Payload any    `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// JoinRoom 构造 join_room 消息
func JoinRoom(room ID) Outbound {
	return Outbound{Type: TypeJoinRoom, RoomID: room}
}

// MakeMove 构造落子消息
func MakeMove(room ID, move any) Outbound {
	return Outbound{Type: TypeMakeMove, RoomID: room, Payload: move}
}

// Chat 构造房间内聊天消息
func Chat(room ID, text string) Outbound {
	return Outbound{Type: TypeChat, RoomID: room, Payload: map[string]string{"content": text}}
}
