package protocol

import "strings"

// ErrCode 协议层拒绝原因
type ErrCode int

// 错误码定义
const (
	ErrCodeUnknown ErrCode = iota // 未识别

	// 加入房间 (1xxx)
	ErrCodeAlreadyStarted ErrCode = 1001 // 游戏已开始或已结束
	ErrCodeIsCreator      ErrCode = 1002 // 创建者无需加入
	ErrCodeRoomFull       ErrCode = 1003 // 房间已满

	// 房间动作 (2xxx)
	ErrCodeNotYourTurn    ErrCode = 2001 // 非当前回合
	ErrCodeInvalidMove    ErrCode = 2002 // 非法落子
	ErrCodeNotParticipant ErrCode = 2003 // 不是房间参与者
	ErrCodeRoomNotFound   ErrCode = 2004 // 房间不存在
)

// ErrCodeMessage 错误码对应的服务端消息
var ErrCodeMessage = map[ErrCode]string{
	ErrCodeAlreadyStarted: "Game already started or finished",
	ErrCodeIsCreator:      "You are the creator",
	ErrCodeRoomFull:       "Room is full",
	ErrCodeNotYourTurn:    "Not your turn",
	ErrCodeInvalidMove:    "Invalid move",
	ErrCodeNotParticipant: "Not a participant in this room",
	ErrCodeRoomNotFound:   "Room not found",
}

// ClassifyRejection 将服务端错误文本映射为错误码
func ClassifyRejection(message string) ErrCode {
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return ErrCodeUnknown
	}
	for code, text := range ErrCodeMessage {
		if strings.Contains(msg, strings.ToLower(text)) {
			return code
		}
	}
	return ErrCodeUnknown
}

// Satisfied 拒绝是否意味着目标状态已达成，应静默处理
func (c ErrCode) Satisfied() bool {
	switch c {
	case ErrCodeAlreadyStarted, ErrCodeIsCreator, ErrCodeNotParticipant:
		return true
	default:
		return false
	}
}

// String 返回服务端消息文本
func (c ErrCode) String() string {
	if msg, ok := ErrCodeMessage[c]; ok {
		return msg
	}
	return "unknown"
}
