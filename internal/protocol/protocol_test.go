package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/qiminjie89/rtsession/pkg/transport"
)

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Message
	}{
		{
			name: "connected ack",
			in:   `{"type":"connected","payload":{"user_id":12,"username":"ada"}}`,
			want: Connected{UserID: "12", Username: "ada"},
		},
		{
			name: "presence snapshot",
			in:   `{"type":"friends_online_snapshot","payload":{"user_ids":[3,4]}}`,
			want: PresenceSnapshot{UserIDs: []ID{"3", "4"}},
		},
		{
			name: "empty snapshot",
			in:   `{"type":"friends_online_snapshot","payload":{"user_ids":[]}}`,
			want: PresenceSnapshot{UserIDs: []ID{}},
		},
		{
			name: "presence delta",
			in:   `{"type":"friend_presence_changed","payload":{"user_id":"9","username":"bo","status":"offline"}}`,
			want: PresenceDelta{UserID: "9", Username: "bo", Status: StatusOffline},
		},
		{
			name: "enveloped ping",
			in:   `{"type":"PING"}`,
			want: Ping{},
		},
		{
			name: "bare ping",
			in:   `ping`,
			want: Ping{Bare: true, Lower: true},
		},
		{
			name: "quoted bare ping",
			in:   `"PING"`,
			want: Ping{Bare: true},
		},
		{
			name: "pong",
			in:   `{"type":"pong"}`,
			want: Pong{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(JSONCodec{}, []byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeGameEventRoomID(t *testing.T) {
	msg, err := Decode(JSONCodec{}, []byte(`{"type":"error","room_id":42,"payload":{"message":"Not your turn"}}`))
	require.NoError(t, err)

	ev, ok := msg.(GameEvent)
	require.True(t, ok)
	assert.Equal(t, ID("42"), ev.RoomID)
	assert.Equal(t, "Not your turn", ev.ErrorMessage())
	assert.Equal(t, ErrCodeNotYourTurn, ClassifyRejection(ev.ErrorMessage()))
}

func TestDecodeFreeFormFields(t *testing.T) {
	msg, err := Decode(JSONCodec{}, []byte(`{"type":"comment_created","post_id":5,"comment_id":8}`))
	require.NoError(t, err)

	ev, ok := msg.(Event)
	require.True(t, ok)
	assert.Equal(t, TypeCommentCreated, ev.Type())
	assert.Equal(t, json.Number("5"), ev.Payload["post_id"])
}

func TestDecodeUnknownIsNotAnError(t *testing.T) {
	msg, err := Decode(JSONCodec{}, []byte(`{"type":"hologram_beamed","payload":{"x":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "hologram_beamed", msg.Type())
	assert.IsType(t, Unknown{}, msg)
}

func TestDecodeMalformed(t *testing.T) {
	for _, in := range []string{`{`, `{"payload":{}}`, `[1,2]`} {
		_, err := Decode(JSONCodec{}, []byte(in))
		assert.True(t, errors.Is(err, ErrMalformed), in)
	}
}

func TestPongFor(t *testing.T) {
	data, ft, err := PongFor(JSONCodec{}, Ping{Bare: true, Lower: true})
	require.NoError(t, err)
	assert.Equal(t, "pong", string(data))
	assert.Equal(t, transport.TextMessage, ft)

	data, ft, err = PongFor(JSONCodec{}, Ping{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"PONG"}`, string(data))
	assert.Equal(t, transport.TextMessage, ft)

	data, ft, err = PongFor(MsgpackCodec{}, Ping{Lower: true})
	require.NoError(t, err)
	assert.Equal(t, transport.BinaryMessage, ft)
	var out Outbound
	require.NoError(t, msgpack.Unmarshal(data, &out))
	assert.Equal(t, "pong", out.Type)
}

func TestOutboundNumericRoomID(t *testing.T) {
	data, err := JSONCodec{}.Marshal(JoinRoom("42"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"join_room","room_id":42}`, string(data))

	data, err = JSONCodec{}.Marshal(JoinRoom("lobby-7"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"join_room","room_id":"lobby-7"}`, string(data))

	data, err = JSONCodec{}.Marshal(Outbound{Type: TypePong})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"PONG"}`, string(data))
}

func TestMsgpackDecode(t *testing.T) {
	data, err := MsgpackCodec{}.Marshal(map[string]any{
		"type":    TypeGameState,
		"room_id": uint64(7),
		"payload": map[string]any{"next_turn_id": 3},
	})
	require.NoError(t, err)

	msg, err := Decode(MsgpackCodec{}, data)
	require.NoError(t, err)
	ev, ok := msg.(GameEvent)
	require.True(t, ok)
	assert.Equal(t, ID("7"), ev.RoomID)
	assert.Equal(t, TypeGameState, ev.Kind)
}

func TestIDMsgpackRoundTrip(t *testing.T) {
	for _, id := range []ID{"42", "room-a", ""} {
		data, err := msgpack.Marshal(id)
		require.NoError(t, err)
		var got ID
		require.NoError(t, msgpack.Unmarshal(data, &got))
		assert.Equal(t, id, got)
	}
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("msgpack")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", c.Name())

	c, err = CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	_, err = CodecByName("protobuf")
	assert.Error(t, err)
}

func TestClassifyRejection(t *testing.T) {
	assert.Equal(t, ErrCodeAlreadyStarted, ClassifyRejection("Game already started or finished"))
	assert.True(t, ClassifyRejection("game already started or finished").Satisfied())
	assert.Equal(t, ErrCodeNotParticipant, ClassifyRejection("Not a participant in this room"))
	assert.False(t, ClassifyRejection("Not your turn").Satisfied())
	assert.Equal(t, ErrCodeUnknown, ClassifyRejection(""))
}
