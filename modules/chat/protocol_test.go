package chat

import (
	"strings"
	"testing"

	domain "github.com/example/chat-relay/domain/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Event
		wantErr bool
	}{
		{
			name: "send",
			raw:  `{"event":"send","data":{"username":"alice","message":"hi","room":"Room1"}}`,
			want: SendEvent{Username: "alice", Message: "hi", Room: "Room1"},
		},
		{
			name: "sendMessage alias",
			raw:  `{"event":"sendMessage","data":{"message":"hi"}}`,
			want: SendEvent{Message: "hi"},
		},
		{
			name: "join",
			raw:  `{"event":"join-room","data":{"room":"Room1","username":"alice"}}`,
			want: JoinEvent{Room: "Room1", Username: "alice"},
		},
		{
			name: "join alias",
			raw:  `{"event":"join room","data":{"room":"Room1"}}`,
			want: JoinEvent{Room: "Room1"},
		},
		{
			name: "leave without data",
			raw:  `{"event":"leave-room"}`,
			want: LeaveEvent{},
		},
		{
			name: "leave alias",
			raw:  `{"event":"leave room","data":{"room":"Room1"}}`,
			want: LeaveEvent{Room: "Room1"},
		},
		{
			name: "set name",
			raw:  `{"event":"set-name","data":{"username":"bob"}}`,
			want: SetNameEvent{Username: "bob"},
		},
		{
			name: "disconnect",
			raw:  `{"event":"disconnect","data":{}}`,
			want: DisconnectEvent{},
		},
		{name: "not json", raw: `hello`, wantErr: true},
		{name: "missing event", raw: `{"data":{}}`, wantErr: true},
		{name: "unknown event", raw: `{"event":"shout","data":{}}`, wantErr: true},
		{name: "send without data", raw: `{"event":"send"}`, wantErr: true},
		{name: "send with wrong types", raw: `{"event":"send","data":{"message":42}}`, wantErr: true},
		{name: "join without room", raw: `{"event":"join-room","data":{"username":"alice"}}`, wantErr: true},
		{name: "join null data", raw: `{"event":"join-room","data":null}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestValidateRoomName(t *testing.T) {
	assert.NoError(t, ValidateRoomName("Room1"))
	assert.ErrorIs(t, ValidateRoomName(""), domain.ErrInvalidEvent)
	assert.ErrorIs(t, ValidateRoomName(strings.Repeat("r", MaxRoomNameLength+1)), domain.ErrInvalidEvent)
	assert.ErrorIs(t, ValidateRoomName("bad\xff"), domain.ErrInvalidEvent)
}

func TestEncodeFrame(t *testing.T) {
	raw, err := encodeFrame(EventError, ErrorPayload{Error: "boom", Event: EventSend})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"error","data":{"error":"boom","event":"send"}}`, string(raw))
}
