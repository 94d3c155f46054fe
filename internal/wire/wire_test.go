package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	vel := 100
	tests := []struct {
		name string
		msg  *Message
	}{
		{"join", NewJoin("room-1", RoleController)},
		{"pad-hit with velocity", NewPadHit(3, &vel)},
		{"pad-hit without velocity", NewPadHit(0, nil)},
		{"pad-hit boundary 15", NewPadHit(15, nil)},
		{"sync-state", NewSyncState(140, map[int]string{0: "kick", 1: "snare"})},
		{"tempo-change boundary 20", NewTempoChange(20)},
		{"tempo-change boundary 300", NewTempoChange(300)},
		{"request-sync", NewRequestSync()},
		{"heartbeat", NewHeartbeat()},
		{"pong", NewPong()},
		{"error", NewError("Invalid message format")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Serialize(tt.msg)
			require.NoError(t, err)

			parsed, err := Parse(data)
			require.NoError(t, err)
			require.Equal(t, tt.msg.Type, parsed.Type)
			require.Equal(t, tt.msg.RoomID, parsed.RoomID)
			require.Equal(t, tt.msg.Role, parsed.Role)
			require.Equal(t, derefOrNil(tt.msg.PadIndex), derefOrNil(parsed.PadIndex))
			require.Equal(t, derefOrNil(tt.msg.Velocity), derefOrNil(parsed.Velocity))
			require.Equal(t, derefOrNil(tt.msg.Tempo), derefOrNil(parsed.Tempo))
			require.Equal(t, tt.msg.PadMappings, parsed.PadMappings)
			require.Equal(t, tt.msg.ErrorMessage, parsed.ErrorMessage)

			reserialized, err := Serialize(parsed)
			require.NoError(t, err)
			require.JSONEq(t, string(data), string(reserialized))
		})
	}
}

func derefOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `not json at all`},
		{"unknown type", `{"type":"bogus"}`},
		{"join missing room", `{"type":"join","role":"controller"}`},
		{"join bad role", `{"type":"join","room_id":"x","role":"admin"}`},
		{"pad-hit missing index", `{"type":"pad-hit"}`},
		{"pad-hit index -1", `{"type":"pad-hit","pad_index":-1}`},
		{"pad-hit index 16", `{"type":"pad-hit","pad_index":16}`},
		{"pad-hit velocity 128", `{"type":"pad-hit","pad_index":0,"velocity":128}`},
		{"sync-state tempo 19", `{"type":"sync-state","tempo":19}`},
		{"sync-state tempo 301", `{"type":"sync-state","tempo":301}`},
		{"tempo-change missing tempo", `{"type":"tempo-change"}`},
		{"error missing message", `{"type":"error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse([]byte(tt.raw))
			require.Nil(t, m)
			require.ErrorIs(t, err, ErrInvalidFrame)
		})
	}
}

func TestParseAcceptsBoundaries(t *testing.T) {
	_, err := Parse([]byte(`{"type":"pad-hit","pad_index":0}`))
	require.NoError(t, err)

	_, err = Parse([]byte(`{"type":"pad-hit","pad_index":15}`))
	require.NoError(t, err)

	_, err = Parse([]byte(`{"type":"sync-state","tempo":20}`))
	require.NoError(t, err)

	_, err = Parse([]byte(`{"type":"sync-state","tempo":300}`))
	require.NoError(t, err)
}
