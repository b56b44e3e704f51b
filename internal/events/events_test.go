package events

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scheerer/crystal-lights/lights"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"start", `{"type":"speaking_start","bot_config":"Puck"}`, SpeakingStart{Bot: "Puck"}},
		{"start camel", `{"type":"speaking_start","botIdentifier":" Kore "}`, SpeakingStart{Bot: "Kore"}},
		{"start bot", `{"type":"speaking_start","bot":"Charon"}`, SpeakingStart{Bot: "Charon"}},
		{"stop", `{"type":"speaking_stop","bot_config":"Puck"}`, SpeakingStop{Bot: "Puck"}},
		{"stop without bot", `{"type":"speaking_stop"}`, SpeakingStop{}},
		{"disconnect", `{"type":"disconnect"}`, Disconnect{}},
		{
			"light command",
			`{"type":"light_command","shelly_ip":"10.0.0.5","command":{"red":255,"green":0,"blue":0,"white":0}}`,
			LightCommand{Address: "10.0.0.5", Command: lights.Command{Red: 255}},
		},
		{
			"light command camel",
			`{"type":"light_command","shellyAddress":"10.0.0.6","command":{"blue":12,"white":200}}`,
			LightCommand{Address: "10.0.0.6", Command: lights.Command{Blue: 12, White: 200}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		code  string
		param string
	}{
		{"not json", `speaking_start`, "bad_request", ""},
		{"no type", `{"bot_config":"Puck"}`, "bad_request", "type"},
		{"unknown type", `{"type":"audio_frame"}`, "unsupported", "type"},
		{"start without bot", `{"type":"speaking_start"}`, "bad_request", "bot_config"},
		{"command missing", `{"type":"light_command","shelly_ip":"10.0.0.5"}`, "bad_request", "command"},
		{"channel too large", `{"type":"light_command","command":{"red":256}}`, "bad_request", "red"},
		{"channel negative", `{"type":"light_command","command":{"white":-1}}`, "bad_request", "white"},
		{"channel not a number", `{"type":"light_command","command":{"green":"x"}}`, "bad_request", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)

			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.code, de.Code)
			assert.Equal(t, tt.param, de.Param)
		})
	}
}

func TestDecodeErrorMessage(t *testing.T) {
	assert.Equal(t, "missing type (type)", badRequest("missing type", "type").Error())
	assert.Equal(t, "invalid json frame", badRequest("invalid json frame", " ").Error())
}

func TestMalformedFrameKeepsCause(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	require.Error(t, err)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "invalid json frame", de.Message)

	var syntaxErr *json.SyntaxError
	assert.True(t, errors.As(err, &syntaxErr))
	assert.Contains(t, err.Error(), "invalid json frame: unmarshal: ")
}

type recordingHandler struct {
	calls []string
	err   error
}

func (h *recordingHandler) SpeakingStarted(bot string) error {
	h.calls = append(h.calls, "start:"+bot)
	return h.err
}

func (h *recordingHandler) SpeakingStopped(bot string) {
	h.calls = append(h.calls, "stop:"+bot)
}

func (h *recordingHandler) LightCommand(address string, cmd lights.Command) {
	h.calls = append(h.calls, "light:"+address)
}

func (h *recordingHandler) Reset() {
	h.calls = append(h.calls, "reset")
}

func TestApply(t *testing.T) {
	h := &recordingHandler{}

	require.NoError(t, Apply(h, SpeakingStart{Bot: "Puck"}))
	require.NoError(t, Apply(h, SpeakingStop{Bot: "Puck"}))
	require.NoError(t, Apply(h, LightCommand{Address: "10.0.0.5"}))
	require.NoError(t, Apply(h, Disconnect{}))
	assert.Equal(t, []string{"start:Puck", "stop:Puck", "light:10.0.0.5", "reset"}, h.calls)

	h.err = errors.New("unknown bot")
	assert.Error(t, Apply(h, SpeakingStart{Bot: "Nobody"}))
	assert.Error(t, Apply(h, "nonsense"))
}
