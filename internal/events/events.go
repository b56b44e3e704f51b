// Package events decodes the JSON frames sent by the voice client and applies
// them to a session.
package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/scheerer/crystal-lights/lights"
)

const (
	TypeSpeakingStart = "speaking_start"
	TypeSpeakingStop  = "speaking_stop"
	TypeLightCommand  = "light_command"
	TypeDisconnect    = "disconnect"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
	// Err is the underlying parse failure, if any. It is logged but never
	// sent back to clients.
	Err error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if strings.TrimSpace(e.Param) != "" {
		msg = fmt.Sprintf("%s (%s)", e.Message, e.Param)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Cause() error { return e.Err }

func (e *DecodeError) Unwrap() error { return e.Err }

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func malformed(message string, err error) *DecodeError {
	d := badRequest(message, "")
	d.Err = errors.Wrap(err, "unmarshal")
	return d
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

type SpeakingStart struct {
	Bot string
}

type SpeakingStop struct {
	Bot string
}

type LightCommand struct {
	Address string
	Command lights.Command
}

type Disconnect struct{}

// botFrame accepts every spelling of the bot identifier seen from clients.
type botFrame struct {
	BotConfig     string `json:"bot_config"`
	BotIdentifier string `json:"botIdentifier"`
	Bot           string `json:"bot"`
}

func (f botFrame) bot() string {
	for _, b := range []string{f.BotConfig, f.BotIdentifier, f.Bot} {
		if b = strings.TrimSpace(b); b != "" {
			return b
		}
	}
	return ""
}

type lightCommandFrame struct {
	ShellyIP      string `json:"shelly_ip"`
	ShellyAddress string `json:"shellyAddress"`
	Command       *struct {
		Red   *int `json:"red"`
		Green *int `json:"green"`
		Blue  *int `json:"blue"`
		White *int `json:"white"`
	} `json:"command"`
}

// Decode parses one frame into SpeakingStart, SpeakingStop, LightCommand or
// Disconnect. Malformed frames return a *DecodeError.
func Decode(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, malformed("invalid json frame", err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case TypeSpeakingStart, TypeSpeakingStop:
		var msg botFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, malformed("invalid "+typ+" frame", err)
		}
		bot := msg.bot()
		if typ == TypeSpeakingStart {
			if bot == "" {
				return nil, badRequest("speaking_start.bot_config is required", "bot_config")
			}
			return SpeakingStart{Bot: bot}, nil
		}
		return SpeakingStop{Bot: bot}, nil
	case TypeLightCommand:
		var msg lightCommandFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, malformed("invalid light_command frame", err)
		}
		if msg.Command == nil {
			return nil, badRequest("light_command.command is required", "command")
		}
		var cmd lights.Command
		channels := []struct {
			name  string
			value *int
			dst   *uint8
		}{
			{"red", msg.Command.Red, &cmd.Red},
			{"green", msg.Command.Green, &cmd.Green},
			{"blue", msg.Command.Blue, &cmd.Blue},
			{"white", msg.Command.White, &cmd.White},
		}
		for _, ch := range channels {
			if ch.value == nil {
				continue
			}
			if *ch.value < 0 || *ch.value > 255 {
				return nil, badRequest("light_command.command."+ch.name+" must be within 0..255", ch.name)
			}
			*ch.dst = uint8(*ch.value)
		}
		address := strings.TrimSpace(msg.ShellyIP)
		if address == "" {
			address = strings.TrimSpace(msg.ShellyAddress)
		}
		return LightCommand{Address: address, Command: cmd}, nil
	case TypeDisconnect:
		return Disconnect{}, nil
	default:
		return nil, unsupported("unsupported message type", "type")
	}
}

// Handler receives decoded events.
type Handler interface {
	SpeakingStarted(bot string) error
	SpeakingStopped(bot string)
	LightCommand(address string, cmd lights.Command)
	Reset()
}

// Apply routes msg to h. Only a failed speaking start returns an error.
func Apply(h Handler, msg any) error {
	switch m := msg.(type) {
	case SpeakingStart:
		return h.SpeakingStarted(m.Bot)
	case SpeakingStop:
		h.SpeakingStopped(m.Bot)
	case LightCommand:
		h.LightCommand(m.Address, m.Command)
	case Disconnect:
		h.Reset()
	default:
		return unsupported(fmt.Sprintf("unsupported event %T", msg), "")
	}
	return nil
}
