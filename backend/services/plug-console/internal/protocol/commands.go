package protocol

import (
	"encoding/json"
	"errors"
	"strconv"
)

// Bare text tokens the firmware matches literally.
const (
	tokenToggleRelay = "TOGGLE_RELAY"
	tokenTimerOn     = "TIMER_ON"
	tokenTimerOff    = "TIMER_OFF"
)

// Discriminators of the JSON commands.
const (
	typeSetDevice = "setDevice"
	typeGetData   = "getData"
)

// ErrInvalidDelay is returned for timer commands without a positive delay.
var ErrInvalidDelay = errors.New("protocol: timer delay must be positive")

// Command is an outbound instruction for the plug.
type Command interface {
	isCommand()
}

// ToggleRelay flips the relay.
type ToggleRelay struct{}

// SetTimer schedules a relay edge DelaySeconds from now.
type SetTimer struct {
	Kind         TimerKind
	DelaySeconds int
}

// SetDeviceType tells the firmware what is plugged in.
type SetDeviceType struct {
	Type DeviceType
}

// RequestHistory asks for historical readings over Period.
type RequestHistory struct {
	Period Period
}

func (ToggleRelay) isCommand()    {}
func (SetTimer) isCommand()       {}
func (SetDeviceType) isCommand()  {}
func (RequestHistory) isCommand() {}

type setDeviceMessage struct {
	Type   string     `json:"type"`
	Device DeviceType `json:"device"`
}

type getDataMessage struct {
	Type   string `json:"type"`
	Period Period `json:"period"`
}

// Encode renders cmd in the firmware's wire format. Relay and timer commands are
// plain tokens; device type and history requests are tagged JSON objects.
func Encode(cmd Command) ([]byte, error) {
	switch c := cmd.(type) {
	case ToggleRelay:
		return []byte(tokenToggleRelay), nil
	case SetTimer:
		if c.DelaySeconds <= 0 {
			return nil, ErrInvalidDelay
		}
		return []byte(c.Kind.token() + ":" + strconv.Itoa(c.DelaySeconds)), nil
	case SetDeviceType:
		return json.Marshal(setDeviceMessage{Type: typeSetDevice, Device: c.Type})
	case RequestHistory:
		return json.Marshal(getDataMessage{Type: typeGetData, Period: c.Period})
	default:
		return nil, errors.New("protocol: unsupported command")
	}
}
