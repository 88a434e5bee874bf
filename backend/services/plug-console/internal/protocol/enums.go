package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownValue is wrapped by the Parse helpers for names outside their enum.
var ErrUnknownValue = errors.New("protocol: unknown value")

// DeviceType is the appliance class reported to the plug firmware.
type DeviceType string

// Device types understood by the firmware.
const (
	DevicePlug           DeviceType = "plug"
	DeviceLight          DeviceType = "light"
	DeviceAC             DeviceType = "ac"
	DeviceFridge         DeviceType = "fridge"
	DeviceGeyser         DeviceType = "geyser"
	DeviceFan            DeviceType = "fan"
	DeviceTV             DeviceType = "tv"
	DeviceWashingMachine DeviceType = "washingMachine"
	DeviceMicrowave      DeviceType = "microwave"
	DeviceDishwasher     DeviceType = "dishwasher"
	DeviceOven           DeviceType = "oven"
	DeviceOther          DeviceType = "other"
)

var deviceIcons = map[DeviceType]string{
	DevicePlug:           "🔌",
	DeviceLight:          "💡",
	DeviceAC:             "❄️",
	DeviceFridge:         "🧊",
	DeviceGeyser:         "🔥",
	DeviceFan:            "💨",
	DeviceTV:             "📺",
	DeviceWashingMachine: "🧺",
	DeviceMicrowave:      "🍲",
	DeviceDishwasher:     "🍽️",
	DeviceOven:           "🍞",
	DeviceOther:          "🔌",
}

// ParseDeviceType accepts a wire name, case-insensitively.
func ParseDeviceType(s string) (DeviceType, error) {
	s = strings.TrimSpace(s)
	for t := range deviceIcons {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: device type %q", ErrUnknownValue, s)
}

// Icon returns the dashboard glyph for the type.
func (t DeviceType) Icon() string {
	if icon, ok := deviceIcons[t]; ok {
		return icon
	}
	return deviceIcons[DevicePlug]
}

// Period is the history window requested from the device.
type Period string

// Supported history windows.
const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod validates a wire period name.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	default:
		return "", fmt.Errorf("%w: period %q", ErrUnknownValue, s)
	}
}

// TimerKind selects which relay edge a timer schedules.
type TimerKind int

const (
	TimerOn TimerKind = iota + 1
	TimerOff
)

// ParseTimerKind accepts "on"/"off" as well as the raw tokens.
func ParseTimerKind(s string) (TimerKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "timer_on":
		return TimerOn, nil
	case "off", "timer_off":
		return TimerOff, nil
	default:
		return 0, fmt.Errorf("%w: timer kind %q", ErrUnknownValue, s)
	}
}

func (k TimerKind) token() string {
	if k == TimerOff {
		return tokenTimerOff
	}
	return tokenTimerOn
}

func (k TimerKind) String() string {
	if k == TimerOff {
		return "OFF"
	}
	return "ON"
}
