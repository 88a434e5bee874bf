package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Inbound frame discriminators.
const (
	TypeData           = "data"
	TypeRelayState     = "relayState"
	TypeAlert          = "alert"
	TypeHistoricalData = "historicalData"
	TypeChart          = "chart"
)

// Event is a classified inbound frame.
type Event interface {
	isEvent()
}

// Telemetry is one instantaneous measurement set.
type Telemetry struct {
	VoltageV    float64 `json:"voltage"`
	CurrentA    float64 `json:"current"`
	PowerW      float64 `json:"power"`
	FrequencyHz float64 `json:"frequency"`
	EnergyKWh   float64 `json:"energy"`
}

// RelayState reports the relay output.
type RelayState struct {
	On bool
}

// Alert carries a device-side message for the user.
type Alert struct {
	Message string
}

// Sample is one historical energy reading.
type Sample struct {
	TimestampSeconds int64   `json:"t"`
	EnergyKWh        float64 `json:"e"`
}

// ChartPayload is a chart the device already bucketed itself.
type ChartPayload struct {
	Labels      []string
	Values      []float64
	TotalEnergy *float64
	TotalCost   *float64
}

// HistoryReady answers a history request. Exactly one of Samples or Chart is set.
// Period is empty when the device did not echo it.
type HistoryReady struct {
	Period  Period
	Samples []Sample
	Chart   *ChartPayload
}

func (Telemetry) isEvent()    {}
func (RelayState) isEvent()   {}
func (Alert) isEvent()        {}
func (HistoryReady) isEvent() {}

type envelope struct {
	Type string `json:"type"`
}

type dataFrame struct {
	Voltage   *float64 `json:"voltage"`
	Current   *float64 `json:"current"`
	Power     *float64 `json:"power"`
	Frequency *float64 `json:"frequency"`
	Energy    *float64 `json:"energy"`
}

type relayFrame struct {
	State *bool `json:"state"`
}

type alertFrame struct {
	Message *string `json:"message"`
}

type historyFrame struct {
	Period   string   `json:"period"`
	Readings []Sample `json:"readings"`
	Data     []Sample `json:"data"`
}

type chartFrame struct {
	Period string `json:"period"`
	Chart  *struct {
		Labels      []string   `json:"labels"`
		Values      []float64  `json:"values"`
		TotalEnergy flexNumber `json:"totalEnergy"`
		TotalCost   flexNumber `json:"totalCost"`
	} `json:"chart"`
}

// flexNumber accepts 1.5, "1.5" and placeholders like "--" (left unset).
type flexNumber struct {
	v *float64
}

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			f.v = &n
		}
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	f.v = &n
	return nil
}

// Decode classifies a raw inbound frame. ok is false for anything that is not a
// JSON object with a known type and its required fields; callers drop those.
func Decode(raw []byte) (ev Event, ok bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}

	switch env.Type {
	case TypeData:
		var f dataFrame
		if json.Unmarshal(raw, &f) != nil {
			return nil, false
		}
		if f.Voltage == nil || f.Current == nil || f.Power == nil || f.Frequency == nil || f.Energy == nil {
			return nil, false
		}
		return Telemetry{
			VoltageV:    *f.Voltage,
			CurrentA:    *f.Current,
			PowerW:      *f.Power,
			FrequencyHz: *f.Frequency,
			EnergyKWh:   *f.Energy,
		}, true

	case TypeRelayState:
		var f relayFrame
		if json.Unmarshal(raw, &f) != nil || f.State == nil {
			return nil, false
		}
		return RelayState{On: *f.State}, true

	case TypeAlert:
		var f alertFrame
		if json.Unmarshal(raw, &f) != nil || f.Message == nil {
			return nil, false
		}
		return Alert{Message: *f.Message}, true

	case TypeHistoricalData:
		var f historyFrame
		if json.Unmarshal(raw, &f) != nil {
			return nil, false
		}
		samples := f.Readings
		if samples == nil {
			samples = f.Data
		}
		if samples == nil {
			return nil, false
		}
		return HistoryReady{Period: periodOrEmpty(f.Period), Samples: samples}, true

	case TypeChart:
		var f chartFrame
		if json.Unmarshal(raw, &f) != nil || f.Chart == nil {
			return nil, false
		}
		return HistoryReady{
			Period: periodOrEmpty(f.Period),
			Chart: &ChartPayload{
				Labels:      f.Chart.Labels,
				Values:      f.Chart.Values,
				TotalEnergy: f.Chart.TotalEnergy.v,
				TotalCost:   f.Chart.TotalCost.v,
			},
		}, true
	}

	return nil, false
}

func periodOrEmpty(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		return ""
	}
	return p
}
