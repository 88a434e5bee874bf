package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTokens(t *testing.T) {
	cases := []struct {
		name string
		cmd  Command
		want string
	}{
		{"toggle", ToggleRelay{}, "TOGGLE_RELAY"},
		{"timer on", SetTimer{Kind: TimerOn, DelaySeconds: 300}, "TIMER_ON:300"},
		{"timer off", SetTimer{Kind: TimerOff, DelaySeconds: 60}, "TIMER_OFF:60"},
		{"set device", SetDeviceType{Type: DeviceFridge}, `{"type":"setDevice","device":"fridge"}`},
		{"set device camel", SetDeviceType{Type: DeviceWashingMachine}, `{"type":"setDevice","device":"washingMachine"}`},
		{"history", RequestHistory{Period: PeriodWeek}, `{"type":"getData","period":"week"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Encode(tc.cmd)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestEncodeRejectsNonPositiveDelay(t *testing.T) {
	for _, delay := range []int{0, -60} {
		_, err := Encode(SetTimer{Kind: TimerOn, DelaySeconds: delay})
		assert.ErrorIs(t, err, ErrInvalidDelay)
	}
}

func TestDecodeTelemetry(t *testing.T) {
	ev, ok := Decode([]byte(`{"type":"data","voltage":230,"current":1.5,"power":345,"frequency":50,"energy":0.42}`))
	require.True(t, ok)
	assert.Equal(t, Telemetry{VoltageV: 230, CurrentA: 1.5, PowerW: 345, FrequencyHz: 50, EnergyKWh: 0.42}, ev)
}

func TestDecodeTelemetryRequiresAllFields(t *testing.T) {
	_, ok := Decode([]byte(`{"type":"data","voltage":230,"current":1.5,"power":345,"frequency":50}`))
	assert.False(t, ok)

	_, ok = Decode([]byte(`{"type":"data","voltage":"230","current":1.5,"power":345,"frequency":50,"energy":1}`))
	assert.False(t, ok)
}

func TestDecodeRelayAndAlert(t *testing.T) {
	ev, ok := Decode([]byte(`{"type":"relayState","state":true}`))
	require.True(t, ok)
	assert.Equal(t, RelayState{On: true}, ev)

	_, ok = Decode([]byte(`{"type":"relayState"}`))
	assert.False(t, ok)

	ev, ok = Decode([]byte(`{"type":"alert","message":"Overcurrent"}`))
	require.True(t, ok)
	assert.Equal(t, Alert{Message: "Overcurrent"}, ev)
}

func TestDecodeHistoricalData(t *testing.T) {
	ev, ok := Decode([]byte(`{"type":"historicalData","period":"day","readings":[{"t":0,"e":1.0},{"t":3600,"e":2.0}]}`))
	require.True(t, ok)
	h := ev.(HistoryReady)
	assert.Equal(t, PeriodDay, h.Period)
	assert.Nil(t, h.Chart)
	assert.Equal(t, []Sample{{0, 1.0}, {3600, 2.0}}, h.Samples)

	ev, ok = Decode([]byte(`{"type":"historicalData","data":[{"t":10,"e":0.5}]}`))
	require.True(t, ok)
	h = ev.(HistoryReady)
	assert.Equal(t, Period(""), h.Period)
	assert.Equal(t, []Sample{{10, 0.5}}, h.Samples)
}

func TestDecodeChartPayload(t *testing.T) {
	ev, ok := Decode([]byte(`{"type":"chart","chart":{"labels":["Mon","Tue"],"values":[1.5,2],"totalEnergy":"3.50","totalCost":"--"}}`))
	require.True(t, ok)
	h := ev.(HistoryReady)
	require.NotNil(t, h.Chart)
	assert.Equal(t, []string{"Mon", "Tue"}, h.Chart.Labels)
	assert.Equal(t, []float64{1.5, 2}, h.Chart.Values)
	require.NotNil(t, h.Chart.TotalEnergy)
	assert.InDelta(t, 3.5, *h.Chart.TotalEnergy, 1e-9)
	assert.Nil(t, h.Chart.TotalCost)

	_, ok = Decode([]byte(`{"type":"chart"}`))
	assert.False(t, ok)
}

func TestDecodeDiscardsGarbage(t *testing.T) {
	for _, raw := range []string{
		`{"type":"unknown","x":1}`,
		`TOGGLE_RELAY`,
		`[1,2,3]`,
		`null`,
		`{"voltage":230}`,
		`{"type":"alert","message":`,
		`{"type":"historicalData"}`,
		`{"type":"historicalData","period":"day"}`,
	} {
		ev, ok := Decode([]byte(raw))
		assert.False(t, ok, raw)
		assert.Nil(t, ev, raw)
	}
}

func TestDecodeEmptyHistory(t *testing.T) {
	ev, ok := Decode([]byte(`{"type":"historicalData","period":"month","readings":[]}`))
	require.True(t, ok)
	h, isHistory := ev.(HistoryReady)
	require.True(t, isHistory)
	assert.Equal(t, PeriodMonth, h.Period)
	assert.NotNil(t, h.Samples)
	assert.Empty(t, h.Samples)
}

func TestParseHelpers(t *testing.T) {
	p, err := ParsePeriod("Month")
	require.NoError(t, err)
	assert.Equal(t, PeriodMonth, p)
	_, err = ParsePeriod("decade")
	assert.Error(t, err)

	dt, err := ParseDeviceType("washingmachine")
	require.NoError(t, err)
	assert.Equal(t, DeviceWashingMachine, dt)
	_, err = ParseDeviceType("toaster")
	assert.Error(t, err)

	k, err := ParseTimerKind("off")
	require.NoError(t, err)
	assert.Equal(t, TimerOff, k)
	_, err = ParseTimerKind("later")
	assert.Error(t, err)

	assert.Equal(t, "🧊", DeviceFridge.Icon())
	assert.Equal(t, "🔌", DeviceType("toaster").Icon())
}
