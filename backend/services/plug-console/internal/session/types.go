package session

import (
	"encoding/json"
	"fmt"
	"time"

	"smartplug/backend/services/plug-console/internal/models"
	"smartplug/backend/services/plug-console/internal/protocol"
)

// State of the session transport.
type State int

const (
	Idle State = iota
	Connecting
	Open
	Closed
	Failed
)

var stateNames = [...]string{"idle", "connecting", "open", "closed", "failed"}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalJSON renders the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses a state name.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for i, n := range stateNames {
		if n == name {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("session: unknown state %q", name)
}

// Telemetry is the latest measurement set, replaced as a whole on every data frame.
type Telemetry struct {
	protocol.Telemetry
	ReceivedAt time.Time `json:"receivedAt"`
}

// Snapshot is a point-in-time copy of session state.
type Snapshot struct {
	Device    *models.Device `json:"device,omitempty"`
	State     State          `json:"state"`
	RelayOn   bool           `json:"relayOn"`
	Telemetry Telemetry      `json:"telemetry"`
	LastAlert string         `json:"lastAlert,omitempty"`
}

// UpdateKind says what changed.
type UpdateKind string

const (
	UpdateState     UpdateKind = "state"
	UpdateTelemetry UpdateKind = "telemetry"
	UpdateRelay     UpdateKind = "relay"
	UpdateAlert     UpdateKind = "alert"
	UpdateHistory   UpdateKind = "history"
)

// Update is one entry of the session's update stream. Alert is set for UpdateAlert,
// History for UpdateHistory.
type Update struct {
	Kind     UpdateKind
	Snapshot Snapshot
	Alert    string
	History  *protocol.HistoryReady
}

type eventKind int

const (
	eventOpened eventKind = iota
	eventFrame
	eventClosed
	eventFailed
)

type event struct {
	kind        eventKind
	transportID uint64
	conn        Conn
	data        []byte
	err         error
}
