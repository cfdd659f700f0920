// Package dispatch implements spec §4.1's Worker: the long-lived control
// connection a worker process keeps open to a dispatch server, over which
// it advertises capacity and receives job assignments. The dispatch
// server's own wire protocol is out of this spec's scope (§6 only
// specifies the parent/child IPC envelope); this package's JSON-over-
// websocket message shape is this module's own choice, grounded on the
// teacher's own coder/websocket + wsjson usage in pkg/providers/tts
// (the only websocket client anywhere in the teacher's tree) extended
// with a tagged-envelope shape mirroring pkg/ipc's Variant pattern.
package dispatch

import "encoding/json"

// MessageType tags a dispatch-protocol message.
type MessageType string

const (
	// Worker -> server
	MsgRegister     MessageType = "register"
	MsgPing         MessageType = "ping"
	MsgAvailability MessageType = "availability"

	// Server -> worker
	MsgRegistered  MessageType = "registered"
	MsgAssignment  MessageType = "assignment"
	MsgTermination MessageType = "termination"
	MsgPong        MessageType = "pong"
)

// Message is the one envelope type exchanged in both directions.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newMessage(t MessageType, payload interface{}) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Payload: raw}, nil
}

// RegisterPayload advertises this worker's identity and capability.
type RegisterPayload struct {
	AgentName  string `json:"agentName"`
	WorkerType string `json:"workerType"` // ROOM | PUBLISHER
}

// PingPayload carries a client timestamp the server must echo back
// verbatim in PongPayload.LastTimestamp.
type PingPayload struct {
	Timestamp int64 `json:"ts"`
}

// PongPayload is the server's reply to a ping.
type PongPayload struct {
	LastTimestamp int64 `json:"lastTimestamp"`
	Timestamp     int64 `json:"timestamp"`
}

// AvailabilityPayload reports current load in [0,1] — 1 meaning fully
// loaded (no idle processes left), per spec §4.1.
type AvailabilityPayload struct {
	Load float64 `json:"load"`
}

// AssignmentPayload is a job handed down by the server.
type AssignmentPayload struct {
	JobID           string            `json:"jobId"`
	RoomName        string            `json:"roomName"`
	URL             string            `json:"url"`
	Token           string            `json:"token"`
	Identity        string            `json:"identity,omitempty"`
	Metadata        string            `json:"metadata,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
}

// TerminationPayload asks the worker to wind down a specific job.
type TerminationPayload struct {
	JobID  string `json:"jobId"`
	Reason string `json:"reason,omitempty"`
}
