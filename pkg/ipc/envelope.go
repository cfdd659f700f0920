package ipc

import "encoding/json"

// Variant names the logical message kind, matching spec §6.1's table.
type Variant string

const (
	InitializeRequest  Variant = "initializeRequest"
	InitializeResponse Variant = "initializeResponse"
	PingRequest        Variant = "pingRequest"
	PongResponse       Variant = "pongResponse"
	StartJobRequest    Variant = "startJobRequest"
	ShutdownRequest    Variant = "shutdownRequest"
	InferenceRequest   Variant = "inferenceRequest"
	InferenceResponse  Variant = "inferenceResponse"
	Exiting            Variant = "exiting"
	Done               Variant = "done"
)

// Envelope is the one wire type every frame carries; Payload is a
// variant-specific JSON blob decoded on demand by the handler that
// recognizes Variant.
type Envelope struct {
	Variant Variant         `json:"variant"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newEnvelope(v Variant, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Variant: v, Payload: raw}, nil
}

// LoggerOptions is carried by InitializeRequestPayload.
type LoggerOptions struct {
	Level     string `json:"level"`
	FilePath  string `json:"filePath,omitempty"`
	JobID     string `json:"jobId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type InitializeRequestPayload struct {
	LoggerOptions     LoggerOptions `json:"loggerOptions"`
	PingIntervalMS    int64         `json:"pingInterval"`
	PingTimeoutMS     int64         `json:"pingTimeout"`
	HighPingThreshold int64         `json:"highPingThreshold"`
}

func NewInitializeRequest(p InitializeRequestPayload) (Envelope, error) {
	return newEnvelope(InitializeRequest, p)
}

type InitializeResponsePayload struct {
	Error string `json:"error,omitempty"`
}

func NewInitializeResponse(p InitializeResponsePayload) (Envelope, error) {
	return newEnvelope(InitializeResponse, p)
}

type PingRequestPayload struct {
	Timestamp int64 `json:"ts"`
}

func NewPingRequest(ts int64) (Envelope, error) {
	return newEnvelope(PingRequest, PingRequestPayload{Timestamp: ts})
}

type PongResponsePayload struct {
	LastTimestamp int64 `json:"lastTimestamp"`
	Timestamp     int64 `json:"timestamp"`
}

func NewPongResponse(p PongResponsePayload) (Envelope, error) {
	return newEnvelope(PongResponse, p)
}

// AcceptArguments mirrors the job-accept metadata a dispatch server may
// attach to an assignment.
type AcceptArguments struct {
	Identity   string            `json:"identity"`
	Metadata   string            `json:"metadata,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// RunningJob is spec §3's Job entity serialized for transport.
type RunningJob struct {
	ID              string          `json:"id"`
	RoomName        string          `json:"roomName"`
	ParticipantID   string          `json:"participantId,omitempty"`
	AgentName       string          `json:"agentName"`
	AcceptArguments AcceptArguments `json:"acceptArguments"`
	URL             string          `json:"url"`
	Token           string          `json:"token"`
	WorkerID        string          `json:"workerId"`
}

type StartJobRequestPayload struct {
	RunningJob RunningJob `json:"runningJob"`
}

func NewStartJobRequest(job RunningJob) (Envelope, error) {
	return newEnvelope(StartJobRequest, StartJobRequestPayload{RunningJob: job})
}

type ShutdownRequestPayload struct {
	Reason string `json:"reason,omitempty"`
}

func NewShutdownRequest(reason string) (Envelope, error) {
	return newEnvelope(ShutdownRequest, ShutdownRequestPayload{Reason: reason})
}

type InferenceRequestPayload struct {
	Method    string          `json:"method"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func NewInferenceRequest(p InferenceRequestPayload) (Envelope, error) {
	return newEnvelope(InferenceRequest, p)
}

type InferenceResponsePayload struct {
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func NewInferenceResponse(p InferenceResponsePayload) (Envelope, error) {
	return newEnvelope(InferenceResponse, p)
}

type ExitingPayload struct {
	Reason string `json:"reason,omitempty"`
}

func NewExiting(reason string) (Envelope, error) {
	return newEnvelope(Exiting, ExitingPayload{Reason: reason})
}

func NewDone() (Envelope, error) {
	return newEnvelope(Done, struct{}{})
}

// Decode unmarshals env.Payload into v.
func Decode(env Envelope, v interface{}) error {
	return json.Unmarshal(env.Payload, v)
}
