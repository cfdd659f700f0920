// Package room defines the Room capability interface spec §6.2 treats as
// an opaque transport collaborator: participant/track events, audio
// publish/subscribe. The teacher talks straight to local audio hardware
// via malgo and has no Room concept; this package is new, grounded on
// iamprashant-voice-ai's use of pion/webrtc/v4 for the same concern.
package room

import (
	"context"
	"time"
)

// AudioFrame is spec §6.3's wire format: signed 16-bit PCM, mono, a
// provider/sink-negotiated sample rate.
type AudioFrame struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// ParticipantEventType tags events emitted on Room.Events().
type ParticipantEventType string

const (
	ParticipantConnected    ParticipantEventType = "PARTICIPANT_CONNECTED"
	ParticipantDisconnected ParticipantEventType = "PARTICIPANT_DISCONNECTED"
	TrackSubscribed         ParticipantEventType = "TRACK_SUBSCRIBED"
	TrackUnsubscribed       ParticipantEventType = "TRACK_UNSUBSCRIBED"
)

type ParticipantEvent struct {
	Type          ParticipantEventType
	ParticipantID string
}

// Participant is a minimal remote-participant handle.
type Participant struct {
	Identity string
	Metadata string
}

// Room is the capability contract the agent session depends on. Concrete
// transports (WebRTC, local loopback) implement it; the session never
// depends on a concrete transport type.
type Room interface {
	// Connect dials the room at url with token; opts carries
	// transport-specific options opaque to the session.
	Connect(ctx context.Context, url, token string, opts map[string]string) error

	// LocalParticipant identifies this agent's own participant.
	LocalParticipant() Participant

	// RemoteParticipants returns currently known remote participants.
	RemoteParticipants() []Participant

	// WaitForParticipant blocks until a remote participant (optionally
	// matching identity, if non-empty) joins, or returns an error if the
	// room disconnects first — spec §9 adopts "resolves to an error" as
	// the intended waitForParticipant-on-disconnect behavior.
	WaitForParticipant(ctx context.Context, identity string) (Participant, error)

	// PublishAudioTrack publishes frames read from src to the room as the
	// agent's outgoing audio.
	PublishAudioTrack(ctx context.Context, src <-chan AudioFrame) error

	// SubscribeAudioTrack returns a channel of inbound audio frames from
	// the given participant's microphone track.
	SubscribeAudioTrack(ctx context.Context, participantID string) (<-chan AudioFrame, error)

	// Events exposes participant/track lifecycle events.
	Events() <-chan ParticipantEvent

	// ClearBuffer flushes any audio this Room is still holding but has not
	// yet emitted to the remote participant, used when a speech handle is
	// interrupted mid-playback (spec §4.5 "drain its output buffer to the
	// clearBuffer() sink callback").
	ClearBuffer() error

	// Close disconnects from the room. Idempotent.
	Close() error
}

// ErrRoomDisconnected is returned by WaitForParticipant (and any other
// blocking Room call) when the room disconnects before the call resolves.
type ErrRoomDisconnected struct {
	Since time.Time
}

func (e *ErrRoomDisconnected) Error() string {
	return "room: disconnected"
}
