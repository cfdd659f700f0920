package room

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// LocalRoom is a Room implementation that talks directly to the machine's
// microphone/speaker via malgo instead of a real transport — used by the
// `dev`/`connect` CLI subcommands for manual testing, exactly the role the
// teacher's cmd/agent/main.go malgo duplex loop played before this spec
// introduced a Room abstraction.
type LocalRoom struct {
	mu         sync.Mutex
	sampleRate int
	channels   int

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	captured chan AudioFrame
	playback []byte
	closed   bool
	events   chan ParticipantEvent
}

// NewLocalRoom opens a duplex malgo device at the given format.
func NewLocalRoom(sampleRate, channels int) (*LocalRoom, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("room: malgo init: %w", err)
	}

	r := &LocalRoom{
		sampleRate: sampleRate,
		channels:   channels,
		ctx:        mctx,
		captured:   make(chan AudioFrame, 64),
		events:     make(chan ParticipantEvent, 8),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput != nil {
			frame := make([]byte, len(pInput))
			copy(frame, pInput)
			select {
			case r.captured <- AudioFrame{Data: frame, SampleRate: sampleRate, Channels: channels}:
			default:
			}
		}
		if pOutput != nil {
			r.mu.Lock()
			n := copy(pOutput, r.playback)
			r.playback = r.playback[n:]
			for i := n; i < len(pOutput); i++ {
				pOutput[i] = 0
			}
			r.mu.Unlock()
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		mctx.Uninit()
		return nil, fmt.Errorf("room: malgo init device: %w", err)
	}
	r.device = device
	return r, nil
}

func (r *LocalRoom) Connect(ctx context.Context, url, token string, opts map[string]string) error {
	return r.device.Start()
}

func (r *LocalRoom) LocalParticipant() Participant {
	return Participant{Identity: "local-mic"}
}

func (r *LocalRoom) RemoteParticipants() []Participant {
	return []Participant{{Identity: "local-speaker"}}
}

func (r *LocalRoom) WaitForParticipant(ctx context.Context, identity string) (Participant, error) {
	return Participant{Identity: "local-speaker"}, nil
}

func (r *LocalRoom) PublishAudioTrack(ctx context.Context, src <-chan AudioFrame) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-src:
				if !ok {
					return
				}
				r.mu.Lock()
				r.playback = append(r.playback, frame.Data...)
				r.mu.Unlock()
			}
		}
	}()
	return nil
}

// ClearBuffer discards any queued-but-not-yet-played-out playback audio.
func (r *LocalRoom) ClearBuffer() error {
	r.mu.Lock()
	r.playback = nil
	r.mu.Unlock()
	return nil
}

func (r *LocalRoom) SubscribeAudioTrack(ctx context.Context, participantID string) (<-chan AudioFrame, error) {
	return r.captured, nil
}

func (r *LocalRoom) Events() <-chan ParticipantEvent {
	return r.events
}

func (r *LocalRoom) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if r.device != nil {
		r.device.Uninit()
	}
	if r.ctx != nil {
		r.ctx.Uninit()
	}
	return nil
}
