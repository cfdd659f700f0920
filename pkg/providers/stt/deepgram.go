package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
)

// DeepgramSTT calls Deepgram's /v1/listen pre-recorded transcription
// endpoint with raw linear-PCM audio.
type DeepgramSTT struct {
	*segmentingSTT
	apiKey string
	url    string
}

// NewDeepgramSTT constructs a DeepgramSTT.
func NewDeepgramSTT(apiKey string) *DeepgramSTT {
	s := &DeepgramSTT{
		apiKey: apiKey,
		url:    "https://api.deepgram.com/v1/listen",
	}
	s.segmentingSTT = newSegmentingSTT(s, 0.02, 700*time.Millisecond)
	return s
}

// Name implements transcriber/agent.STT.
func (s *DeepgramSTT) Name() string {
	return "deepgram-stt"
}

// Transcribe implements transcriber.
func (s *DeepgramSTT) Transcribe(ctx context.Context, audioPCM []byte, lang agent.Language) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", err
	}

	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	if lang != "" {
		params.Set("language", string(lang))
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(audioPCM))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Token "+s.apiKey)
	req.Header.Set("Content-Type", "audio/l16; rate=44100; channels=1")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("deepgram error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}

var _ agent.STT = (*DeepgramSTT)(nil)
