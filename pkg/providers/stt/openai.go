package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
	"github.com/lokutor-ai/voxrunner/pkg/audio"
)

// OpenAISTT calls OpenAI's /v1/audio/transcriptions Whisper endpoint.
type OpenAISTT struct {
	*segmentingSTT
	apiKey     string
	url        string
	model      string
	sampleRate int
}

// NewOpenAISTT constructs an OpenAISTT.
func NewOpenAISTT(apiKey string, model string) *OpenAISTT {
	if model == "" {
		model = "whisper-1"
	}
	s := &OpenAISTT{
		apiKey:     apiKey,
		url:        "https://api.openai.com/v1/audio/transcriptions",
		model:      model,
		sampleRate: 44100,
	}
	s.segmentingSTT = newSegmentingSTT(s, 0.02, 700*time.Millisecond)
	return s
}

// SetSampleRate overrides the sample rate used when framing PCM as WAV.
func (s *OpenAISTT) SetSampleRate(rate int) { s.sampleRate = rate }

// Name implements transcriber/agent.STT.
func (s *OpenAISTT) Name() string {
	return "openai_stt"
}

// Transcribe implements transcriber.
func (s *OpenAISTT) Transcribe(ctx context.Context, audioPCM []byte, lang agent.Language) (string, error) {
	wavData := audio.NewWavBuffer(audioPCM, s.sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", s.model); err != nil {
		return "", err
	}
	if lang != "" {
		if err := writer.WriteField("language", string(lang)); err != nil {
			return "", err
		}
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(wavData); err != nil {
		return "", err
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai error: %s (status %d)", string(respBody), resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Text, nil
}

var _ agent.STT = (*OpenAISTT)(nil)
