// Package tts turns forecast text into spoken audio. The store accepts audio
// from any producer; this package supplies it when the upload caller has none.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Synthesizer produces spoken audio for forecast text. tone hints at
// delivery style ("neutral", "cheerful", "urgent"); implementations may
// ignore it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, tone string) ([]byte, error)
}

// ErrSynthesisFailed wraps any failure to produce audio.
var ErrSynthesisFailed = errors.New("speech synthesis failed")

// HTTPSynthesizer posts text to a synthesis endpoint and returns the WAV
// bytes from the response body.
type HTTPSynthesizer struct {
	endpoint string
	voice    string
	client   *http.Client
}

// maxAudioBytes bounds how much audio a single synthesis response may carry.
const maxAudioBytes = 32 << 20

// NewHTTPSynthesizer creates a synthesizer client for endpoint. voice selects
// the server-side voice; empty means the server default.
func NewHTTPSynthesizer(endpoint, voice string, timeout time.Duration) (*HTTPSynthesizer, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrSynthesisFailed)
	}
	return &HTTPSynthesizer{
		endpoint: endpoint,
		voice:    voice,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
	Tone  string `json:"tone,omitempty"`
}

// Synthesize implements Synthesizer.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text, tone string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrSynthesisFailed)
	}

	body, err := json.Marshal(synthesizeRequest{Text: text, Voice: s.voice, Tone: tone})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrSynthesisFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrSynthesisFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrSynthesisFailed, resp.StatusCode)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrSynthesisFailed, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio response", ErrSynthesisFailed)
	}
	if len(audio) > maxAudioBytes {
		return nil, fmt.Errorf("%w: audio response exceeds %d bytes", ErrSynthesisFailed, maxAudioBytes)
	}
	return audio, nil
}
