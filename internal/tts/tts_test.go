package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPSynthesizer_Success(t *testing.T) {
	wantAudio := []byte("RIFF....WAVEfmt ")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		var req synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Text != "clear skies in chicago" {
			t.Errorf("text = %q, want %q", req.Text, "clear skies in chicago")
		}
		if req.Voice != "en-US-1" {
			t.Errorf("voice = %q, want %q", req.Voice, "en-US-1")
		}
		if req.Tone != "neutral" {
			t.Errorf("tone = %q, want %q", req.Tone, "neutral")
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wantAudio)
	}))
	defer srv.Close()

	s, err := NewHTTPSynthesizer(srv.URL, "en-US-1", 5*time.Second)
	if err != nil {
		t.Fatalf("NewHTTPSynthesizer() error = %v", err)
	}

	audio, err := s.Synthesize(context.Background(), "clear skies in chicago", "neutral")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != string(wantAudio) {
		t.Errorf("audio = %q, want %q", audio, wantAudio)
	}
}

func TestHTTPSynthesizer_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		text    string
	}{
		{
			"server error",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			"some text",
		},
		{
			"empty audio",
			func(w http.ResponseWriter, r *http.Request) {},
			"some text",
		},
		{
			"empty text",
			func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("audio")) },
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			s, err := NewHTTPSynthesizer(srv.URL, "", time.Second)
			if err != nil {
				t.Fatalf("NewHTTPSynthesizer() error = %v", err)
			}

			_, err = s.Synthesize(context.Background(), tt.text, "")
			if !errors.Is(err, ErrSynthesisFailed) {
				t.Errorf("Synthesize() error = %v, want ErrSynthesisFailed", err)
			}
		})
	}
}

func TestNewHTTPSynthesizer_RequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPSynthesizer("", "", time.Second); !errors.Is(err, ErrSynthesisFailed) {
		t.Errorf("NewHTTPSynthesizer(\"\") error = %v, want ErrSynthesisFailed", err)
	}
}
