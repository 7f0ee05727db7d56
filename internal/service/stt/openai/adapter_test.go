package openai

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"

	"profanity-stream-service/internal/service/stt"
)

var _ stt.Transcriber = (*Adapter)(nil)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Model != "whisper-1" {
		t.Errorf("expected model 'whisper-1', got %s", cfg.Model)
	}
	if cfg.Language != "ko" {
		t.Errorf("expected language 'ko', got %s", cfg.Language)
	}
}

func TestTranscribe_PostsMultipartWAV(t *testing.T) {
	var (
		gotPath  string
		gotModel string
		gotLang  string
		gotSize  int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart body: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		if f, hdr, err := r.FormFile("file"); err == nil {
			gotSize = int(hdr.Size)
			f.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" 아 진짜 짜증나네 "}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL + "/v1/"
	a, err := New(cfg, option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, err := a.Transcribe(context.Background(), make([]float32, 160))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "아 진짜 짜증나네" {
		t.Errorf("expected trimmed transcript, got %q", text)
	}
	if !strings.HasSuffix(gotPath, "/audio/transcriptions") {
		t.Errorf("expected transcription endpoint, got %s", gotPath)
	}
	if gotModel != "whisper-1" {
		t.Errorf("expected model whisper-1, got %s", gotModel)
	}
	if gotLang != "ko" {
		t.Errorf("expected language ko, got %s", gotLang)
	}
	if gotSize != 44+320 {
		t.Errorf("expected %d byte WAV upload, got %d", 44+320, gotSize)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	a, _ := New(Config{APIKey: "k", BaseURL: srv.URL + "/v1/", Model: "whisper-1"}, option.WithMaxRetries(0))
	if _, err := a.Transcribe(context.Background(), []float32{0.1}); err == nil {
		t.Error("expected error from server")
	}
}

func TestTranscribe_EmptyWindow(t *testing.T) {
	a, _ := New(Config{APIKey: "k"})
	text, err := a.Transcribe(context.Background(), nil)
	if err != nil || text != "" {
		t.Errorf("expected empty result, got %q, %v", text, err)
	}
}

func TestEncodeWAV_Header(t *testing.T) {
	wav := encodeWAV([]float32{0, 0.5, -0.5}, 16000)

	if len(wav) != 44+6 {
		t.Fatalf("expected 50 bytes, got %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Error("expected RIFF/WAVE/data markers")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", rate)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); size != 6 {
		t.Errorf("expected data size 6, got %d", size)
	}
}
