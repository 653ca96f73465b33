package speech

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	hostErrors "github.com/dexhub/node/internal/errors"
)

func TestCommandTranscriber(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test relies on unix commands")
	}

	// cat prints the staged audio file verbatim, so the "transcript" is
	// just the audio payload with whitespace trimmed.
	tr := &CommandTranscriber{Command: "cat"}
	text, err := tr.Transcribe(context.Background(), []byte("hello from the microphone\n"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello from the microphone" {
		t.Errorf("transcript = %q", text)
	}
}

func TestCommandTranscriberEmptyAudio(t *testing.T) {
	tr := &CommandTranscriber{Command: "cat"}
	_, err := tr.Transcribe(context.Background(), nil)
	if !hostErrors.IsCode(err, hostErrors.CodeSpeechTranscribeFailed) {
		t.Errorf("expected transcribe_failed, got %v", err)
	}
}

func TestCommandTranscriberCommandFailure(t *testing.T) {
	tr := &CommandTranscriber{Command: "definitely-not-a-real-command-xyz"}
	_, err := tr.Transcribe(context.Background(), []byte("audio"))
	if !hostErrors.IsCode(err, hostErrors.CodeSpeechTranscribeFailed) {
		t.Errorf("expected transcribe_failed, got %v", err)
	}
}

func TestCommandSynthesizer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test relies on unix shell scripts")
	}

	// Stand-in for say: writes the text argument into the -o target.
	script := filepath.Join(t.TempDir(), "fake-say")
	content := "#!/bin/sh\nprintf '%s' \"$3\" > \"$2\"\n"
	if err := os.WriteFile(script, []byte(content), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	s := &CommandSynthesizer{Command: script}
	clip, err := s.Synthesize(context.Background(), "good morning")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(clip.Audio) != "good morning" {
		t.Errorf("audio = %q", clip.Audio)
	}
	if clip.Format != "aiff" {
		t.Errorf("format = %q, want aiff", clip.Format)
	}
}

func TestCommandSynthesizerEmptyText(t *testing.T) {
	s := &CommandSynthesizer{Command: "say"}
	_, err := s.Synthesize(context.Background(), "")
	if !hostErrors.IsCode(err, hostErrors.CodeSpeechEmptyText) {
		t.Errorf("expected empty_text, got %v", err)
	}
}

func cloudResponseBody(audio []byte) string {
	return fmt.Sprintf(
		`{"candidates":[{"content":{"parts":[{"inlineData":{"data":%q}}]}}]}`,
		base64.StdEncoding.EncodeToString(audio))
}

func TestCloudSynthesizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, cloudResponseBody([]byte("pcm-bytes")))
	}))
	defer srv.Close()

	s := &CloudSynthesizer{URL: srv.URL, APIKey: "secret"}
	clip, err := s.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(clip.Audio) != "pcm-bytes" {
		t.Errorf("audio = %q", clip.Audio)
	}
	if clip.Format != "pcm" {
		t.Errorf("format = %q, want pcm", clip.Format)
	}
}

func TestCloudSynthesizerRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, cloudResponseBody([]byte("ok")))
	}))
	defer srv.Close()

	s := &CloudSynthesizer{URL: srv.URL, APIKey: "secret", MaxElapsed: 10 * time.Second}
	clip, err := s.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize failed after retry: %v", err)
	}
	if string(clip.Audio) != "ok" {
		t.Errorf("audio = %q", clip.Audio)
	}
	if calls.Load() < 2 {
		t.Errorf("expected a retry, got %d calls", calls.Load())
	}
}

func TestCloudSynthesizerMalformedResponseNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	s := &CloudSynthesizer{URL: srv.URL, APIKey: "secret", MaxElapsed: 5 * time.Second}
	_, err := s.Synthesize(context.Background(), "hello")
	if !hostErrors.IsCode(err, hostErrors.CodeSpeechSynthesisFailed) {
		t.Errorf("expected synthesis_failed, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("empty candidate list should not be retried, got %d calls", calls.Load())
	}
}

func TestCloudSynthesizerMissingKey(t *testing.T) {
	s := &CloudSynthesizer{URL: "http://localhost:1/tts"}
	_, err := s.Synthesize(context.Background(), "hello")
	if !hostErrors.IsCode(err, hostErrors.CodeSpeechSynthesisFailed) {
		t.Errorf("expected synthesis_failed, got %v", err)
	}
}
