// Package speech provides the recognition and synthesis backends behind
// the node's speech endpoints. Recognition shells out to a local
// transcription command; synthesis runs either a local command or a cloud
// HTTP API depending on configuration. Both backends are plain interfaces
// so the HTTP layer and tests can substitute fakes.
package speech

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	hostErrors "github.com/dexhub/node/internal/errors"
)

// Transcriber converts recorded audio into text.
type Transcriber interface {
	// Transcribe runs recognition over a complete audio clip and returns
	// the transcript with surrounding whitespace trimmed.
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// CommandTranscriber runs an external transcription command. The audio is
// written to a temporary WAV file and the file path is passed as the
// command's final argument. The command must print the transcript to
// stdout.
type CommandTranscriber struct {
	// Command is the transcription binary, e.g. "whisper-transcribe".
	Command string

	// Args are extra arguments inserted before the audio file path.
	Args []string

	// Timeout bounds a single transcription run. Zero means no limit
	// beyond the caller's context.
	Timeout time.Duration
}

// Transcribe implements Transcriber.
func (t *CommandTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", hostErrors.New(hostErrors.CodeSpeechTranscribeFailed, "empty audio payload")
	}

	tmp, err := os.CreateTemp("", "dexhub-stt-*.wav")
	if err != nil {
		return "", hostErrors.Wrap(hostErrors.CodeSpeechTranscribeFailed, "failed to stage audio", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		return "", hostErrors.Wrap(hostErrors.CodeSpeechTranscribeFailed, "failed to stage audio", err)
	}
	if err := tmp.Close(); err != nil {
		return "", hostErrors.Wrap(hostErrors.CodeSpeechTranscribeFailed, "failed to stage audio", err)
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, t.Args...), tmp.Name())
	cmd := exec.CommandContext(ctx, t.Command, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		log.Printf("speech: transcription command failed: %v (stderr: %s)", err, strings.TrimSpace(stderr.String()))
		return "", hostErrors.Wrap(hostErrors.CodeSpeechTranscribeFailed,
			fmt.Sprintf("transcription command %q failed", t.Command), err)
	}

	return strings.TrimSpace(string(out)), nil
}
