package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff"

	hostErrors "github.com/dexhub/node/internal/errors"
)

// Clip is synthesized audio plus its container format, e.g. "aiff" for
// local synthesis output or "pcm" for cloud output.
type Clip struct {
	Audio  []byte
	Format string
}

// Synthesizer converts text into spoken audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Clip, error)
}

// CommandSynthesizer runs a local synthesis command that accepts
// "-o <file> <text>", like the macOS say utility. The command writes an
// AIFF file which is read back and returned.
type CommandSynthesizer struct {
	// Command is the synthesis binary, e.g. "say".
	Command string

	// Timeout bounds a single synthesis run. Zero means no limit beyond
	// the caller's context.
	Timeout time.Duration
}

// Synthesize implements Synthesizer.
func (s *CommandSynthesizer) Synthesize(ctx context.Context, text string) (*Clip, error) {
	if text == "" {
		return nil, hostErrors.New(hostErrors.CodeSpeechEmptyText, "no text provided")
	}

	tmp, err := os.CreateTemp("", "dexhub-tts-*.aiff")
	if err != nil {
		return nil, hostErrors.Wrap(hostErrors.CodeSpeechSynthesisFailed, "failed to stage output file", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.Command, "-o", tmpName, text)
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Printf("speech: synthesis command failed: %v (%s)", err, bytes.TrimSpace(out))
		return nil, hostErrors.Wrap(hostErrors.CodeSpeechSynthesisFailed,
			fmt.Sprintf("synthesis command %q failed", s.Command), err)
	}

	audio, err := os.ReadFile(tmpName)
	if err != nil {
		return nil, hostErrors.Wrap(hostErrors.CodeSpeechSynthesisFailed, "failed to read synthesized audio", err)
	}

	return &Clip{Audio: audio, Format: "aiff"}, nil
}

// CloudSynthesizer calls a hosted generateContent-style synthesis API.
// Transient failures are retried with exponential backoff since the cloud
// endpoint throttles bursts.
type CloudSynthesizer struct {
	// URL is the synthesis endpoint without the key parameter.
	URL string

	// APIKey is appended to the request URL as the key query parameter.
	APIKey string

	// Voice selects the prebuilt voice. Empty means "Puck".
	Voice string

	// HTTPClient defaults to a client with a 30 second timeout.
	HTTPClient *http.Client

	// MaxElapsed caps total retry time. Zero means 15 seconds.
	MaxElapsed time.Duration
}

type cloudRequest struct {
	Contents         []cloudContent `json:"contents"`
	GenerationConfig cloudGenConfig `json:"generationConfig"`
}

type cloudContent struct {
	Parts []cloudPart `json:"parts"`
}

type cloudPart struct {
	Text string `json:"text"`
}

type cloudGenConfig struct {
	ResponseModalities []string          `json:"responseModalities"`
	SpeechConfig       cloudSpeechConfig `json:"speechConfig"`
}

type cloudSpeechConfig struct {
	VoiceConfig cloudVoiceConfig `json:"voiceConfig"`
}

type cloudVoiceConfig struct {
	PrebuiltVoiceConfig cloudPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type cloudPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type cloudResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData struct {
					Data []byte `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Synthesize implements Synthesizer.
func (s *CloudSynthesizer) Synthesize(ctx context.Context, text string) (*Clip, error) {
	if text == "" {
		return nil, hostErrors.New(hostErrors.CodeSpeechEmptyText, "no text provided")
	}
	if s.APIKey == "" {
		return nil, hostErrors.New(hostErrors.CodeSpeechSynthesisFailed, "cloud synthesis API key not configured")
	}

	voice := s.Voice
	if voice == "" {
		voice = "Puck"
	}

	body, err := json.Marshal(cloudRequest{
		Contents: []cloudContent{{Parts: []cloudPart{{Text: text}}}},
		GenerationConfig: cloudGenConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: cloudSpeechConfig{
				VoiceConfig: cloudVoiceConfig{
					PrebuiltVoiceConfig: cloudPrebuiltVoice{VoiceName: voice},
				},
			},
		},
	})
	if err != nil {
		return nil, hostErrors.Wrap(hostErrors.CodeSpeechSynthesisFailed, "failed to encode synthesis request", err)
	}

	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	maxElapsed := s.MaxElapsed
	if maxElapsed == 0 {
		maxElapsed = 15 * time.Second
	}

	var clip *Clip
	attempt := func() error {
		audio, err := s.post(ctx, client, body)
		if err != nil {
			return err
		}
		clip = &Clip{Audio: audio, Format: "pcm"}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxElapsedTime = maxElapsed

	if err := backoff.Retry(attempt, backoff.WithContext(policy, ctx)); err != nil {
		log.Printf("speech: cloud synthesis failed: %v", err)
		return nil, hostErrors.Wrap(hostErrors.CodeSpeechSynthesisFailed, "cloud synthesis failed", err)
	}
	return clip, nil
}

func (s *CloudSynthesizer) post(ctx context.Context, client *http.Client, body []byte) ([]byte, error) {
	endpoint := s.URL + "?key=" + url.QueryEscape(s.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("synthesis endpoint returned %d", res.StatusCode)
	}

	var parsed cloudResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("malformed synthesis response: %w", err))
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("synthesis response carried no audio"))
	}
	return parsed.Candidates[0].Content.Parts[0].InlineData.Data, nil
}
