package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/dexhub/node/internal/auth"
	hostErrors "github.com/dexhub/node/internal/errors"
)

// TranscriptResponse is the JSON response from POST /stt.
type TranscriptResponse struct {
	Text string `json:"text"`
}

// handleSTT transcribes a complete audio clip. The request body is the
// raw audio; the transcript comes back as JSON.
func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request, body []byte, deviceID string) {
	if r.Method != http.MethodPost {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed",
			hostErrors.CodeMethodNotAllowed, "use POST")
		return
	}

	text, err := s.transcriber.Transcribe(r.Context(), body)
	if err != nil {
		log.Printf("speech: transcription failed for device %s: %v", deviceID, err)
		code, message := hostErrors.ToCodeAndMessage(err)
		auth.WriteError(w, http.StatusInternalServerError, "stt_failed", code, message)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TranscriptResponse{Text: text})
}

// SynthesisRequest is the JSON request body for POST /tts.
type SynthesisRequest struct {
	Text string `json:"text"`
}

// SynthesisResponse is the JSON response from POST /tts. Audio is
// base64-encoded by the JSON marshaller.
type SynthesisResponse struct {
	Audio  []byte `json:"audio"`
	Format string `json:"format"`
}

// handleTTS synthesizes speech for a text payload.
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request, body []byte, deviceID string) {
	if r.Method != http.MethodPost {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed",
			hostErrors.CodeMethodNotAllowed, "use POST")
		return
	}

	var req SynthesisRequest
	if err := json.Unmarshal(body, &req); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid_request",
			hostErrors.CodePairInvalidRequest, "malformed JSON body")
		return
	}
	if req.Text == "" {
		auth.WriteError(w, http.StatusBadRequest, "no_text",
			hostErrors.CodeSpeechEmptyText, "no text provided")
		return
	}

	clip, err := s.synthesizer.Synthesize(r.Context(), req.Text)
	if err != nil {
		log.Printf("speech: synthesis failed for device %s: %v", deviceID, err)
		code, message := hostErrors.ToCodeAndMessage(err)
		auth.WriteError(w, http.StatusInternalServerError, "tts_failed", code, message)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SynthesisResponse{Audio: clip.Audio, Format: clip.Format})
}
