package server

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/dexhub/node/internal/auth"
	hostErrors "github.com/dexhub/node/internal/errors"
)

// StreamResult is a JSON frame sent back on the streaming recognition
// socket. Exactly one of Text or ErrorCode is set.
type StreamResult struct {
	Text      string `json:"text,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// handleSTTStream upgrades to a WebSocket for streaming recognition.
// The handshake is signed like any other request, with the digest of an
// empty body. Each binary frame is one utterance; the transcript for it
// comes back as a JSON text frame, so a device can hold one socket open
// across a whole conversation.
func (s *Server) handleSTTStream(w http.ResponseWriter, r *http.Request) {
	creds := auth.CredentialsFromHeader(r.Header)
	if err := s.authenticator.Verify(r.Method, r.URL.Path, creds, nil, r.RemoteAddr); err != nil {
		writeAuthError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Printf("server: websocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxAudioBytes)
	log.Printf("server: streaming recognition opened for device %s", creds.DeviceID)

	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("server: streaming recognition closed unexpectedly for device %s: %v", creds.DeviceID, err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			if err := conn.WriteJSON(StreamResult{
				ErrorCode: hostErrors.CodeSpeechBadFrame,
				Message:   "expected binary audio frame",
			}); err != nil {
				return
			}
			continue
		}

		text, err := s.transcriber.Transcribe(r.Context(), frame)
		if err != nil {
			log.Printf("speech: streaming transcription failed for device %s: %v", creds.DeviceID, err)
			code, message := hostErrors.ToCodeAndMessage(err)
			if err := conn.WriteJSON(StreamResult{ErrorCode: code, Message: message}); err != nil {
				return
			}
			continue
		}

		if err := conn.WriteJSON(StreamResult{Text: text}); err != nil {
			return
		}
	}
}
