package live

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/scribelabs/scribe-live/pkg/logger"
)

const (
	// DefaultHost is the default host for the Gemini API
	DefaultHost = "generativelanguage.googleapis.com"
	// DefaultPath is the WebSocket path for BidiGenerateContent
	DefaultPath = "/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"

	defaultSystemPrompt = "You are a transcriber. Transcribe the audio exactly. Do not add anything else."
)

// Wire is the transport under a live session. Production sessions run over
// a Gemini Live WebSocket; tests substitute an in-memory wire.
type Wire interface {
	WriteJSON(v any) error
	ReadMessage() ([]byte, error)
	Close() error
}

// DialFunc establishes a Wire and completes the provider handshake
type DialFunc func(ctx context.Context) (Wire, error)

// geminiWire adapts a gorilla WebSocket connection to the Wire interface
type geminiWire struct {
	conn *websocket.Conn
}

func (w *geminiWire) WriteJSON(v any) error {
	return w.conn.WriteJSON(v)
}

func (w *geminiWire) ReadMessage() ([]byte, error) {
	_, msg, err := w.conn.ReadMessage()
	return msg, err
}

func (w *geminiWire) Close() error {
	return w.conn.Close()
}

// GeminiDialer returns a DialFunc that connects to the Gemini Live API and
// sends the transcription setup message before handing the wire over.
func GeminiDialer(apiKey, model, systemPrompt string, handshakeTimeout time.Duration, log *logger.Logger) DialFunc {
	return func(ctx context.Context) (Wire, error) {
		// Construct URL: wss://host/path?key=API_KEY
		u := url.URL{
			Scheme: "wss",
			Host:   DefaultHost,
			Path:   DefaultPath,
		}
		q := u.Query()
		q.Set("key", apiKey)
		u.RawQuery = q.Encode()

		dialer := &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		}

		log.Info("Connecting to Gemini Live API", logger.String("host", DefaultHost))

		conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			if resp != nil {
				log.Error("Gemini WebSocket handshake failed",
					logger.Int("status_code", resp.StatusCode),
					logger.String("status", resp.Status))
			}
			return nil, fmt.Errorf("failed to dial Gemini: %w", err)
		}

		prompt := systemPrompt
		if prompt == "" {
			prompt = defaultSystemPrompt
		}
		if !strings.Contains(model, "/") {
			model = "models/" + model
		}

		setupMsg := map[string]any{
			"setup": map[string]any{
				"model": model,
				"generation_config": map[string]any{
					"response_modalities": []string{"TEXT"},
				},
				"system_instruction": map[string]any{
					"parts": []map[string]any{
						{"text": prompt},
					},
				},
			},
		}

		if err := conn.WriteJSON(setupMsg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to send setup to Gemini: %w", err)
		}

		return &geminiWire{conn: conn}, nil
	}
}
