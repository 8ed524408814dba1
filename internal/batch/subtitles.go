package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/scribelabs/scribe-live/pkg/logger"
	"google.golang.org/genai"
)

const defaultPrompt = "Generate subtitles for this media file. " +
	"Return a JSON array of segments with start and end times in seconds " +
	"and the spoken text. Keep each segment under two lines of text and " +
	"align segment boundaries with natural pauses."

// Segment is one timed subtitle cue
type Segment struct {
	Start float64 `json:"start"` // Segment start in seconds
	End   float64 `json:"end"`   // Segment end in seconds
	Text  string  `json:"text"`
}

// Generator produces timed subtitles for uploaded media files through the
// Gemini API. One request per file, structured JSON output.
type Generator struct {
	apiKey  string
	model   string
	prompt  string
	timeout time.Duration
	logger  *logger.Logger
}

// NewGenerator creates a subtitle generator. prompt overrides the built-in
// instruction when non-empty.
func NewGenerator(apiKey, model, prompt string, timeout time.Duration, log *logger.Logger) *Generator {
	if prompt == "" {
		prompt = defaultPrompt
	}
	return &Generator{
		apiKey:  apiKey,
		model:   model,
		prompt:  prompt,
		timeout: timeout,
		logger:  log.Named("subtitles"),
	}
}

// GenerateSubtitles sends the media bytes to the model and returns the
// parsed segments in the order the model produced them.
func (g *Generator) GenerateSubtitles(ctx context.Context, data []byte, mimeType string) ([]Segment, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("subtitle generation is disabled (no API key configured)")
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: g.apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	g.logger.Info("Generating subtitles",
		logger.String("model", g.model),
		logger.String("mime_type", mimeType),
		logger.Int("size_bytes", len(data)))

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				genai.NewPartFromBytes(data, mimeType),
				genai.NewPartFromText(g.prompt),
			},
		},
	}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"start": {Type: genai.TypeNumber, Description: "Segment start time in seconds"},
					"end":   {Type: genai.TypeNumber, Description: "Segment end time in seconds"},
					"text":  {Type: genai.TypeString, Description: "Spoken text for this segment"},
				},
				Required: []string{"start", "end", "text"},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("subtitle generation request failed: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("model returned no subtitle content")
	}

	var segments []Segment
	if err := json.Unmarshal([]byte(text), &segments); err != nil {
		return nil, fmt.Errorf("failed to parse subtitle response: %w", err)
	}

	g.logger.Info("Generated subtitles", logger.Int("segments", len(segments)))

	return segments, nil
}
