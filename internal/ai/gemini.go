package ai

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/pauljones0/happymapper/internal/models"
)

const menuPrompt = `Analyze this restaurant menu / happy hour deal image.

Extract:
- restaurant_name: the name if visible, otherwise null
- deals: every item on offer, with price as printed (e.g. "$5", "Half off", "Free") and an optional description
- time_frame: each availability window with start_time and end_time as printed (e.g. "4:00 PM") and the days it applies to, using full day names (Monday, not Mon); omit days if none are shown
- special_conditions: every restriction (e.g. "Dine-in only"), or null

Correct obvious OCR-like errors. Output JSON adhering to the schema.`

// contentGenerator is the subset of *genai.Models the parser needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiParser extracts menus with Gemini structured output.
type GeminiParser struct {
	models  contentGenerator
	modelID string
	config  *genai.GenerateContentConfig
}

// NewGeminiParser returns nil, nil when apiKey is empty so callers can fall
// back to another parser.
func NewGeminiParser(ctx context.Context, apiKey, modelID string) (*GeminiParser, error) {
	if apiKey == "" {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newGeminiParser(client.Models, modelID), nil
}

func newGeminiParser(gen contentGenerator, modelID string) *GeminiParser {
	return &GeminiParser{
		models:  gen,
		modelID: modelID,
		config: &genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0.1),
			ResponseMIMEType: "application/json",
			ResponseSchema:   menuSchema(),
		},
	}
}

func menuSchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"restaurant_name": {Type: genai.TypeString, Nullable: genai.Ptr(true), Description: "Restaurant name if visible."},
			"deals": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":        str("Item name."),
						"price":       str("Price exactly as printed."),
						"description": {Type: genai.TypeString, Nullable: genai.Ptr(true)},
					},
					Required: []string{"name", "price"},
				},
			},
			"time_frame": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"start_time": str("Start time, e.g. 4:00 PM."),
						"end_time":   str("End time, e.g. 7:00 PM."),
						"days":       {Type: genai.TypeArray, Items: str("Full day name."), Nullable: genai.Ptr(true)},
					},
					Required: []string{"start_time", "end_time"},
				},
			},
			"special_conditions": {Type: genai.TypeArray, Items: str("One restriction."), Nullable: genai.Ptr(true)},
		},
		Required: []string{"restaurant_name", "deals", "time_frame"},
	}
}

func (p *GeminiParser) ParseMenu(ctx context.Context, image []byte, mimeType string) (*models.MenuExtraction, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(menuPrompt),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}

	resp, err := p.models.GenerateContent(ctx, p.modelID, contents, p.config)
	if err != nil {
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}

	result, err := decodeExtraction(resp.Text())
	if err != nil {
		return nil, err
	}
	slog.Debug("Gemini extracted menu", "deals", len(result.Deals), "time_frames", len(result.TimeFrame))
	return result, nil
}
