// Package ai extracts structured happy hour data from menu photos.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pauljones0/happymapper/internal/models"
)

// ErrEmptyResponse is returned when the model produced no usable text.
var ErrEmptyResponse = errors.New("empty response from menu parser")

// MenuParser turns one menu image into an extraction result.
type MenuParser interface {
	ParseMenu(ctx context.Context, image []byte, mimeType string) (*models.MenuExtraction, error)
}

// decodeExtraction parses a model response, tolerating markdown code fences.
func decodeExtraction(text string) (*models.MenuExtraction, error) {
	jsonStr := strings.TrimSpace(text)
	jsonStr = strings.TrimPrefix(jsonStr, "```json")
	jsonStr = strings.TrimPrefix(jsonStr, "```")
	jsonStr = strings.TrimSuffix(jsonStr, "```")
	jsonStr = strings.TrimSpace(jsonStr)
	if jsonStr == "" {
		return nil, ErrEmptyResponse
	}

	var result models.MenuExtraction
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("failed to parse menu extraction: %w", err)
	}
	return &result, nil
}
