// Package ocr extracts text from images with the Gemini API.
package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/jonathan/relearn/internal/apperr"
	"github.com/jonathan/relearn/internal/workflow"
)

// DefaultModel is the Gemini model used for extraction.
const DefaultModel = "gemini-2.5-flash"

// noTextSentinel is what the model is told to answer when an image holds
// no readable text. It is mapped to an invalid-image error, never returned
// as extracted content.
const noTextSentinel = "NO_TEXT_FOUND"

const extractionPrompt = `Extract all text from this image. Please provide the complete text content exactly as it appears in the image, preserving the original formatting and structure. If the image contains multiple sections or posts, clearly separate them. If no text is found, respond with "` + noTextSentinel + `".`

// Extractor implements workflow.Extractor over the Gemini API.
type Extractor struct {
	client *genai.Client
	model  string
}

// New creates an Extractor. The API key must be non-empty; callers decide
// whether a missing key disables extraction or is a configuration error.
func New(ctx context.Context, apiKey string) (*Extractor, error) {
	if apiKey == "" {
		return nil, &apperr.ConfigError{Msg: "gemini API key is empty"}
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Extractor{client: client, model: DefaultModel}, nil
}

// Close releases resources held by the underlying client.
func (e *Extractor) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// ExtractText runs OCR over one image. An image with no readable text is
// an invalid-image error, so a success always carries non-empty text.
func (e *Extractor) ExtractText(ctx context.Context, image []byte, mimeType string) (workflow.Extraction, error) {
	model := e.client.GenerativeModel(e.model)
	model.SetTemperature(0.1) // Low temperature for consistent output

	resp, err := model.GenerateContent(ctx,
		genai.Text(extractionPrompt),
		genai.ImageData(imageSubtype(mimeType), image),
	)
	if err != nil {
		return workflow.Extraction{}, classifyError(err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return workflow.Extraction{}, &apperr.OcrError{Kind: apperr.OcrAPIError, Msg: err.Error()}
	}

	return mapExtractedText(text)
}

// mapExtractedText turns the model's raw answer into an Extraction. The
// sentinel (and a blank answer) is an invalid-image failure, never a
// success with empty content.
func mapExtractedText(text string) (workflow.Extraction, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == noTextSentinel {
		return workflow.Extraction{}, &apperr.OcrError{Kind: apperr.OcrInvalidImage, Msg: "no text found in the image"}
	}
	return workflow.Extraction{Text: text, ExtractedAt: time.Now()}, nil
}

// imageSubtype converts a MIME type like "image/png" to the bare format
// name the Gemini SDK expects.
func imageSubtype(mimeType string) string {
	if sub, ok := strings.CutPrefix(mimeType, "image/"); ok && sub != "" {
		return sub
	}
	return "jpeg"
}

// classifyError maps provider failures onto the OCR error taxonomy by
// inspecting the message, the only signal the SDK exposes uniformly.
func classifyError(err error) *apperr.OcrError {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "quota") || strings.Contains(msg, "rate"):
		return &apperr.OcrError{Kind: apperr.OcrRateLimited, Msg: "API rate limit exceeded", Err: err}
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return &apperr.OcrError{Kind: apperr.OcrTimeout, Msg: "request timed out", Err: err}
	default:
		return &apperr.OcrError{Kind: apperr.OcrAPIError, Msg: "failed to extract text from image", Err: err}
	}
}

// extractTextFromResponse extracts text from a Gemini API response.
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
