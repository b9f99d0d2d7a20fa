package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/pinpung/pinpung-ai/internal/pkg/faults"
	"github.com/pinpung/pinpung-ai/internal/platform/logger"
	"github.com/pinpung/pinpung-ai/internal/platform/openai"
)

// ExtractedTags is the raw output of one extraction pass, before
// canonicalization. Texts are trimmed, lowercased and deduplicated.
type ExtractedTags struct {
	Positive []string
	Negative []string
}

type TagExtractor interface {
	ExtractReview(ctx context.Context, reviewText string) (ExtractedTags, error)
	ExtractImage(ctx context.Context, imageBytes []byte, mimeType string) (ExtractedTags, error)
}

type tagExtractor struct {
	log *logger.Logger
	ai  openai.Client
}

func NewTagExtractor(baseLog *logger.Logger, ai openai.Client) TagExtractor {
	serviceLog := baseLog.With("service", "TagExtractor")
	return &tagExtractor{log: serviceLog, ai: ai}
}

const extractSystemPrompt = `You extract cafe attribute tags from customer reviews.
Return short noun phrases (2-4 words) describing concrete attributes of the cafe:
atmosphere, drinks, food, seating, noise, service, price. Split them by the
reviewer's sentiment. Do not invent attributes that are not mentioned.`

const extractImageSystemPrompt = `You extract cafe attribute tags from customer photos.
Return short noun phrases (2-4 words) for attributes visible in the photo:
interior style, seating, lighting, drinks, desserts. Split them by whether the
photo presents the attribute favorably or unfavorably.`

func extractTagsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"positive": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"negative": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required":             []string{"positive", "negative"},
		"additionalProperties": false,
	}
}

func (e *tagExtractor) ExtractReview(ctx context.Context, reviewText string) (ExtractedTags, error) {
	reviewText = strings.TrimSpace(reviewText)
	if reviewText == "" {
		return ExtractedTags{}, nil
	}

	obj, err := e.ai.GenerateJSON(ctx, extractSystemPrompt, reviewText, "cafe_tags", extractTagsSchema())
	if err != nil {
		return ExtractedTags{}, &faults.ExternalServiceError{Service: "openai", Cause: fmt.Errorf("extract review tags: %w", err)}
	}
	return parseExtractedTags(obj), nil
}

func (e *tagExtractor) ExtractImage(ctx context.Context, imageBytes []byte, mimeType string) (ExtractedTags, error) {
	if len(imageBytes) == 0 {
		return ExtractedTags{}, nil
	}
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(imageBytes)
	obj, err := e.ai.GenerateJSONWithImages(
		ctx,
		extractImageSystemPrompt,
		"Extract cafe attribute tags from this photo.",
		[]openai.ImageInput{{ImageURL: dataURL, Detail: "low"}},
		"cafe_tags",
		extractTagsSchema(),
	)
	if err != nil {
		return ExtractedTags{}, &faults.ExternalServiceError{Service: "openai", Cause: fmt.Errorf("extract image tags: %w", err)}
	}
	return parseExtractedTags(obj), nil
}

func parseExtractedTags(obj map[string]any) ExtractedTags {
	return ExtractedTags{
		Positive: cleanTagList(obj["positive"]),
		Negative: cleanTagList(obj["negative"]),
	}
}

func cleanTagList(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.ToLower(strings.Join(strings.Fields(s), " "))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
