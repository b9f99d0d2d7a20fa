package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pinpung/pinpung-ai/internal/pkg/faults"
	"github.com/pinpung/pinpung-ai/internal/platform/logger"
	"github.com/pinpung/pinpung-ai/internal/platform/openai"
	"github.com/pinpung/pinpung-ai/internal/platform/vector"
)

const tagNamespace = "tags"

// TrendingTag is a canonical tag whose usage count cleared the trending floor.
type TrendingTag struct {
	TagID string
	Text  string
	Count int
}

// TagCanonicalizer maps free-form tag texts onto stable canonical tag ids by
// embedding similarity. The canonical registry lives in the vector store;
// each point's payload carries {tag_id, text, count, sentiment}.
type TagCanonicalizer interface {
	// Canonicalize returns the canonical id for rawText. A neighbor within
	// the distance threshold absorbs the text (count incremented, sentiment
	// overwritten with the latest observation); otherwise a new id is minted.
	Canonicalize(ctx context.Context, rawText string, sentiment int) (tagID string, isNew bool, err error)

	TrendingTags(ctx context.Context, countFloor int) ([]TrendingTag, error)
	TagSentiments(ctx context.Context, tagIDs []string) (map[string]int, error)
	TagTexts(ctx context.Context, tagIDs []string) (map[string]string, error)
}

type tagCanonicalizer struct {
	log       *logger.Logger
	ai        openai.Client
	store     vector.Store
	threshold float64

	// serializes search-then-insert so two near-duplicate texts arriving
	// together cannot both mint new ids
	mu sync.Mutex
}

func NewTagCanonicalizer(baseLog *logger.Logger, ai openai.Client, store vector.Store, dedupThreshold float64) TagCanonicalizer {
	serviceLog := baseLog.With("service", "TagCanonicalizer")
	if dedupThreshold <= 0 {
		dedupThreshold = 0.2
	}
	return &tagCanonicalizer{
		log:       serviceLog,
		ai:        ai,
		store:     store,
		threshold: dedupThreshold,
	}
}

func (c *tagCanonicalizer) Canonicalize(ctx context.Context, rawText string, sentiment int) (string, bool, error) {
	rawText = strings.ToLower(strings.Join(strings.Fields(rawText), " "))
	if rawText == "" {
		return "", false, fmt.Errorf("tag text: %w", faults.ErrInvalidArgument)
	}
	sentiment = normalizeSentiment(sentiment)

	vecs, err := c.ai.Embed(ctx, []string{rawText})
	if err != nil {
		return "", false, &faults.ExternalServiceError{Service: "openai", Cause: fmt.Errorf("embed tag text: %w", err)}
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return "", false, &faults.ExternalServiceError{Service: "openai", Cause: fmt.Errorf("embed tag text: empty result")}
	}
	embedding := vecs[0]

	c.mu.Lock()
	defer c.mu.Unlock()

	matches, err := c.store.QueryMatches(ctx, tagNamespace, embedding, 1, nil)
	if err != nil {
		return "", false, &faults.ExternalServiceError{Service: "vector-store", Cause: fmt.Errorf("query nearest tag: %w", err)}
	}

	if len(matches) > 0 {
		nearest := matches[0]
		distance := 1 - nearest.Score
		if distance < c.threshold {
			count := payloadInt(nearest.Payload, "count")
			if count < 1 {
				count = 1
			}
			update := map[string]any{
				"count":     count + 1,
				"sentiment": sentiment,
			}
			if err := c.store.SetPayload(ctx, tagNamespace, nearest.ID, update); err != nil {
				return "", false, &faults.ExternalServiceError{Service: "vector-store", Cause: fmt.Errorf("update matched tag: %w", err)}
			}
			c.log.Debug("tag matched existing canonical id",
				"tag_id", nearest.ID,
				"distance", distance,
				"count", count+1,
			)
			return nearest.ID, false, nil
		}
	}

	tagID := uuid.New().String()
	point := vector.Vector{
		ID:     tagID,
		Values: embedding,
		Metadata: map[string]any{
			"tag_id":    tagID,
			"text":      rawText,
			"count":     1,
			"sentiment": sentiment,
		},
	}
	if err := c.store.Upsert(ctx, tagNamespace, []vector.Vector{point}); err != nil {
		return "", false, &faults.ExternalServiceError{Service: "vector-store", Cause: fmt.Errorf("insert new tag: %w", err)}
	}
	c.log.Debug("tag minted new canonical id", "tag_id", tagID)
	return tagID, true, nil
}

func (c *tagCanonicalizer) TrendingTags(ctx context.Context, countFloor int) ([]TrendingTag, error) {
	if countFloor < 1 {
		countFloor = 1
	}
	entries, err := c.store.Scroll(ctx, tagNamespace, map[string]any{
		"count": map[string]any{"$gt": countFloor},
	}, 10000)
	if err != nil {
		return nil, &faults.ExternalServiceError{Service: "vector-store", Cause: fmt.Errorf("scroll trending tags: %w", err)}
	}

	out := make([]TrendingTag, 0, len(entries))
	for _, entry := range entries {
		out = append(out, TrendingTag{
			TagID: entry.ID,
			Text:  payloadString(entry.Payload, "text"),
			Count: payloadInt(entry.Payload, "count"),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].TagID < out[j].TagID
		}
		return out[i].Count > out[j].Count
	})
	return out, nil
}

func (c *tagCanonicalizer) TagSentiments(ctx context.Context, tagIDs []string) (map[string]int, error) {
	entries, err := c.scrollByTagIDs(ctx, tagIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(entries))
	for _, entry := range entries {
		out[entry.ID] = normalizeSentiment(payloadInt(entry.Payload, "sentiment"))
	}
	return out, nil
}

func (c *tagCanonicalizer) TagTexts(ctx context.Context, tagIDs []string) (map[string]string, error) {
	entries, err := c.scrollByTagIDs(ctx, tagIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		out[entry.ID] = payloadString(entry.Payload, "text")
	}
	return out, nil
}

func (c *tagCanonicalizer) scrollByTagIDs(ctx context.Context, tagIDs []string) ([]vector.Entry, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}
	ids := make([]any, 0, len(tagIDs))
	for _, id := range tagIDs {
		if strings.TrimSpace(id) == "" {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	entries, err := c.store.Scroll(ctx, tagNamespace, map[string]any{
		"tag_id": map[string]any{"$in": ids},
	}, len(ids))
	if err != nil {
		return nil, &faults.ExternalServiceError{Service: "vector-store", Cause: fmt.Errorf("scroll tags by id: %w", err)}
	}
	return entries, nil
}

// Sentiment domain is {-1, 0, 1}; neutral observations stay neutral.
func normalizeSentiment(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func payloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func payloadString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return strings.TrimSpace(s)
}
