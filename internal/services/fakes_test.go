package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/pinpung/pinpung-ai/internal/pkg/faults"
	"github.com/pinpung/pinpung-ai/internal/platform/logger"
	"github.com/pinpung/pinpung-ai/internal/platform/openai"
	"github.com/pinpung/pinpung-ai/internal/platform/vector"
	"github.com/pinpung/pinpung-ai/internal/types"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// fakeAIClient scripts the OpenAI surface. Embed defaults to a fixed unit
// vector per distinct input so canonicalizer tests get stable geometry.
type fakeAIClient struct {
	embedFn  func(inputs []string) ([][]float32, error)
	genFn    func(system, user string) (map[string]any, error)
	genImgFn func(system, user string, images []openai.ImageInput) (map[string]any, error)

	embedCalls  int
	genCalls    int
	genImgCalls int
}

func (f *fakeAIClient) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.embedCalls++
	if f.embedFn != nil {
		return f.embedFn(inputs)
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeAIClient) GenerateJSON(_ context.Context, system, user, _ string, _ map[string]any) (map[string]any, error) {
	f.genCalls++
	if f.genFn != nil {
		return f.genFn(system, user)
	}
	return map[string]any{"positive": []any{}, "negative": []any{}}, nil
}

func (f *fakeAIClient) GenerateJSONWithImages(_ context.Context, system, user string, images []openai.ImageInput, _ string, _ map[string]any) (map[string]any, error) {
	f.genImgCalls++
	if f.genImgFn != nil {
		return f.genImgFn(system, user, images)
	}
	return map[string]any{"positive": []any{}, "negative": []any{}}, nil
}

type memVectorEntry struct {
	id      string
	values  []float32
	payload map[string]any
}

// memVectorStore is an in-memory vector.Store with cosine scoring and just
// enough filter support for the canonicalizer's scroll patterns.
type memVectorStore struct {
	mu      sync.Mutex
	entries map[string][]*memVectorEntry // namespace -> insertion order

	upsertCalls     int
	setPayloadCalls int
	queryErr        error
	scrollErr       error
}

func newMemVectorStore() *memVectorStore {
	return &memVectorStore{entries: map[string][]*memVectorEntry{}}
}

func (s *memVectorStore) Upsert(_ context.Context, namespace string, vectors []vector.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	for _, v := range vectors {
		payload := map[string]any{}
		for k, val := range v.Metadata {
			payload[k] = val
		}
		replaced := false
		for _, e := range s.entries[namespace] {
			if e.id == v.ID {
				e.values = append([]float32{}, v.Values...)
				e.payload = payload
				replaced = true
				break
			}
		}
		if !replaced {
			s.entries[namespace] = append(s.entries[namespace], &memVectorEntry{
				id:      v.ID,
				values:  append([]float32{}, v.Values...),
				payload: payload,
			})
		}
	}
	return nil
}

func (s *memVectorStore) QueryMatches(_ context.Context, namespace string, q []float32, topK int, _ map[string]any) ([]vector.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []vector.Match
	for _, e := range s.entries[namespace] {
		out = append(out, vector.Match{
			ID:      e.id,
			Score:   cosine(q, e.values),
			Payload: clonePayloadMap(e.payload),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *memVectorStore) SetPayload(_ context.Context, namespace, id string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setPayloadCalls++
	for _, e := range s.entries[namespace] {
		if e.id == id {
			for k, v := range payload {
				e.payload[k] = v
			}
			return nil
		}
	}
	return fmt.Errorf("set payload: point %q not found", id)
}

func (s *memVectorStore) Scroll(_ context.Context, namespace string, filter map[string]any, limit int) ([]vector.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scrollErr != nil {
		return nil, s.scrollErr
	}
	var out []vector.Entry
	for _, e := range s.entries[namespace] {
		if !matchesScrollFilter(e.payload, filter) {
			continue
		}
		out = append(out, vector.Entry{ID: e.id, Payload: clonePayloadMap(e.payload)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memVectorStore) DeleteIDs(_ context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := map[string]struct{}{}
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := s.entries[namespace][:0]
	for _, e := range s.entries[namespace] {
		if _, ok := drop[e.id]; !ok {
			kept = append(kept, e)
		}
	}
	s.entries[namespace] = kept
	return nil
}

func (s *memVectorStore) payloadOf(namespace, id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries[namespace] {
		if e.id == id {
			return clonePayloadMap(e.payload)
		}
	}
	return nil
}

func matchesScrollFilter(payload, filter map[string]any) bool {
	for key, raw := range filter {
		cond, ok := raw.(map[string]any)
		if !ok {
			if payload[key] != raw {
				return false
			}
			continue
		}
		for op, want := range cond {
			switch op {
			case "$gt":
				if asFloat(payload[key]) <= asFloat(want) {
					return false
				}
			case "$in":
				items, _ := want.([]any)
				found := false
				for _, item := range items {
					if payload[key] == item {
						found = true
						break
					}
				}
				if !found {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clonePayloadMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// fakeCanonicalizer scripts the canonical-tag registry for builder and
// tagging pipeline tests.
type fakeCanonicalizer struct {
	canonFn    func(rawText string, sentiment int) (string, bool, error)
	trending   []TrendingTag
	sentiments map[string]int
	texts      map[string]string

	canonCalls []string
}

func (f *fakeCanonicalizer) Canonicalize(_ context.Context, rawText string, sentiment int) (string, bool, error) {
	f.canonCalls = append(f.canonCalls, rawText)
	if f.canonFn != nil {
		return f.canonFn(rawText, sentiment)
	}
	return "tag-" + rawText, true, nil
}

func (f *fakeCanonicalizer) TrendingTags(_ context.Context, _ int) ([]TrendingTag, error) {
	return f.trending, nil
}

func (f *fakeCanonicalizer) TagSentiments(_ context.Context, tagIDs []string) (map[string]int, error) {
	out := map[string]int{}
	for _, id := range tagIDs {
		if s, ok := f.sentiments[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (f *fakeCanonicalizer) TagTexts(_ context.Context, tagIDs []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range tagIDs {
		if s, ok := f.texts[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type fakeExtractor struct {
	reviewTags ExtractedTags
	imageTags  ExtractedTags
	reviewErr  error
	imageErr   error

	reviewCalls int
	imageCalls  int
}

func (f *fakeExtractor) ExtractReview(_ context.Context, _ string) (ExtractedTags, error) {
	f.reviewCalls++
	if f.reviewErr != nil {
		return ExtractedTags{}, f.reviewErr
	}
	return f.reviewTags, nil
}

func (f *fakeExtractor) ExtractImage(_ context.Context, _ []byte, _ string) (ExtractedTags, error) {
	f.imageCalls++
	if f.imageErr != nil {
		return ExtractedTags{}, f.imageErr
	}
	return f.imageTags, nil
}

type recordedAssociation struct {
	userID  int64
	placeID int64
	tagID   string
}

type fakeAggregator struct {
	placeTags    []recordedAssociation
	userTags     []recordedAssociation
	visits       []recordedAssociation
	placeTagErr  error
	recordVisits int
}

func (f *fakeAggregator) RecordPlaceTag(_ context.Context, placeID int64, tagID string) error {
	if f.placeTagErr != nil {
		return f.placeTagErr
	}
	f.placeTags = append(f.placeTags, recordedAssociation{placeID: placeID, tagID: tagID})
	return nil
}

func (f *fakeAggregator) RecordUserPlaceTag(_ context.Context, userID, placeID int64, tagID string) error {
	f.userTags = append(f.userTags, recordedAssociation{userID: userID, placeID: placeID, tagID: tagID})
	return nil
}

func (f *fakeAggregator) RecordVisit(_ context.Context, placeID, userID int64) error {
	f.recordVisits++
	f.visits = append(f.visits, recordedAssociation{userID: userID, placeID: placeID})
	return nil
}

type fakeTrainer struct {
	artifact   *ModelArtifact
	trainNowFn func() (*ModelArtifact, error)

	staleCalls  int
	staleReason string
}

func (f *fakeTrainer) Start(_ context.Context) error { return nil }

func (f *fakeTrainer) MarkStale(_ context.Context, reason string) {
	f.staleCalls++
	f.staleReason = reason
}

func (f *fakeTrainer) Current() *ModelArtifact { return f.artifact }

func (f *fakeTrainer) TrainNow(_ context.Context) (*ModelArtifact, error) {
	if f.trainNowFn != nil {
		return f.trainNowFn()
	}
	return f.artifact, nil
}

// In-memory repos. Row ordering mirrors the SQL ORDER BY clauses so builder
// tests observe the same determinism the real queries provide.

type fakePlaceTagRepo struct {
	rows []*types.PlaceTag
}

func (r *fakePlaceTagRepo) IncrementOrCreate(_ context.Context, _ *gorm.DB, placeID int64, tagID string) error {
	for _, row := range r.rows {
		if row.PlaceID == placeID && row.TagID == tagID {
			row.Count++
			return nil
		}
	}
	r.rows = append(r.rows, &types.PlaceTag{PlaceID: placeID, TagID: tagID, Count: 1})
	return nil
}

func (r *fakePlaceTagRepo) ListByPlace(_ context.Context, _ *gorm.DB, placeID int64) ([]*types.PlaceTag, error) {
	var out []*types.PlaceTag
	for _, row := range r.rows {
		if row.PlaceID == placeID {
			out = append(out, row)
		}
	}
	sortPlaceTags(out)
	return out, nil
}

func (r *fakePlaceTagRepo) ListByPlaces(_ context.Context, _ *gorm.DB, placeIDs []int64) ([]*types.PlaceTag, error) {
	want := map[int64]struct{}{}
	for _, id := range placeIDs {
		want[id] = struct{}{}
	}
	var out []*types.PlaceTag
	for _, row := range r.rows {
		if _, ok := want[row.PlaceID]; ok {
			out = append(out, row)
		}
	}
	sortPlaceTags(out)
	return out, nil
}

func (r *fakePlaceTagRepo) ListRepresentativeByPlaces(_ context.Context, _ *gorm.DB, placeIDs []int64) ([]*types.PlaceTag, error) {
	rows, _ := r.ListByPlaces(nil, nil, placeIDs)
	var out []*types.PlaceTag
	for _, row := range rows {
		if row.IsRepresentative {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakePlaceTagRepo) SetRepresentative(_ context.Context, _ *gorm.DB, placeID int64, tagIDs []string) error {
	want := map[string]struct{}{}
	for _, id := range tagIDs {
		want[id] = struct{}{}
	}
	for _, row := range r.rows {
		if row.PlaceID != placeID {
			continue
		}
		_, ok := want[row.TagID]
		row.IsRepresentative = ok
	}
	return nil
}

func (r *fakePlaceTagRepo) ListPlacesByTags(_ context.Context, _ *gorm.DB, tagIDs []string) ([]*types.PlaceTag, error) {
	want := map[string]struct{}{}
	for _, id := range tagIDs {
		want[id] = struct{}{}
	}
	var out []*types.PlaceTag
	for _, row := range r.rows {
		if _, ok := want[row.TagID]; ok {
			out = append(out, row)
		}
	}
	sortPlaceTags(out)
	return out, nil
}

func sortPlaceTags(rows []*types.PlaceTag) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].PlaceID != rows[j].PlaceID {
			return rows[i].PlaceID < rows[j].PlaceID
		}
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].TagID < rows[j].TagID
	})
}

type fakeUserPlaceTagRepo struct {
	rows []*types.UserPlaceTag
}

func (r *fakeUserPlaceTagRepo) CreateIfAbsent(_ context.Context, _ *gorm.DB, userID, placeID int64, tagID string) error {
	for _, row := range r.rows {
		if row.UserID == userID && row.PlaceID == placeID && row.TagID == tagID {
			return nil
		}
	}
	r.rows = append(r.rows, &types.UserPlaceTag{UserID: userID, PlaceID: placeID, TagID: tagID})
	return nil
}

func (r *fakeUserPlaceTagRepo) ListByUsers(_ context.Context, _ *gorm.DB, userIDs []int64) ([]*types.UserPlaceTag, error) {
	want := map[int64]struct{}{}
	for _, id := range userIDs {
		want[id] = struct{}{}
	}
	var out []*types.UserPlaceTag
	for _, row := range r.rows {
		if _, ok := want[row.UserID]; ok {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		if out[i].PlaceID != out[j].PlaceID {
			return out[i].PlaceID < out[j].PlaceID
		}
		return out[i].TagID < out[j].TagID
	})
	return out, nil
}

func (r *fakeUserPlaceTagRepo) ListUserIDsByPlaces(_ context.Context, _ *gorm.DB, placeIDs []int64) ([]int64, error) {
	want := map[int64]struct{}{}
	for _, id := range placeIDs {
		want[id] = struct{}{}
	}
	seen := map[int64]struct{}{}
	var out []int64
	for _, row := range r.rows {
		if _, ok := want[row.PlaceID]; !ok {
			continue
		}
		if _, dup := seen[row.UserID]; dup {
			continue
		}
		seen[row.UserID] = struct{}{}
		out = append(out, row.UserID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *fakeUserPlaceTagRepo) ListAllUserIDs(_ context.Context, _ *gorm.DB) ([]int64, error) {
	seen := map[int64]struct{}{}
	var out []int64
	for _, row := range r.rows {
		if _, dup := seen[row.UserID]; dup {
			continue
		}
		seen[row.UserID] = struct{}{}
		out = append(out, row.UserID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *fakeUserPlaceTagRepo) CountAll(_ context.Context, _ *gorm.DB) (int64, error) {
	return int64(len(r.rows)), nil
}

type fakePlaceVisitRepo struct {
	rows map[int64]*types.PlaceVisit
}

func newFakePlaceVisitRepo() *fakePlaceVisitRepo {
	return &fakePlaceVisitRepo{rows: map[int64]*types.PlaceVisit{}}
}

func (r *fakePlaceVisitRepo) RecordVisit(_ context.Context, _ *gorm.DB, placeID int64, visitorAge int) error {
	row, ok := r.rows[placeID]
	if !ok {
		r.rows[placeID] = &types.PlaceVisit{PlaceID: placeID, VisitCount: 1, AvgAge: float64(visitorAge)}
		return nil
	}
	row.AvgAge = (row.AvgAge*float64(row.VisitCount) + float64(visitorAge)) / float64(row.VisitCount+1)
	row.VisitCount++
	return nil
}

func (r *fakePlaceVisitRepo) GetByPlaces(_ context.Context, _ *gorm.DB, placeIDs []int64) ([]*types.PlaceVisit, error) {
	var out []*types.PlaceVisit
	for _, id := range placeIDs {
		if row, ok := r.rows[id]; ok {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlaceID < out[j].PlaceID })
	return out, nil
}

type fakeUserRepo struct {
	users      map[int64]*types.User
	menus      []*types.UserMenu
	activities []*types.UserActivity
	getErr     error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int64]*types.User{}}
}

func (r *fakeUserRepo) GetByID(_ context.Context, _ *gorm.DB, id int64) (*types.User, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, faults.ErrNotFound)
	}
	return u, nil
}

func (r *fakeUserRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []int64) ([]*types.User, error) {
	var out []*types.User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeUserRepo) ListMenusByUsers(_ context.Context, _ *gorm.DB, userIDs []int64) ([]*types.UserMenu, error) {
	want := map[int64]struct{}{}
	for _, id := range userIDs {
		want[id] = struct{}{}
	}
	var out []*types.UserMenu
	for _, m := range r.menus {
		if _, ok := want[m.UserID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) ListActivitiesByUsers(_ context.Context, _ *gorm.DB, userIDs []int64) ([]*types.UserActivity, error) {
	want := map[int64]struct{}{}
	for _, id := range userIDs {
		want[id] = struct{}{}
	}
	var out []*types.UserActivity
	for _, a := range r.activities {
		if _, ok := want[a.UserID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}
