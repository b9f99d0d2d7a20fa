package services

import (
	"context"
	"math"
	"testing"

	"gorm.io/gorm"

	"github.com/pinpung/pinpung-ai/internal/types"
)

// newTestAggregator wires the aggregator to fakes and replaces the
// transaction runner so multi-statement writes run without a database.
func newTestAggregator(t *testing.T, placeTags *fakePlaceTagRepo) AssociationAggregator {
	t.Helper()
	agg := NewAssociationAggregator(nil, newTestLogger(t), placeTags, &fakeUserPlaceTagRepo{}, newFakePlaceVisitRepo(), newFakeUserRepo()).(*associationAggregator)
	agg.inTx = func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		return fn(nil)
	}
	return agg
}

func representativeOf(r *fakePlaceTagRepo, placeID int64) map[string]int {
	out := map[string]int{}
	for _, row := range r.rows {
		if row.PlaceID == placeID && row.IsRepresentative {
			out[row.TagID] = row.Count
		}
	}
	return out
}

func TestRepresentativeTagIDsTakesAllWhenFew(t *testing.T) {
	tags := []*types.PlaceTag{
		{TagID: "a", Count: 9},
		{TagID: "b", Count: 4},
		{TagID: "c", Count: 1},
	}
	got := representativeTagIDs(tags)
	if len(got) != 3 {
		t.Fatalf("representative count: want=3 got=%d", len(got))
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("representative ids mismatch: %v", got)
	}
}

func TestRepresentativeTagIDsCapsAtFive(t *testing.T) {
	tags := []*types.PlaceTag{
		{TagID: "a", Count: 9},
		{TagID: "b", Count: 8},
		{TagID: "c", Count: 7},
		{TagID: "d", Count: 6},
		{TagID: "e", Count: 5},
		{TagID: "f", Count: 4},
		{TagID: "g", Count: 3},
	}
	got := representativeTagIDs(tags)
	if len(got) != 5 {
		t.Fatalf("representative count: want=5 got=%d", len(got))
	}
	if got[4] != "e" {
		t.Fatalf("fifth representative: want=%q got=%q", "e", got[4])
	}
}

func TestRecordPlaceTagFlagsTopFiveByCount(t *testing.T) {
	placeTags := &fakePlaceTagRepo{}
	agg := newTestAggregator(t, placeTags)

	ctx := context.Background()
	// Seven distinct tags, interleaved: a x6, b x5, c x4, d x3, e x2, f x1,
	// g x1.
	sequence := []string{
		"a", "b", "c", "a", "d", "b", "e", "a", "c", "f",
		"b", "a", "d", "c", "g", "b", "a", "d", "e", "b",
		"c", "a",
	}
	for _, tagID := range sequence {
		if err := agg.RecordPlaceTag(ctx, 42, tagID); err != nil {
			t.Fatalf("RecordPlaceTag(%q): %v", tagID, err)
		}
	}

	reps := representativeOf(placeTags, 42)
	if len(reps) != 5 {
		t.Fatalf("representative count: want=5 got=%d (%v)", len(reps), reps)
	}
	want := map[string]int{"a": 6, "b": 5, "c": 4, "d": 3, "e": 2}
	for tagID, count := range want {
		if reps[tagID] != count {
			t.Fatalf("representative %q: want count=%d got=%d (%v)", tagID, count, reps[tagID], reps)
		}
	}
}

func TestRecordPlaceTagRecomputeIsStable(t *testing.T) {
	placeTags := &fakePlaceTagRepo{}
	agg := newTestAggregator(t, placeTags)

	ctx := context.Background()
	// Six tags, equal counts: the tie-break keeps the five lowest ids.
	for _, tagID := range []string{"f", "e", "d", "c", "b", "a"} {
		if err := agg.RecordPlaceTag(ctx, 42, tagID); err != nil {
			t.Fatalf("RecordPlaceTag(%q): %v", tagID, err)
		}
	}
	first := representativeOf(placeTags, 42)
	if len(first) != 5 {
		t.Fatalf("representative count: want=5 got=%d (%v)", len(first), first)
	}
	if _, ok := first["f"]; ok {
		t.Fatalf("tie-break must drop the highest tag id: %v", first)
	}

	// Pushing the already-leading ordering does not reshuffle the flags.
	if err := agg.RecordPlaceTag(ctx, 42, "a"); err != nil {
		t.Fatalf("RecordPlaceTag repeat: %v", err)
	}
	second := representativeOf(placeTags, 42)
	for tagID := range first {
		if _, ok := second[tagID]; !ok {
			t.Fatalf("flag set changed without a rank change: before=%v after=%v", first, second)
		}
	}
	if len(second) != 5 {
		t.Fatalf("representative count after recompute: want=5 got=%d", len(second))
	}
}

func TestRecordUserPlaceTagIsIdempotent(t *testing.T) {
	log := newTestLogger(t)
	userPlaceTags := &fakeUserPlaceTagRepo{}
	agg := NewAssociationAggregator(nil, log, &fakePlaceTagRepo{}, userPlaceTags, newFakePlaceVisitRepo(), newFakeUserRepo())

	ctx := context.Background()
	if err := agg.RecordUserPlaceTag(ctx, 7, 42, "tag-1"); err != nil {
		t.Fatalf("RecordUserPlaceTag: %v", err)
	}
	if err := agg.RecordUserPlaceTag(ctx, 7, 42, "tag-1"); err != nil {
		t.Fatalf("RecordUserPlaceTag repeat: %v", err)
	}
	if len(userPlaceTags.rows) != 1 {
		t.Fatalf("row count: want=1 got=%d", len(userPlaceTags.rows))
	}
}

func TestRecordVisitFoldsVisitorAgeIntoAverage(t *testing.T) {
	log := newTestLogger(t)
	users := newFakeUserRepo()
	users.users[1] = &types.User{ID: 1, Age: 20}
	users.users[2] = &types.User{ID: 2, Age: 40}
	visits := newFakePlaceVisitRepo()
	agg := NewAssociationAggregator(nil, log, &fakePlaceTagRepo{}, &fakeUserPlaceTagRepo{}, visits, users)

	ctx := context.Background()
	if err := agg.RecordVisit(ctx, 42, 1); err != nil {
		t.Fatalf("RecordVisit: %v", err)
	}
	if err := agg.RecordVisit(ctx, 42, 2); err != nil {
		t.Fatalf("RecordVisit: %v", err)
	}

	row := visits.rows[42]
	if row == nil {
		t.Fatalf("expected visit row for place 42")
	}
	if row.VisitCount != 2 {
		t.Fatalf("visit count: want=2 got=%d", row.VisitCount)
	}
	if math.Abs(row.AvgAge-30) > 1e-9 {
		t.Fatalf("avg age: want=30 got=%f", row.AvgAge)
	}
}

func TestRecordVisitUnknownUserCountsWithAgeZero(t *testing.T) {
	log := newTestLogger(t)
	visits := newFakePlaceVisitRepo()
	agg := NewAssociationAggregator(nil, log, &fakePlaceTagRepo{}, &fakeUserPlaceTagRepo{}, visits, newFakeUserRepo())

	if err := agg.RecordVisit(context.Background(), 42, 99); err != nil {
		t.Fatalf("RecordVisit: %v", err)
	}
	row := visits.rows[42]
	if row == nil || row.VisitCount != 1 {
		t.Fatalf("expected a single visit row, got %+v", row)
	}
	if row.AvgAge != 0 {
		t.Fatalf("avg age for unknown visitor: want=0 got=%f", row.AvgAge)
	}
}
