package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"gorm.io/gorm"

	"github.com/pinpung/pinpung-ai/internal/platform/logger"
	"github.com/pinpung/pinpung-ai/internal/recommender"
	"github.com/pinpung/pinpung-ai/internal/repos"
	"github.com/pinpung/pinpung-ai/internal/types"
)

// UserKey returns the model key for a real user.
func UserKey(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

// TagUserKey returns the pseudo-user key used by popularity ranking, where
// each trending tag ranks places as if it were a user.
func TagUserKey(tagID string) string {
	return "tag:" + tagID
}

type BuildOptions struct {
	// TrendingCountFloor: tags whose canonical count exceeds this are
	// trending. Default 1 (a tag seen once is not a trend).
	TrendingCountFloor int
	// IncludeTrendingPseudoUsers adds one pseudo-user per trending tag so a
	// single fitted model serves both personal and popularity ranking.
	IncludeTrendingPseudoUsers bool
}

// FeatureMatrixBuilder assembles the training snapshot. Two calls over
// unchanged stores produce identical matrices regardless of input order:
// every entity list, vocabulary and feature list is sorted before indexing.
type FeatureMatrixBuilder interface {
	Build(ctx context.Context, userIDs []int64, placeIDs []int64, opts BuildOptions) (recommender.Matrices, error)
	TrendingTags(ctx context.Context, opts BuildOptions) ([]TrendingTag, error)
}

type featureMatrixBuilder struct {
	db               *gorm.DB
	log              *logger.Logger
	placeTagRepo     repos.PlaceTagRepo
	userPlaceTagRepo repos.UserPlaceTagRepo
	placeVisitRepo   repos.PlaceVisitRepo
	userRepo         repos.UserRepo
	canonicalizer    TagCanonicalizer
}

func NewFeatureMatrixBuilder(
	db *gorm.DB,
	baseLog *logger.Logger,
	placeTagRepo repos.PlaceTagRepo,
	userPlaceTagRepo repos.UserPlaceTagRepo,
	placeVisitRepo repos.PlaceVisitRepo,
	userRepo repos.UserRepo,
	canonicalizer TagCanonicalizer,
) FeatureMatrixBuilder {
	serviceLog := baseLog.With("service", "FeatureMatrixBuilder")
	return &featureMatrixBuilder{
		db:               db,
		log:              serviceLog,
		placeTagRepo:     placeTagRepo,
		userPlaceTagRepo: userPlaceTagRepo,
		placeVisitRepo:   placeVisitRepo,
		userRepo:         userRepo,
		canonicalizer:    canonicalizer,
	}
}

func (b *featureMatrixBuilder) TrendingTags(ctx context.Context, opts BuildOptions) ([]TrendingTag, error) {
	floor := opts.TrendingCountFloor
	if floor < 1 {
		floor = 1
	}
	return b.canonicalizer.TrendingTags(ctx, floor)
}

func (b *featureMatrixBuilder) Build(ctx context.Context, userIDs []int64, placeIDs []int64, opts BuildOptions) (recommender.Matrices, error) {
	var empty recommender.Matrices
	floor := opts.TrendingCountFloor
	if floor < 1 {
		floor = 1
	}

	// Cohort expansion: users who tagged the candidate places join the
	// cohort, then every place those users tagged joins the item set. One
	// hop each way; no transitive closure.
	cohortUsers, err := b.userPlaceTagRepo.ListUserIDsByPlaces(ctx, nil, placeIDs)
	if err != nil {
		return empty, fmt.Errorf("expand user cohort: %w", err)
	}
	users := sortedUniqueInt64(append(append([]int64{}, userIDs...), cohortUsers...))

	interactionRows, err := b.userPlaceTagRepo.ListByUsers(ctx, nil, users)
	if err != nil {
		return empty, fmt.Errorf("load interaction rows: %w", err)
	}
	places := append([]int64{}, placeIDs...)
	for _, row := range interactionRows {
		places = append(places, row.PlaceID)
	}
	places = sortedUniqueInt64(places)

	trending, err := b.canonicalizer.TrendingTags(ctx, floor)
	if err != nil {
		return empty, fmt.Errorf("load trending tags: %w", err)
	}
	trendingSet := make(map[string]*TrendingTag, len(trending))
	for i := range trending {
		trendingSet[trending[i].TagID] = &trending[i]
	}

	placeTagRows, err := b.placeTagRepo.ListByPlaces(ctx, nil, places)
	if err != nil {
		return empty, fmt.Errorf("load place tags: %w", err)
	}
	visits, err := b.placeVisitRepo.GetByPlaces(ctx, nil, places)
	if err != nil {
		return empty, fmt.Errorf("load place visits: %w", err)
	}
	userRows, err := b.userRepo.GetByIDs(ctx, nil, users)
	if err != nil {
		return empty, fmt.Errorf("load users: %w", err)
	}
	menus, err := b.userRepo.ListMenusByUsers(ctx, nil, users)
	if err != nil {
		return empty, fmt.Errorf("load user menus: %w", err)
	}
	activities, err := b.userRepo.ListActivitiesByUsers(ctx, nil, users)
	if err != nil {
		return empty, fmt.Errorf("load user activities: %w", err)
	}

	sentimentIDs := make([]string, 0, len(interactionRows))
	for _, row := range interactionRows {
		sentimentIDs = append(sentimentIDs, row.TagID)
	}
	sentiments, err := b.canonicalizer.TagSentiments(ctx, sortedUniqueString(sentimentIDs))
	if err != nil {
		return empty, fmt.Errorf("load tag sentiments: %w", err)
	}

	userTokens := b.userFeatureTokens(users, interactionRows, userRows, menus, activities)
	placeTokens := b.placeFeatureTokens(places, placeTagRows, visits, trendingSet)

	// Pseudo-users: one per trending tag, carrying that tag as its only
	// feature. Their interactions are the places whose representative set
	// contains the tag, weighted by the association count.
	var pseudoKeys []string
	pseudoTokens := map[string][]string{}
	pseudoInteractions := map[string]map[int64]float64{}
	if opts.IncludeTrendingPseudoUsers {
		for _, t := range trending {
			key := TagUserKey(t.TagID)
			pseudoKeys = append(pseudoKeys, key)
			pseudoTokens[key] = []string{"tag:" + t.TagID}
			pseudoInteractions[key] = map[int64]float64{}
		}
		sort.Strings(pseudoKeys)
		for _, row := range placeTagRows {
			if !row.IsRepresentative {
				continue
			}
			if _, ok := pseudoInteractions[TagUserKey(row.TagID)]; !ok {
				continue
			}
			pseudoInteractions[TagUserKey(row.TagID)][row.PlaceID] = float64(row.Count)
		}
	}

	// Shared vocabulary over all user and place tokens.
	var allTokens []string
	for _, tokens := range userTokens {
		allTokens = append(allTokens, tokens...)
	}
	for _, tokens := range placeTokens {
		allTokens = append(allTokens, tokens...)
	}
	for _, key := range pseudoKeys {
		allTokens = append(allTokens, pseudoTokens[key]...)
	}
	vocabulary := sortedUniqueString(allTokens)
	tokenIndex := make(map[string]int, len(vocabulary))
	for i, tok := range vocabulary {
		tokenIndex[tok] = i
	}

	m := recommender.Matrices{
		FeatureTokens: vocabulary,
		ItemIDs:       places,
	}
	itemIndex := make(map[int64]int, len(places))
	for i, id := range places {
		itemIndex[id] = i
	}

	userIndex := make(map[string]int, len(users)+len(pseudoKeys))
	for _, id := range users {
		key := UserKey(id)
		userIndex[key] = len(m.UserKeys)
		m.UserKeys = append(m.UserKeys, key)
		m.UserFeatures = append(m.UserFeatures, tokensToIndices(userTokens[id], tokenIndex))
	}
	for _, key := range pseudoKeys {
		userIndex[key] = len(m.UserKeys)
		m.UserKeys = append(m.UserKeys, key)
		m.UserFeatures = append(m.UserFeatures, tokensToIndices(pseudoTokens[key], tokenIndex))
	}

	for _, id := range places {
		m.ItemFeatures = append(m.ItemFeatures, tokensToIndices(placeTokens[id], tokenIndex))
	}

	// Interaction weight per (user, place) is the sum of sentiments of the
	// user's tags at that place. Rows are already ordered, so the grouped
	// output order is deterministic.
	type pair struct {
		user  int64
		place int64
	}
	weights := map[pair]float64{}
	var pairOrder []pair
	for _, row := range interactionRows {
		p := pair{user: row.UserID, place: row.PlaceID}
		if _, seen := weights[p]; !seen {
			pairOrder = append(pairOrder, p)
		}
		// A tag with no stored sentiment contributes nothing, same as a
		// neutral observation.
		weights[p] += float64(sentiments[row.TagID])
	}
	for _, p := range pairOrder {
		m.Interactions = append(m.Interactions, recommender.Interaction{
			UserIdx: userIndex[UserKey(p.user)],
			ItemIdx: itemIndex[p.place],
			Weight:  weights[p],
		})
	}
	for _, key := range pseudoKeys {
		placeWeights := pseudoInteractions[key]
		var ids []int64
		for id := range placeWeights {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		for _, id := range ids {
			m.Interactions = append(m.Interactions, recommender.Interaction{
				UserIdx: userIndex[key],
				ItemIdx: itemIndex[id],
				Weight:  placeWeights[id],
			})
		}
	}

	b.log.Debug("feature matrices built",
		"users", len(m.UserKeys),
		"items", len(m.ItemIDs),
		"features", len(m.FeatureTokens),
		"interactions", len(m.Interactions),
	)
	return m, nil
}

func (b *featureMatrixBuilder) userFeatureTokens(
	users []int64,
	interactionRows []*types.UserPlaceTag,
	userRows []*types.User,
	menus []*types.UserMenu,
	activities []*types.UserActivity,
) map[int64][]string {
	out := make(map[int64][]string, len(users))
	for _, id := range users {
		out[id] = nil
	}
	for _, row := range interactionRows {
		out[row.UserID] = append(out[row.UserID], "tag:"+row.TagID)
	}
	for _, m := range menus {
		if _, ok := out[m.UserID]; ok {
			out[m.UserID] = append(out[m.UserID], "menu:"+m.Menu)
		}
	}
	for _, a := range activities {
		if _, ok := out[a.UserID]; ok {
			out[a.UserID] = append(out[a.UserID], "activity:"+a.Activity)
		}
	}
	for _, u := range userRows {
		if _, ok := out[u.ID]; ok && u.Age > 0 {
			out[u.ID] = append(out[u.ID], "age:"+strconv.Itoa((u.Age/10)*10))
		}
	}
	for id := range out {
		out[id] = sortedUniqueString(out[id])
	}
	return out
}

func (b *featureMatrixBuilder) placeFeatureTokens(
	places []int64,
	placeTagRows []*types.PlaceTag,
	visits []*types.PlaceVisit,
	trendingSet map[string]*TrendingTag,
) map[int64][]string {
	out := make(map[int64][]string, len(places))
	for _, id := range places {
		out[id] = nil
	}
	for _, row := range placeTagRows {
		if _, ok := out[row.PlaceID]; !ok {
			continue
		}
		_, isTrending := trendingSet[row.TagID]
		if row.IsRepresentative || isTrending {
			out[row.PlaceID] = append(out[row.PlaceID], "tag:"+row.TagID)
		}
	}
	for _, v := range visits {
		if _, ok := out[v.PlaceID]; ok && v.VisitCount > 0 {
			rounded := int(v.AvgAge + 0.5)
			out[v.PlaceID] = append(out[v.PlaceID], "avg_age:"+strconv.Itoa(rounded))
		}
	}
	for id := range out {
		out[id] = sortedUniqueString(out[id])
	}
	return out
}

func tokensToIndices(tokens []string, tokenIndex map[string]int) []int {
	out := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		if idx, ok := tokenIndex[tok]; ok {
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out
}

func sortedUniqueInt64(in []int64) []int64 {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(a, b int) bool { return in[a] < in[b] })
	out := in[:0]
	var prev int64
	for i, v := range in {
		if i > 0 && v == prev {
			continue
		}
		out = append(out, v)
		prev = v
	}
	return out
}

func sortedUniqueString(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	sort.Strings(in)
	out := in[:0]
	prev := ""
	for i, v := range in {
		if i > 0 && v == prev {
			continue
		}
		out = append(out, v)
		prev = v
	}
	return out
}
