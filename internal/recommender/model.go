// Package recommender implements an implicit-feedback latent-factor ranker.
// Entities (users and places) are represented as sums of feature embeddings
// over a shared vocabulary, so a user who reviewed "quiet atmosphere" and a
// place whose representative set contains the same tag land near each other
// without ever co-occurring in an interaction.
package recommender

import (
	"math"
	"math/rand"
	"sort"
)

type Interaction struct {
	UserIdx int
	ItemIdx int
	Weight  float64
}

// Matrices is the immutable training snapshot produced by the feature
// builder. All slices are ordered deterministically; fitting the same
// snapshot with the same options yields the same model.
type Matrices struct {
	UserKeys      []string
	ItemIDs       []int64
	FeatureTokens []string
	UserFeatures  [][]int // indices into FeatureTokens, sorted ascending
	ItemFeatures  [][]int
	Interactions  []Interaction
}

type FitOptions struct {
	Components   int
	Epochs       int
	LearningRate float64
	Reg          float64
	Seed         int64
}

func (o FitOptions) withDefaults() FitOptions {
	if o.Components <= 0 {
		o.Components = 30
	}
	if o.Epochs <= 0 {
		o.Epochs = 30
	}
	if o.LearningRate <= 0 {
		o.LearningRate = 0.05
	}
	if o.Reg <= 0 {
		o.Reg = 1e-6
	}
	return o
}

type RankedPlace struct {
	PlaceID int64
	Score   float64
	Scored  bool
}

// Model holds the fitted entity representations. Safe for concurrent reads.
type Model struct {
	userIndex map[string]int
	itemIndex map[int64]int
	userVecs  [][]float64
	userBias  []float64
	itemVecs  [][]float64
	itemBias  []float64
}

// Fit trains feature embeddings with pairwise updates: for each observed
// (user, item) pair an unobserved item is sampled and the model is pushed to
// score the observed one higher. Interaction weight scales the step, so a
// pair backed by several positive-sentiment tags moves further than a pair
// whose sentiments cancel out.
func Fit(m Matrices, opts FitOptions) *Model {
	opts = opts.withDefaults()
	k := opts.Components
	rng := rand.New(rand.NewSource(opts.Seed))

	nFeatures := len(m.FeatureTokens)
	emb := make([][]float64, nFeatures)
	fbias := make([]float64, nFeatures)
	scale := 1.0 / float64(k)
	for f := 0; f < nFeatures; f++ {
		vec := make([]float64, k)
		for d := 0; d < k; d++ {
			vec[d] = (rng.Float64() - 0.5) * scale
		}
		emb[f] = vec
	}

	// Observed items per user; only net-positive pairs act as positives.
	positives := make([]map[int]struct{}, len(m.UserKeys))
	for u := range positives {
		positives[u] = map[int]struct{}{}
	}
	var trainable []Interaction
	for _, in := range m.Interactions {
		if in.UserIdx < 0 || in.UserIdx >= len(m.UserKeys) {
			continue
		}
		if in.ItemIdx < 0 || in.ItemIdx >= len(m.ItemIDs) {
			continue
		}
		if in.Weight <= 0 {
			continue
		}
		positives[in.UserIdx][in.ItemIdx] = struct{}{}
		trainable = append(trainable, in)
	}

	nItems := len(m.ItemIDs)
	uvec := make([]float64, k)
	ivec := make([]float64, k)
	jvec := make([]float64, k)

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		order := rng.Perm(len(trainable))
		for _, idx := range order {
			in := trainable[idx]
			u, i := in.UserIdx, in.ItemIdx
			if len(positives[u]) >= nItems {
				continue
			}

			// Rejection-sample an unobserved item.
			j := -1
			for attempt := 0; attempt < 10; attempt++ {
				cand := rng.Intn(nItems)
				if _, seen := positives[u][cand]; !seen {
					j = cand
					break
				}
			}
			if j < 0 {
				continue
			}

			sumFeatures(emb, m.UserFeatures[u], uvec)
			sumFeatures(emb, m.ItemFeatures[i], ivec)
			sumFeatures(emb, m.ItemFeatures[j], jvec)
			x := dot(uvec, ivec) - dot(uvec, jvec) + sumBias(fbias, m.ItemFeatures[i]) - sumBias(fbias, m.ItemFeatures[j])

			g := sigmoid(-x) * opts.LearningRate * in.Weight
			shrink := opts.LearningRate * opts.Reg

			for _, f := range m.UserFeatures[u] {
				for d := 0; d < k; d++ {
					emb[f][d] += g*(ivec[d]-jvec[d]) - shrink*emb[f][d]
				}
			}
			for _, f := range m.ItemFeatures[i] {
				for d := 0; d < k; d++ {
					emb[f][d] += g*uvec[d] - shrink*emb[f][d]
				}
				fbias[f] += g - shrink*fbias[f]
			}
			for _, f := range m.ItemFeatures[j] {
				for d := 0; d < k; d++ {
					emb[f][d] += -g*uvec[d] - shrink*emb[f][d]
				}
				fbias[f] += -g - shrink*fbias[f]
			}
		}
	}

	model := &Model{
		userIndex: make(map[string]int, len(m.UserKeys)),
		itemIndex: make(map[int64]int, len(m.ItemIDs)),
		userVecs:  make([][]float64, len(m.UserKeys)),
		userBias:  make([]float64, len(m.UserKeys)),
		itemVecs:  make([][]float64, len(m.ItemIDs)),
		itemBias:  make([]float64, len(m.ItemIDs)),
	}
	for u, key := range m.UserKeys {
		model.userIndex[key] = u
		vec := make([]float64, k)
		sumFeatures(emb, m.UserFeatures[u], vec)
		model.userVecs[u] = vec
		model.userBias[u] = sumBias(fbias, m.UserFeatures[u])
	}
	for i, id := range m.ItemIDs {
		model.itemIndex[id] = i
		vec := make([]float64, k)
		sumFeatures(emb, m.ItemFeatures[i], vec)
		model.itemVecs[i] = vec
		model.itemBias[i] = sumBias(fbias, m.ItemFeatures[i])
	}
	return model
}

// HasUser reports whether the key was present in the training snapshot.
func (m *Model) HasUser(userKey string) bool {
	if m == nil {
		return false
	}
	_, ok := m.userIndex[userKey]
	return ok
}

// Rank scores the candidates for the user and orders them descending.
// Candidates absent from the item mapping cannot be scored; they keep their
// input order and are appended after every scored candidate. An unknown user
// leaves the whole candidate list unscored.
func (m *Model) Rank(userKey string, candidates []int64) []RankedPlace {
	out := make([]RankedPlace, 0, len(candidates))
	if m == nil {
		for _, id := range candidates {
			out = append(out, RankedPlace{PlaceID: id})
		}
		return out
	}

	u, knownUser := m.userIndex[userKey]
	var scored []RankedPlace
	var unscored []RankedPlace
	for _, id := range candidates {
		i, knownItem := m.itemIndex[id]
		if !knownUser || !knownItem {
			unscored = append(unscored, RankedPlace{PlaceID: id})
			continue
		}
		scored = append(scored, RankedPlace{
			PlaceID: id,
			Score:   dot(m.userVecs[u], m.itemVecs[i]) + m.itemBias[i],
			Scored:  true,
		})
	}

	sort.SliceStable(scored, func(a, b int) bool { return scored[a].Score > scored[b].Score })
	out = append(out, scored...)
	out = append(out, unscored...)
	return out
}

func sumFeatures(emb [][]float64, features []int, dst []float64) {
	for d := range dst {
		dst[d] = 0
	}
	for _, f := range features {
		vec := emb[f]
		for d := range dst {
			dst[d] += vec[d]
		}
	}
}

func sumBias(fbias []float64, features []int) float64 {
	total := 0.0
	for _, f := range features {
		total += fbias[f]
	}
	return total
}

func dot(a, b []float64) float64 {
	total := 0.0
	for d := range a {
		total += a[d] * b[d]
	}
	return total
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
