// Package predictor implements the per-candidate compressed-size scoring
// loop, the sampling distribution built from it, and the beam-style
// lookahead search.
package predictor

import (
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/samuelless/chatclm/internal/tokens"
)

// Scorer is satisfied by ensemble.EnsembleModel. Predictor depends only on
// the aggregated score function, not on ensemble internals.
type Scorer interface {
	CompressedSize(seq []tokens.Token) float64
}

// DefaultTopK is the top-K restriction the inference driver uses.
const DefaultTopK = 10

// candidate pairs a token with its compressed-size score.
type candidate struct {
	token tokens.Token
	score float64
}

// Predictor scores candidate next tokens against a Scorer and samples or
// beam-searches among them. The RNG is explicit and seedable so that
// scoring + sampling is reproducible given a fixed seed.
type Predictor struct {
	scorer   Scorer
	rng      *rand.Rand
	topK     int
	nbWorker int
}

// DefaultNbWorker is the candidate-scoring parallelism used when the
// caller doesn't specify one.
const DefaultNbWorker = 8

// New builds a Predictor. seed is threaded explicitly rather than relying
// on ambient/global randomness. topK <= 0 uses DefaultTopK; a topK larger
// than the candidate count keeps every candidate. nbWorker <= 0
// uses DefaultNbWorker; callers typically pass TrainingOptions.NbThreads so
// candidate scoring honors the same thread budget as ensemble training.
func New(scorer Scorer, seed int64, topK, nbWorker int) *Predictor {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if nbWorker <= 0 {
		nbWorker = DefaultNbWorker
	}
	return &Predictor{
		scorer:   scorer,
		rng:      rand.New(rand.NewSource(seed)),
		topK:     topK,
		nbWorker: nbWorker,
	}
}

// scoreCandidates computes s_t = scorer.CompressedSize(p ++ [t]) for every
// t in 0..=maxToken, in parallel — the expensive inner loop that needs to
// be shardable across candidate tokens.
func (p *Predictor) scoreCandidates(prompt []tokens.Token, maxToken tokens.Token) ([]candidate, error) {
	n := int(maxToken) + 1
	out := make([]candidate, n)

	g := new(errgroup.Group)
	g.SetLimit(p.nbWorker)
	for t := 0; t < n; t++ {
		t := t
		g.Go(func() error {
			extended := make([]tokens.Token, len(prompt)+1)
			copy(extended, prompt)
			extended[len(prompt)] = tokens.Token(t)
			out[t] = candidate{token: tokens.Token(t), score: p.scorer.CompressedSize(extended)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// shuffleThenSort shuffles c with the predictor's RNG, then stable-sorts
// ascending by score — equal-cost tokens end up in a uniformly random
// relative order rather than vocabulary order.
func (p *Predictor) shuffleThenSort(c []candidate) {
	p.rng.Shuffle(len(c), func(i, j int) { c[i], c[j] = c[j], c[i] })
	sort.SliceStable(c, func(i, j int) bool { return c[i].score < c[j].score })
}

// Sample computes the distribution over next tokens and draws one
// proportional to its weight. ℓ(t|p) = s_t − s_p; weights are
// w_t = 1/(s_t − s_p), zero-floored by subtracting min_t w_t and
// normalized to sum 1. This transform is brittle when s_t ≈ s_p or
// s_t < s_p — it is preserved bit-for-bit, not "fixed".
func (p *Predictor) Sample(prompt []tokens.Token, maxToken tokens.Token) (tokens.Token, error) {
	sp := p.scorer.CompressedSize(prompt)

	all, err := p.scoreCandidates(prompt, maxToken)
	if err != nil {
		return 0, err
	}
	p.shuffleThenSort(all)

	k := p.topK
	if k <= 0 || k > len(all) {
		k = len(all)
	}
	top := all[:k]

	weights := make([]float64, len(top))
	for i, c := range top {
		weights[i] = 1.0 / (c.score - sp)
	}
	minW := weights[0]
	for _, w := range weights {
		if w < minW {
			minW = w
		}
	}
	var sum float64
	for i := range weights {
		weights[i] -= minW
		sum += weights[i]
	}
	if sum == 0 {
		// Degenerate (all weights equal after flooring) — uniform pick
		// among the shuffled top-K, consistent with "no signal" scoring on
		// an untrained model.
		return top[p.rng.Intn(len(top))].token, nil
	}
	for i := range weights {
		weights[i] /= sum
	}

	r := p.rng.Float64()
	var acc float64
	for i, w := range weights {
		acc += w
		if r <= acc {
			return top[i].token, nil
		}
	}
	return top[len(top)-1].token, nil
}

// PredictTokens returns the single best (token, score) via beam-style
// lookahead: score and shuffle-then-sort all candidates; if depth is 0,
// return the head of the sorted list; otherwise recurse over the first
// width candidates with depth-1 and width/2, keeping the minimum returned
// score. Width halves per recursion level.
func (p *Predictor) PredictTokens(prompt []tokens.Token, maxToken tokens.Token, depth, width int) (tokens.Token, float64, error) {
	c, err := p.scoreCandidates(prompt, maxToken)
	if err != nil {
		return 0, 0, err
	}
	p.shuffleThenSort(c)

	if depth == 0 {
		return c[0].token, c[0].score, nil
	}

	w := width
	if w > len(c) {
		w = len(c)
	}

	best := candidate{score: -1}
	for _, cand := range c[:w] {
		_, nextScore, err := p.PredictTokens(prompt, maxToken, depth-1, width/2)
		if err != nil {
			return 0, 0, err
		}
		if best.score < 0 || nextScore < best.score {
			best = candidate{token: cand.token, score: nextScore}
		}
	}
	return best.token, best.score, nil
}
