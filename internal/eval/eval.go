// Package eval implements the average-bytes-per-token and
// average-information-gain estimators, each reported with its standard
// error over a fixed sample count.
package eval

import (
	"math"
	"math/rand"

	"github.com/samuelless/chatclm/internal/dataset"
	"github.com/samuelless/chatclm/internal/tokens"
)

// Scorer is satisfied by clmmodel.CLMModel and ensemble.EnsembleModel —
// eval only needs Compress and CompressTogether to build both metrics.
type Scorer interface {
	Compress(seq []tokens.Token) []byte
	CompressTogether(prompt, suffix []tokens.Token) int
}

// DefaultSamples is the number of samples an evaluation run draws.
const DefaultSamples = 20000

// minSentenceLen and minCutPos bound the sampling scheme: a sentence must
// have at least 7 tokens, and the cut position is drawn from [5, len).
const (
	minSentenceLen = 7
	minCutPos      = 5
)

// Estimate is a sample mean with its standard error.
type Estimate struct {
	Mean   float64
	StdErr float64
}

// ConfidenceHalfWidth returns the 99% confidence half-width, 2.576·stderr.
func (e Estimate) ConfidenceHalfWidth() float64 {
	return 2.576 * e.StdErr
}

func estimate(values []float64) Estimate {
	if len(values) == 0 {
		return Estimate{}
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sqDiff float64
	for _, v := range values {
		d := v - mean
		sqDiff += d * d
	}
	variance := sqDiff / float64(len(values))
	stderr := math.Sqrt(variance) / math.Sqrt(float64(len(values)))
	return Estimate{Mean: mean, StdErr: stderr}
}

// sample draws one (prompt, truth) pair: a sentence with |S| >= 7, a cut
// position in [5, |S|), prompt = S[..pos], truth = S[pos]. Returns
// ok=false if testData has no eligible sentence within maxAttempts draws.
func sample(rng *rand.Rand, testData dataset.Dataset, maxAttempts int) ([]tokens.Token, tokens.Token, bool) {
	data := testData.Data()
	if len(data) == 0 {
		return nil, 0, false
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		s := data[rng.Intn(len(data))]
		if len(s) < minSentenceLen {
			continue
		}
		pos := minCutPos + rng.Intn(len(s)-minCutPos)
		prompt := make([]tokens.Token, pos)
		copy(prompt, s[:pos])
		return prompt, s[pos], true
	}
	return nil, 0, false
}

// AverageBytesPerToken reports the sample mean and standard error of
// x = compress_together(prompt, [truth]) − |compress(prompt)| over n
// samples drawn from testData.
func AverageBytesPerToken(m Scorer, testData dataset.Dataset, n int, seed int64) Estimate {
	if n <= 0 {
		n = DefaultSamples
	}
	rng := rand.New(rand.NewSource(seed))

	values := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		prompt, truth, ok := sample(rng, testData, 100)
		if !ok {
			continue
		}
		compressedPrompt := len(m.Compress(prompt))
		compressedTogether := m.CompressTogether(prompt, []tokens.Token{truth})
		values = append(values, float64(compressedTogether-compressedPrompt))
	}
	return estimate(values)
}

// AverageInformationGain reports the sample mean and standard error of
// y = Δ_rand / max(0.1, Δ_true), where Δ_true is the marginal compressed
// cost of the true next token and Δ_rand is the same for a uniformly
// random vocabulary token. On an untrained model y concentrates around
// 1.0; a trained model pushes it above 1.0.
func AverageInformationGain(m Scorer, testData dataset.Dataset, maxToken tokens.Token, n int, seed int64) Estimate {
	if n <= 0 {
		n = DefaultSamples
	}
	rng := rand.New(rand.NewSource(seed))

	values := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		prompt, truth, ok := sample(rng, testData, 100)
		if !ok {
			continue
		}
		base := len(m.Compress(prompt))
		deltaTrue := float64(m.CompressTogether(prompt, []tokens.Token{truth}) - base)

		r := tokens.Token(rng.Intn(int(maxToken) + 1))
		deltaRand := float64(m.CompressTogether(prompt, []tokens.Token{r}) - base)

		denom := deltaTrue
		if denom < 0.1 {
			denom = 0.1
		}
		values = append(values, deltaRand/denom)
	}
	return estimate(values)
}
