package eval

import (
	"math"
	"math/rand"
	"testing"

	"github.com/samuelless/chatclm/internal/dataset"
	"github.com/samuelless/chatclm/internal/ensemble"
	"github.com/samuelless/chatclm/internal/tokens"
	"github.com/samuelless/chatclm/internal/trainopts"
)

// constScorer is a Scorer stand-in whose compressed size is a fixed
// function of sequence length — enough to exercise the sampling and
// estimator math without a real entropy coder.
type constScorer struct {
	perToken int
}

func (c constScorer) Compress(seq []tokens.Token) []byte {
	return make([]byte, len(seq)*c.perToken)
}

func (c constScorer) CompressTogether(prompt, suffix []tokens.Token) int {
	return (len(prompt) + len(suffix)) * c.perToken
}

func sentences(n, length int) [][]tokens.Token {
	data := make([][]tokens.Token, n)
	for i := range data {
		s := make([]tokens.Token, length)
		for j := range s {
			s[j] = tokens.Token(j % 100)
		}
		data[i] = s
	}
	return data
}

func TestAverageBytesPerTokenConstantModel(t *testing.T) {
	ds := dataset.FromData(sentences(50, 20))
	scorer := constScorer{perToken: 4}

	est := AverageBytesPerToken(scorer, ds, 500, 1)
	if math.Abs(est.Mean-4) > 1e-9 {
		t.Fatalf("mean = %v, want 4 (one extra token costs perToken bytes under a constant-cost model)", est.Mean)
	}
	if est.StdErr != 0 {
		t.Fatalf("stderr = %v, want 0 for a deterministic scorer", est.StdErr)
	}
}

func TestAverageInformationGainConstantModelConcentratesAroundOne(t *testing.T) {
	ds := dataset.FromData(sentences(50, 20))
	scorer := constScorer{perToken: 4}

	est := AverageInformationGain(scorer, ds, 99, 500, 1)
	if math.Abs(est.Mean-1) > 1e-9 {
		t.Fatalf("mean = %v, want 1 (random and true tokens cost the same under a constant-cost model)", est.Mean)
	}
}

func TestConfidenceHalfWidth(t *testing.T) {
	e := Estimate{Mean: 10, StdErr: 2}
	want := 2.576 * 2
	if math.Abs(e.ConfidenceHalfWidth()-want) > 1e-9 {
		t.Fatalf("ConfidenceHalfWidth() = %v, want %v", e.ConfidenceHalfWidth(), want)
	}
}

func TestEstimateEmptyValues(t *testing.T) {
	e := estimate(nil)
	if e.Mean != 0 || e.StdErr != 0 {
		t.Fatalf("expected zero Estimate for no samples, got %+v", e)
	}
}

// diverseSentences returns sentences of pseudo-random tokens with no
// internal repetition, so neither a trained nor an untrained compressor
// has any structure to exploit beyond whatever the true next token itself
// happens to share with the prompt by chance.
func diverseSentences(n, length int, seed int64) [][]tokens.Token {
	rng := rand.New(rand.NewSource(seed))
	data := make([][]tokens.Token, n)
	for i := range data {
		s := make([]tokens.Token, length)
		for j := range s {
			s[j] = tokens.Token(rng.Intn(50))
		}
		data[i] = s
	}
	return data
}

// repeatingPatternSentences returns sentences built from a single repeated
// period-17 pattern, the kind of corpus a dictionary trainer can fit
// tightly.
func repeatingPatternSentences(n, length int) [][]tokens.Token {
	data := make([][]tokens.Token, n)
	for i := range data {
		s := make([]tokens.Token, length)
		for j := range s {
			s[j] = tokens.Token(j % 17)
		}
		data[i] = s
	}
	return data
}

func TestAverageInformationGainUntrainedEnsembleConcentratesNearOne(t *testing.T) {
	ds := dataset.FromData(diverseSentences(300, 20, 1))
	opts := trainopts.Default()
	opts.EnsembleSize = 1

	untrained, err := ensemble.Train(dataset.FromData(nil), opts)
	if err != nil {
		t.Fatalf("Train(untrained): %v", err)
	}
	defer untrained.Close()

	est := AverageInformationGain(untrained, ds, 49, 2000, 2)
	if math.Abs(est.Mean-1) > 0.4 {
		t.Fatalf("untrained AverageInformationGain mean = %v, want close to 1 (no dictionary means no signal to prefer the true token)", est.Mean)
	}
}

func TestAverageInformationGainTrainedEnsembleExceedsOne(t *testing.T) {
	data := repeatingPatternSentences(300, 80)
	ds := dataset.FromData(data)
	opts := trainopts.Default()
	opts.EnsembleSize = 1

	trained, err := ensemble.Train(ds, opts)
	if err != nil {
		t.Fatalf("Train(trained): %v", err)
	}
	defer trained.Close()

	est := AverageInformationGain(trained, ds, 99, 2000, 3)
	if est.Mean <= 1.0 {
		t.Fatalf("trained AverageInformationGain mean = %v, want > 1 (the dictionary should favor the token that continues the learned pattern)", est.Mean)
	}
}

func TestAverageBytesPerTokenNoEligibleSentences(t *testing.T) {
	// Every sentence shorter than minSentenceLen — sample() never succeeds.
	ds := dataset.FromData(sentences(10, 3))
	scorer := constScorer{perToken: 4}

	est := AverageBytesPerToken(scorer, ds, 50, 1)
	if est.Mean != 0 || est.StdErr != 0 {
		t.Fatalf("expected zero Estimate when no sentence is eligible, got %+v", est)
	}
}
