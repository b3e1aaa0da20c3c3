package ensemble

import (
	"path/filepath"
	"testing"

	"github.com/samuelless/chatclm/internal/dataset"
	"github.com/samuelless/chatclm/internal/tokens"
	"github.com/samuelless/chatclm/internal/trainopts"
)

func repeatedSentence(n, length int) [][]tokens.Token {
	s := make([]tokens.Token, length)
	for i := range s {
		s[i] = tokens.Token(i % 17)
	}
	data := make([][]tokens.Token, n)
	for i := range data {
		data[i] = append([]tokens.Token{}, s...)
	}
	return data
}

func TestTrainRespectsEnsembleSize(t *testing.T) {
	ds := dataset.FromData(repeatedSentence(20, 50))
	opts := trainopts.Default()
	opts.EnsembleSize = 3
	opts.NbThreads = 2

	ens, err := Train(ds, opts)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	defer ens.Close()

	if ens.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", ens.Size())
	}
}

func TestTrainEmptyDatasetYieldsEmptyMembers(t *testing.T) {
	ds := dataset.FromData(nil)
	opts := trainopts.Default()
	opts.EnsembleSize = 2

	ens, err := Train(ds, opts)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	defer ens.Close()

	if ens.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", ens.Size())
	}
	for i, m := range ens.Members() {
		if m.DictionarySize() != 0 {
			t.Errorf("member %d dictionary size = %d, want 0 (untrained)", i, m.DictionarySize())
		}
	}
}

func TestCompressedSizeIsMeanAcrossMembers(t *testing.T) {
	ds := dataset.FromData(repeatedSentence(20, 50))
	opts := trainopts.Default()
	opts.EnsembleSize = 2

	ens, err := Train(ds, opts)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	defer ens.Close()

	seq := []tokens.Token{1, 2, 3, 4, 5}
	var sum float64
	for _, m := range ens.Members() {
		sum += float64(len(m.Compress(seq)))
	}
	want := sum / float64(ens.Size())

	got := ens.CompressedSize(seq)
	if got != want {
		t.Fatalf("CompressedSize() = %v, want %v", got, want)
	}
}

func TestTrainedEnsembleCompressesRepetitiveDataBetterThanUntrained(t *testing.T) {
	data := repeatedSentence(200, 80)
	ds := dataset.FromData(data)

	untrainedOpts := trainopts.Default()
	untrainedOpts.EnsembleSize = 1
	untrained, err := Train(dataset.FromData(nil), untrainedOpts)
	if err != nil {
		t.Fatalf("Train(untrained): %v", err)
	}
	defer untrained.Close()

	trainedOpts := trainopts.Default()
	trainedOpts.EnsembleSize = 1
	trained, err := Train(ds, trainedOpts)
	if err != nil {
		t.Fatalf("Train(trained): %v", err)
	}
	defer trained.Close()

	seq := data[0]
	untrainedSize := untrained.CompressedSize(seq)
	trainedSize := trained.CompressedSize(seq)
	if trainedSize >= untrainedSize {
		t.Fatalf("trained CompressedSize = %v, want less than untrained %v (the dictionary should fit this repetitive corpus)", trainedSize, untrainedSize)
	}
}

func TestCompressAndCompressTogetherAgreeWithCompressedSize(t *testing.T) {
	ds := dataset.FromData(repeatedSentence(20, 50))
	opts := trainopts.Default()
	opts.EnsembleSize = 2

	ens, err := Train(ds, opts)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	defer ens.Close()

	prompt := []tokens.Token{1, 2, 3}
	suffix := []tokens.Token{4, 5}
	joined := append(append([]tokens.Token{}, prompt...), suffix...)

	wantLen := int(ens.CompressedSize(joined) + 0.5)
	if got := len(ens.Compress(joined)); got != wantLen {
		t.Fatalf("len(Compress(joined)) = %d, want %d", got, wantLen)
	}
	if got := ens.CompressTogether(prompt, suffix); got != wantLen {
		t.Fatalf("CompressTogether(prompt, suffix) = %d, want %d", got, wantLen)
	}
}

func TestSaveCheckpointRoundTrip(t *testing.T) {
	ds := dataset.FromData(repeatedSentence(20, 50))
	opts := trainopts.Default()
	opts.EnsembleSize = 2

	ens, err := Train(ds, opts)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	defer ens.Close()

	path := filepath.Join(t.TempDir(), "ensemble.checkpoint")
	if err := ens.SaveCheckpoint(path); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	reloaded, err := FromCheckpoint(path)
	if err != nil {
		t.Fatalf("FromCheckpoint: %v", err)
	}
	defer reloaded.Close()

	if reloaded.Size() != ens.Size() {
		t.Fatalf("reloaded Size() = %d, want %d", reloaded.Size(), ens.Size())
	}

	seq := []tokens.Token{9, 8, 7}
	if reloaded.CompressedSize(seq) != ens.CompressedSize(seq) {
		t.Fatalf("CompressedSize differs after checkpoint round-trip")
	}
}
