package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelless/chatclm/internal/clmerr"
	"github.com/samuelless/chatclm/internal/tokens"
)

func seqOfLen(n int) []tokens.Token {
	s := make([]tokens.Token, n)
	for i := range s {
		s[i] = tokens.Token(i)
	}
	return s
}

func TestSplitTrainTestLengths(t *testing.T) {
	data := make([][]tokens.Token, 1000)
	for i := range data {
		data[i] = seqOfLen(3)
	}
	ds := FromData(data)

	train, test, err := ds.SplitTrainTest(0.9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if train.Len()+test.Len() != ds.Len() {
		t.Fatalf("train(%d) + test(%d) != total(%d)", train.Len(), test.Len(), ds.Len())
	}
	if train.Len() != 900 {
		t.Errorf("train.Len() = %d, want 900", train.Len())
	}
}

func TestSplitTrainTestRejectsOutOfRange(t *testing.T) {
	ds := FromData(nil)
	if _, _, err := ds.SplitTrainTest(1.5); !errors.Is(err, clmerr.InvalidOptions) {
		t.Fatalf("expected InvalidOptions, got %v", err)
	}
}

func TestShrinkToSizeExact(t *testing.T) {
	data := [][]tokens.Token{seqOfLen(400), seqOfLen(400), seqOfLen(400)}
	ds := FromData(data)

	shrunk := ds.ShrinkToSize(1000)
	if shrunk.TotalTokens() != 1000 {
		t.Fatalf("TotalTokens() = %d, want 1000", shrunk.TotalTokens())
	}
}

func TestShrinkToSizeBeyondTotal(t *testing.T) {
	data := [][]tokens.Token{seqOfLen(10), seqOfLen(10)}
	ds := FromData(data)

	shrunk := ds.ShrinkToSize(1000)
	if shrunk.TotalTokens() != 20 {
		t.Fatalf("TotalTokens() = %d, want 20 (min(T, total))", shrunk.TotalTokens())
	}
}

func TestJoinLinesMinimumLength(t *testing.T) {
	data := make([][]tokens.Token, 20)
	for i := range data {
		data[i] = seqOfLen(3)
	}
	ds := FromData(data)

	joined := ds.JoinLines(10)
	for i, s := range joined.Data() {
		if i == len(joined.Data())-1 {
			continue // last sentence may be shorter
		}
		if len(s) < 10 {
			t.Errorf("joined sentence %d has length %d, want >= 10", i, len(s))
		}
	}
}

func TestSplitIntoChunksCoversAllSentences(t *testing.T) {
	data := make([][]tokens.Token, 1000)
	for i := range data {
		data[i] = seqOfLen(1)
	}
	ds := FromData(data)

	chunks, err := ds.SplitIntoChunks(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 10 {
		t.Fatalf("len(chunks) = %d, want 10", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		total += c.Len()
	}
	if total != 1000 {
		t.Fatalf("sum of chunk lengths = %d, want 1000", total)
	}
}

func TestSplitIntoChunksRejectsEmpty(t *testing.T) {
	ds := FromData(nil)
	if _, err := ds.SplitIntoChunks(4); !errors.Is(err, clmerr.EmptyInput) {
		t.Fatalf("expected EmptyInput, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	data := [][]tokens.Token{seqOfLen(5), {}, seqOfLen(12)}
	ds := FromData(data)

	path := filepath.Join(t.TempDir(), "dataset.checkpoint")
	if err := ds.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Len() != ds.Len() {
		t.Fatalf("loaded.Len() = %d, want %d", loaded.Len(), ds.Len())
	}
	for i, s := range loaded.Data() {
		if len(s) != len(data[i]) {
			t.Errorf("sentence %d: length %d, want %d", i, len(s), len(data[i]))
		}
		for j := range s {
			if s[j] != data[i][j] {
				t.Errorf("sentence %d token %d: got %d, want %d", i, j, s[j], data[i][j])
			}
		}
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.checkpoint")
	if err := os.WriteFile(path, []byte("not a dataset checkpoint"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, clmerr.Parse) {
		t.Fatalf("expected Parse error, got %v", err)
	}
}
