package trainer

import (
	"errors"
	"testing"

	"github.com/samuelless/chatclm/internal/clmerr"
	"github.com/samuelless/chatclm/internal/tokens"
	"github.com/samuelless/chatclm/internal/trainopts"
)

func TestTrainEmptyInputReturnsEmptyArtifact(t *testing.T) {
	dict, err := Train(nil, trainopts.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dict) != 0 {
		t.Fatalf("expected empty artifact, got %d bytes", len(dict))
	}
}

func TestTrainRejectsInvalidOptions(t *testing.T) {
	opts := trainopts.Default()
	opts.EnsembleSize = 0
	_, err := Train([][]tokens.Token{{1, 2, 3}}, opts)
	if !errors.Is(err, clmerr.InvalidOptions) {
		t.Fatalf("expected InvalidOptions, got %v", err)
	}
}
