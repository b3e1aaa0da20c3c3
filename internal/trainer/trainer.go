// Package trainer implements the dictionary-training procedure: it
// turns a set of token sequences into a dictionary artifact consumed by
// clmmodel.CLMModel.
package trainer

import (
	"fmt"

	"github.com/valyala/gozstd"

	"github.com/samuelless/chatclm/internal/clmerr"
	"github.com/samuelless/chatclm/internal/tokens"
	"github.com/samuelless/chatclm/internal/trainopts"
)

// Train turns sequences into a dictionary artifact.
// An empty input returns an empty artifact — the untrained-model sentinel.
func Train(sequences [][]tokens.Token, opts trainopts.Options) ([]byte, error) {
	if len(sequences) == 0 {
		return []byte{}, nil
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var raw []byte
	for _, s := range sequences {
		raw = tokens.Encode(raw, s)
	}
	sizes := tokens.Sizes(sequences)

	var sum uint64
	for _, s := range sizes {
		sum += s
	}
	if sum != uint64(len(raw)) {
		panic(fmt.Sprintf("trainer: size-sum assertion failed: sizes sum to %d but raw buffer is %d bytes", sum, len(raw)))
	}

	capacity := int(float64(len(raw)) * opts.DictionarySizePercentage)
	if capacity < 1 {
		capacity = 1
	}

	samples := make([][]byte, len(sequences))
	offset := 0
	for i, s := range sizes {
		samples[i] = raw[offset : offset+int(s)]
		offset += int(s)
	}

	dict := gozstd.BuildDict(samples, capacity)
	if len(dict) == 0 {
		return nil, clmerr.Wrap(clmerr.TrainingFailed, fmt.Errorf("dictionary trainer returned no output (k=%d d=%d f=%d steps=%d)", opts.K, opts.D, opts.F, opts.Steps))
	}

	return dict, nil
}
