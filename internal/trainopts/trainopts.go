// Package trainopts holds TrainingOptions: the tuning knobs for the
// dictionary trainer, with the defaults from the original ChatCLM build.
package trainopts

import (
	"fmt"

	"github.com/samuelless/chatclm/internal/clmerr"
)

// Options is a record of dictionary-trainer tuning knobs.
type Options struct {
	// K, D, F, Steps, Accel, SplitPoint, ShrinkDict, ShrinkDictMaxRegression,
	// NbThreads are the fastCover search parameters. ToZDictParams copies
	// them into the coder's parameter record, but trainer.Train does not pass
	// them to the coder: gozstd.BuildDict takes only the samples and the
	// dictionary capacity. NbThreads also bounds ensemble.Train's per-chunk
	// parallelism.
	K                       uint32
	D                       uint32
	F                       uint32
	Steps                   uint32
	NbThreads               uint32
	SplitPoint              float64
	Accel                   uint32
	ShrinkDict              uint32
	ShrinkDictMaxRegression uint32

	// CompressionLevel is the zstd level recorded in ZDictParams. Neither
	// trainer.Train nor clmmodel reads it: inference-time compression always
	// uses clmmodel.InferenceCompressionLevel.
	CompressionLevel uint32

	// DictionarySizePercentage is ρ ∈ (0,1], the dictionary-size ratio
	// relative to the concatenated raw corpus.
	DictionarySizePercentage float64

	// EnsembleSize is E ≥ 1, the number of independently trained models.
	EnsembleSize uint32
}

// Default returns the options used when the caller does not override
// anything — the exact values from the original ChatCLM build.
func Default() Options {
	return Options{
		K:                        50,
		D:                        8,
		F:                        25,
		Steps:                    4,
		NbThreads:                8,
		SplitPoint:               0.0,
		Accel:                    1,
		ShrinkDict:               0,
		ShrinkDictMaxRegression:  0,
		CompressionLevel:         3,
		DictionarySizePercentage: 1.0,
		EnsembleSize:             1,
	}
}

// Validate checks the required invariants at construction.
func (o Options) Validate() error {
	if o.EnsembleSize == 0 {
		return clmerr.Wrap(clmerr.InvalidOptions, fmt.Errorf("ensembleSize must be >= 1"))
	}
	if o.DictionarySizePercentage <= 0 || o.DictionarySizePercentage > 1 {
		return clmerr.Wrap(clmerr.InvalidOptions, fmt.Errorf("dictionarySizePercentage must be in (0,1], got %v", o.DictionarySizePercentage))
	}
	if o.SplitPoint < 0 || o.SplitPoint > 1 {
		return clmerr.Wrap(clmerr.InvalidOptions, fmt.Errorf("splitPoint must be in [0,1], got %v", o.SplitPoint))
	}
	return nil
}

// ZDictParams is the coder-specific parameter record the fastCover trainer
// primitive expects.
type ZDictParams struct {
	K                       uint32
	D                       uint32
	F                       uint32
	Steps                   uint32
	NbThreads               uint32
	SplitPoint              float64
	Accel                   uint32
	ShrinkDict              uint32
	ShrinkDictMaxRegression uint32
	CompressionLevel        int32
	NotificationLevel       int32
	DictID                  uint32
}

// ToZDictParams converts to the coder-specific parameter record on demand.
func (o Options) ToZDictParams() ZDictParams {
	return ZDictParams{
		K:                       o.K,
		D:                       o.D,
		F:                       o.F,
		Steps:                   o.Steps,
		NbThreads:               o.NbThreads,
		SplitPoint:              o.SplitPoint,
		Accel:                   o.Accel,
		ShrinkDict:              o.ShrinkDict,
		ShrinkDictMaxRegression: o.ShrinkDictMaxRegression,
		CompressionLevel:        int32(o.CompressionLevel),
		NotificationLevel:       4,
		DictID:                  0,
	}
}
