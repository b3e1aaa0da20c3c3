// Package clmerr defines ChatCLM's recoverable error kinds.
// Packages wrap an underlying cause with one of these sentinels so
// callers can discriminate with errors.Is, while the message itself still
// follows the rest of the codebase's plain fmt.Errorf("...: %w", err) idiom.
package clmerr

import (
	"errors"
	"fmt"
)

var (
	// Io covers file-missing, permission, and short read/write failures.
	Io = errors.New("io")
	// Parse covers a corrupt dataset or ensemble container.
	Parse = errors.New("parse")
	// CorruptModel covers dictionary bytes rejected by the entropy coder.
	CorruptModel = errors.New("corrupt model")
	// TrainingFailed covers the dictionary trainer returning an error sentinel.
	TrainingFailed = errors.New("training failed")
	// InvalidOptions covers out-of-range TrainingOptions (ensembleSize=0, splitRatio∉[0,1]).
	InvalidOptions = errors.New("invalid options")
	// EmptyInput covers split_into_chunks called on an empty dataset.
	EmptyInput = errors.New("empty input")
)

// Wrap joins cause under kind so errors.Is(err, kind) succeeds while the
// original message (from cause) is preserved for humans.
func Wrap(kind, cause error) error {
	return fmt.Errorf("%w: %v", kind, cause)
}
