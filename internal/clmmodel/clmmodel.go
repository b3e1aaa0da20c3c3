// Package clmmodel implements CLMModel: a single compression-based
// model — a dictionary artifact plus the prepared encoder/decoder handles
// derived from it.
package clmmodel

import (
	"fmt"
	"os"

	"github.com/valyala/gozstd"

	"github.com/samuelless/chatclm/internal/clmerr"
	"github.com/samuelless/chatclm/internal/tokens"
)

// InferenceCompressionLevel is the compression level used to build the
// encoder dictionary handle, independent of the level the trainer used to
// size the dictionary itself.
const InferenceCompressionLevel = 1

// CLMModel is the triple (dictionary artifact, prepared encoder, prepared
// decoder). Handles are derived deterministically from the artifact plus
// the compression level; cloning rebuilds the handles but shares the
// artifact bytes by value.
type CLMModel struct {
	buf   []byte
	cdw   *gozstd.CDict
	ddw   *gozstd.DDict
	level int
}

// FromBuffer builds a model around dictionary bytes. An empty buffer is a
// legal, untrained model — compression falls back to the coder's default
// behavior with no prepared dictionary.
func FromBuffer(buf []byte) (*CLMModel, error) {
	m := &CLMModel{buf: buf, level: InferenceCompressionLevel}
	if len(buf) == 0 {
		return m, nil
	}
	cd, err := gozstd.NewCDictLevel(buf, m.level)
	if err != nil {
		return nil, clmerr.Wrap(clmerr.CorruptModel, fmt.Errorf("build encoder dictionary: %w", err))
	}
	dd, err := gozstd.NewDDict(buf)
	if err != nil {
		cd.Release()
		return nil, clmerr.Wrap(clmerr.CorruptModel, fmt.Errorf("build decoder dictionary: %w", err))
	}
	m.cdw, m.ddw = cd, dd
	return m, nil
}

// ToBuffer returns the underlying dictionary artifact bytes. Callers must
// not mutate the result.
func (m *CLMModel) ToBuffer() []byte {
	return m.buf
}

// Clone rebuilds the encoder/decoder handles around the same artifact
// bytes, matching the source's clone-shares-bytes/rebuilds-handles
// semantics.
func (m *CLMModel) Clone() (*CLMModel, error) {
	return FromBuffer(m.buf)
}

// Close releases the cgo-backed dictionary handles. Safe to call on an
// untrained model (no-op).
func (m *CLMModel) Close() {
	if m.cdw != nil {
		m.cdw.Release()
		m.cdw = nil
	}
	if m.ddw != nil {
		m.ddw.Release()
		m.ddw = nil
	}
}

// Compress encodes tokens as B-byte big-endian integers, then
// entropy-encodes with the prepared dictionary (or the coder's default
// behavior if the model is untrained). Deterministic given (artifact,
// level, tokens).
func (m *CLMModel) Compress(seq []tokens.Token) []byte {
	raw := tokens.Encode(nil, seq)
	if m.cdw == nil {
		return gozstd.CompressLevel(nil, raw, m.level)
	}
	return gozstd.CompressDict(nil, raw, m.cdw)
}

// DecompressToTokens inverts Compress for streams this model itself
// produced; behavior on foreign input is undefined. Must round-trip:
// DecompressToTokens(Compress(t)) == t.
func (m *CLMModel) DecompressToTokens(compressed []byte) ([]tokens.Token, error) {
	var raw []byte
	var err error
	if m.ddw == nil {
		raw, err = gozstd.Decompress(nil, compressed)
	} else {
		raw, err = gozstd.DecompressDict(nil, compressed, m.ddw)
	}
	if err != nil {
		return nil, clmerr.Wrap(clmerr.CorruptModel, fmt.Errorf("decompress: %w", err))
	}
	return tokens.Decode(raw), nil
}

// CompressTogether is equivalent to len(Compress(append(prompt, suffix...)))
// but is named as its own operation since the predictor calls it in a hot
// loop and a faster implementation may reuse encoder prefix state — gozstd
// does not expose that, so this is the naive fallback (see DESIGN.md).
func (m *CLMModel) CompressTogether(prompt, suffix []tokens.Token) int {
	joined := make([]tokens.Token, 0, len(prompt)+len(suffix))
	joined = append(joined, prompt...)
	joined = append(joined, suffix...)
	return len(m.Compress(joined))
}

// Evaluate returns the per-token identity rate across round-trip
// compress/decompress over testData — a sanity check, not a scoring metric.
func (m *CLMModel) Evaluate(testData [][]tokens.Token) float64 {
	var total, correct int
	for _, seq := range testData {
		compressed := m.Compress(seq)
		decompressed, err := m.DecompressToTokens(compressed)
		if err != nil {
			continue
		}
		total += len(seq)
		n := len(seq)
		if len(decompressed) < n {
			n = len(decompressed)
		}
		for i := 0; i < n; i++ {
			if seq[i] == decompressed[i] {
				correct++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// DictionarySize returns the size in bytes of the underlying artifact.
func (m *CLMModel) DictionarySize() int {
	return len(m.buf)
}

// SaveCheckpoint writes the raw dictionary bytes to a flat file — the
// single-model checkpoint convention (model.zstd_dict).
func (m *CLMModel) SaveCheckpoint(path string) error {
	if err := os.WriteFile(path, m.buf, 0o644); err != nil {
		return clmerr.Wrap(clmerr.Io, fmt.Errorf("write checkpoint %s: %w", path, err))
	}
	return nil
}

// FromCheckpoint reads the raw dictionary bytes from a flat file and
// builds a model around them.
func FromCheckpoint(path string) (*CLMModel, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, clmerr.Wrap(clmerr.Io, fmt.Errorf("read checkpoint %s: %w", path, err))
	}
	return FromBuffer(buf)
}
