// Package tokenizer adapts a HuggingFace byte-pair-encoding tokenizer to
// ChatCLM's token-sequence data model. It is stateless after construction
// and safely shareable across parallel workers, the same contract the
// teacher's embed.Embedder gives its own tokenizer handle.
package tokenizer

import (
	"fmt"

	hftok "github.com/daulet/tokenizers"

	"github.com/samuelless/chatclm/internal/tokens"
)

// errorSentinel is returned by Decode when the token sequence contains an
// out-of-vocabulary ID, rather than failing.
const errorSentinel = "<error>"

// Variant selects which vocabulary a tokenizer is built from.
type Variant int

const (
	// StandardBPE marks a tokenizer built from a p50k-equivalent
	// tokenizer.json; New loads it from the path it is given, like Custom.
	StandardBPE Variant = iota
	// Custom loads an arbitrary tokenizer.json path.
	Custom
)

// Tokenizer wraps a prepared HuggingFace tokenizer.
type Tokenizer struct {
	variant Variant
	inner   *hftok.Tokenizer
	maxTok  tokens.Token
}

// New loads a tokenizer.json file. variant is recorded only for
// diagnostics — both variants use the same underlying encoder, since no
// separate GPT-2/p50k-only BPE library is available (see DESIGN.md).
func New(variant Variant, tokenizerJSONPath string) (*Tokenizer, error) {
	tk, err := hftok.FromFile(tokenizerJSONPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", tokenizerJSONPath, err)
	}
	return &Tokenizer{variant: variant, inner: tk, maxTok: tokens.MaxToken}, nil
}

// Close releases the underlying cgo tokenizer handle.
func (t *Tokenizer) Close() {
	if t.inner != nil {
		t.inner.Close()
	}
}

// Encode tokenizes text deterministically. It is lossless for
// in-vocabulary text.
func (t *Tokenizer) Encode(text string) []tokens.Token {
	enc := t.inner.EncodeWithOptions(text, false)
	out := make([]tokens.Token, len(enc.IDs))
	for i, id := range enc.IDs {
		out[i] = tokens.Token(id)
	}
	return out
}

// Decode reconstructs text from a token sequence. Out-of-vocabulary token
// IDs cause it to return the "<error>" sentinel instead of failing.
func (t *Tokenizer) Decode(seq []tokens.Token) string {
	ids := make([]uint32, len(seq))
	for i, tok := range seq {
		if tok > t.maxTok {
			return errorSentinel
		}
		ids[i] = uint32(tok)
	}
	return t.inner.Decode(ids, false)
}

// MaxToken returns tokens.MaxToken, V-1 of the p50k-equivalent vocabulary,
// for either variant; it is not read from the loaded tokenizer.json.
func (t *Tokenizer) MaxToken() tokens.Token {
	return t.maxTok
}
