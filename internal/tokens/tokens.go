// Package tokens defines the wire representation of a vocabulary token
// shared by every other ChatCLM package.
package tokens

import "encoding/binary"

// Token is an index into the tokenizer's vocabulary.
type Token uint64

// BytesPerToken is the fixed width B of a token on the wire, in bytes.
// Big-endian uint64, wide enough for any vocabulary size on a 64-bit
// target (see DESIGN.md's Open Question note).
const BytesPerToken = 8

// MaxToken is V-1 for the standard p50k-equivalent vocabulary (V ≈ 50,281).
const MaxToken Token = 50280

// Encode appends the big-endian BytesPerToken-byte encoding of seq to dst
// and returns the extended slice.
func Encode(dst []byte, seq []Token) []byte {
	var buf [BytesPerToken]byte
	for _, t := range seq {
		binary.BigEndian.PutUint64(buf[:], uint64(t))
		dst = append(dst, buf[:]...)
	}
	return dst
}

// Decode parses a byte stream produced by Encode (or by a CLMModel's own
// decompression) back into a token sequence. Behavior on inputs not
// produced by Encode (wrong length, foreign byte width) is undefined —
// callers that need a length check should test len(b)%BytesPerToken first.
func Decode(b []byte) []Token {
	n := len(b) / BytesPerToken
	out := make([]Token, n)
	for i := 0; i < n; i++ {
		out[i] = Token(binary.BigEndian.Uint64(b[i*BytesPerToken : (i+1)*BytesPerToken]))
	}
	return out
}

// Sizes returns the byte length of each sequence's big-endian encoding —
// the "sizes" array the dictionary trainer needs alongside the
// concatenated raw buffer.
func Sizes(seqs [][]Token) []uint64 {
	sizes := make([]uint64, len(seqs))
	for i, s := range seqs {
		sizes[i] = uint64(len(s)) * BytesPerToken
	}
	return sizes
}
