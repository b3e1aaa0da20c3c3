package tokens

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	seq := []Token{0, 1, 50280, 12345}
	b := Encode(nil, seq)
	if len(b) != len(seq)*BytesPerToken {
		t.Fatalf("encoded length = %d, want %d", len(b), len(seq)*BytesPerToken)
	}
	got := Decode(b)
	if len(got) != len(seq) {
		t.Fatalf("decoded length = %d, want %d", len(got), len(seq))
	}
	for i := range seq {
		if got[i] != seq[i] {
			t.Errorf("token %d: got %d, want %d", i, got[i], seq[i])
		}
	}
}

func TestEncodeAppends(t *testing.T) {
	dst := []byte{0xff}
	out := Encode(dst, []Token{1})
	if len(out) != 1+BytesPerToken {
		t.Fatalf("expected append to preserve prefix, got length %d", len(out))
	}
	if out[0] != 0xff {
		t.Errorf("prefix byte clobbered")
	}
}

func TestSizes(t *testing.T) {
	seqs := [][]Token{{1, 2, 3}, {}, {4}}
	sizes := Sizes(seqs)
	want := []uint64{3 * BytesPerToken, 0, 1 * BytesPerToken}
	for i, s := range sizes {
		if s != want[i] {
			t.Errorf("sizes[%d] = %d, want %d", i, s, want[i])
		}
	}
}

func TestEmptyDecode(t *testing.T) {
	got := Decode(nil)
	if len(got) != 0 {
		t.Errorf("expected empty decode, got %v", got)
	}
}
