package cryptutil_test

import (
	"testing"

	"github.com/ardanlabs/sealedger/internal/cryptutil"
)

func Test_HashInput(t *testing.T) {
	f := cryptutil.HashInputFields{
		PreviousHash:     "",
		EncryptedData:    []byte{0xde, 0xad, 0xbe, 0xef},
		DataIV:           []byte{0x01, 0x02},
		EncryptedDataKey: []byte{0xaa},
		Nonce:            42,
		CreatedAt:        "2026-08-06T00:00:00Z",
		CreatorID:        "creator-1",
		Difficulty:       4,
	}

	got := cryptutil.HashInput(f)
	want := cryptutil.GenesisSentinel + "|deadbeef|0102|aa|42|2026-08-06T00:00:00Z|creator-1|4"

	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func Test_HashInput_PreviousHashPreserved(t *testing.T) {
	f := cryptutil.HashInputFields{
		PreviousHash: "abc123",
		CreatedAt:    "x",
		Difficulty:   1,
	}

	got := cryptutil.HashInput(f)
	if got[:6] != "abc123" {
		t.Fatalf("expected hash input to start with the previous hash, got %q", got)
	}
}

func Test_HashInput_EmptyCreatorID(t *testing.T) {
	f := cryptutil.HashInputFields{
		CreatedAt:  "x",
		Difficulty: 1,
	}

	got := cryptutil.HashInput(f)
	want := cryptutil.GenesisSentinel + "||||0|x||1"

	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func Test_BlockHash_Deterministic(t *testing.T) {
	input := "some-input"

	h1 := cryptutil.BlockHash(input)
	h2 := cryptutil.BlockHash(input)

	if h1 != h2 {
		t.Fatalf("expected the same input to produce the same hash twice, got %s and %s", h1, h2)
	}

	if len(h1) != 64 {
		t.Fatalf("expected a 64 character hex digest, got %d characters", len(h1))
	}
}

func Test_HasDifficultyPrefix(t *testing.T) {
	tests := []struct {
		name       string
		hash       string
		difficulty int
		want       bool
	}{
		{"exact-match", "0000abc", 4, true},
		{"too-few-zeros", "000abc", 4, false},
		{"zero-difficulty", "abc", 0, true},
		{"difficulty-larger-than-hash", "00", 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cryptutil.HasDifficultyPrefix(tt.hash, tt.difficulty)
			if got != tt.want {
				t.Fatalf("HasDifficultyPrefix(%q, %d) = %v, want %v", tt.hash, tt.difficulty, got, tt.want)
			}
		})
	}
}
