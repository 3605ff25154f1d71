package stringutils

import (
	"math/rand"
	"strings"
	"testing"
)

func TestGetRunIDLength(t *testing.T) {
	id := GetRunID()
	if len(id) != 6 {
		t.Errorf("expected run id of length 6, got %d (%q)", len(id), id)
	}
}

func TestRandStringBytesMaskAlphabet(t *testing.T) {
	src := rand.NewSource(42)
	s := RandStringBytesMask(32, src)
	if len(s) != 32 {
		t.Fatalf("expected length 32, got %d", len(s))
	}
	for _, c := range s {
		if !strings.ContainsRune(shaLetters, c) {
			t.Errorf("unexpected character %q in generated string", c)
		}
	}
}

func TestRandStringBytesMaskDeterministic(t *testing.T) {
	a := RandStringBytesMask(10, rand.NewSource(7))
	b := RandStringBytesMask(10, rand.NewSource(7))
	if a != b {
		t.Errorf("same seed should produce same string: %q vs %q", a, b)
	}
}
