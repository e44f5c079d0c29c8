package bpath

import (
	"testing"

	"vesper/ustr"
)

func TestCanonicalizeResolvesDotDot(t *testing.T) {
	got := Canonicalize(ustr.Ustr("/a/b/../c"))
	if got.String() != "/a/c" {
		t.Fatalf("Canonicalize = %q, want /a/c", got.String())
	}
}

func TestCanonicalizeRoot(t *testing.T) {
	got := Canonicalize(ustr.Ustr("/"))
	if got.String() != "/" {
		t.Fatalf("Canonicalize(/) = %q, want /", got.String())
	}
}

func TestCanonicalizeDropsDot(t *testing.T) {
	got := Canonicalize(ustr.Ustr("/a/./b"))
	if got.String() != "/a/b" {
		t.Fatalf("Canonicalize = %q, want /a/b", got.String())
	}
}

func TestCanonicalizeDotDotAboveRootClamps(t *testing.T) {
	got := Canonicalize(ustr.Ustr("/../../a"))
	if got.String() != "/a" {
		t.Fatalf("Canonicalize = %q, want /a", got.String())
	}
}
