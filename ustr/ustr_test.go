package ustr

import "testing"

func TestIsAbsolute(t *testing.T) {
	if !MkUstrRoot().IsAbsolute() {
		t.Fatal("/ must be absolute")
	}
	if MkUstrDot().IsAbsolute() {
		t.Fatal(". must not be absolute")
	}
}

func TestExtend(t *testing.T) {
	p := MkUstrRoot().Extend(Ustr("etc")).Extend(Ustr("passwd"))
	if p.String() != "/etc/passwd" {
		t.Fatalf("got %q", p.String())
	}
}

func TestMkUstrSliceTruncatesAtNul(t *testing.T) {
	buf := []uint8{'h', 'i', 0, 'x'}
	s := MkUstrSlice(buf)
	if s.String() != "hi" {
		t.Fatalf("got %q", s.String())
	}
}

func TestEq(t *testing.T) {
	if !Ustr("abc").Eq(Ustr("abc")) {
		t.Fatal("expected equal")
	}
	if Ustr("abc").Eq(Ustr("abd")) {
		t.Fatal("expected not equal")
	}
}

func TestNormalizeIsIdempotentForASCII(t *testing.T) {
	p := Ustr("/bin/sh")
	if !p.Normalize().Eq(p) {
		t.Fatalf("ASCII path changed under normalization: %q", p.Normalize().String())
	}
}
