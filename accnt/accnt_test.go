package accnt

import "testing"

func TestUtaddSystadd(t *testing.T) {
	var a Accnt_t
	a.Utadd(100)
	a.Systadd(50)
	if a.Userns != 100 {
		t.Fatalf("Userns = %d, want 100", a.Userns)
	}
	if a.Sysns != 50 {
		t.Fatalf("Sysns = %d, want 50", a.Sysns)
	}
}

func TestAddMerges(t *testing.T) {
	var a, b Accnt_t
	a.Utadd(10)
	a.Systadd(20)
	b.Utadd(5)
	b.Systadd(7)
	a.Add(&b)
	if a.Userns != 15 || a.Sysns != 27 {
		t.Fatalf("Add() = (%d, %d), want (15, 27)", a.Userns, a.Sysns)
	}
}

func TestToRusageLength(t *testing.T) {
	var a Accnt_t
	a.Utadd(1000)
	a.Systadd(2000)
	ru := a.To_rusage()
	if len(ru) != 32 {
		t.Fatalf("To_rusage() length = %d, want 32", len(ru))
	}
}

func TestFetchLocksAndReturns(t *testing.T) {
	var a Accnt_t
	a.Utadd(1)
	ru := a.Fetch()
	if len(ru) != 32 {
		t.Fatal("Fetch() must return a full rusage buffer")
	}
}
