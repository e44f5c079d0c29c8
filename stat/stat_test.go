package stat

import "testing"

func TestWriteReadFields(t *testing.T) {
	var st Stat_t
	st.Wdev(5)
	st.Wino(42)
	st.Wmode(0644)
	st.Wsize(1024)
	st.Wrdev(0)

	if st.Rino() != 42 {
		t.Fatalf("Rino() = %d, want 42", st.Rino())
	}
	if st.Mode() != 0644 {
		t.Fatalf("Mode() = %#o, want 0644", st.Mode())
	}
	if st.Size() != 1024 {
		t.Fatalf("Size() = %d, want 1024", st.Size())
	}
}

func TestBytesLength(t *testing.T) {
	var st Stat_t
	b := st.Bytes()
	if len(b) == 0 {
		t.Fatal("Bytes() must not be empty")
	}
}
