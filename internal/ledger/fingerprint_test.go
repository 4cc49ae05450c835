package ledger

import "testing"

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantHash string
		wantSize int64
	}{
		{
			name:     "empty",
			data:     nil,
			wantHash: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			wantSize: 0,
		},
		{
			name:     "abc",
			data:     []byte("abc"),
			wantHash: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
			wantSize: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := Compute(tt.data)
			if fp.Hash != tt.wantHash {
				t.Errorf("hash = %s, want %s", fp.Hash, tt.wantHash)
			}
			if fp.Size != tt.wantSize {
				t.Errorf("size = %d, want %d", fp.Size, tt.wantSize)
			}
		})
	}
}

func TestComputeDistinguishesContent(t *testing.T) {
	a := Compute([]byte("sheet one"))
	b := Compute([]byte("sheet two"))
	if a == b {
		t.Fatalf("distinct payloads produced the same fingerprint: %+v", a)
	}
	if again := Compute([]byte("sheet one")); again != a {
		t.Fatalf("same payload produced different fingerprints: %+v vs %+v", a, again)
	}
}
