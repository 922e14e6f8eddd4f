package rdb

import "testing"

func TestDecompressLZF(t *testing.T) {
	tests := []struct {
		name            string
		compressed      []byte
		uncompressedLen int
		want            []byte
		wantErr         bool
	}{
		{
			name:            "empty input",
			compressed:      []byte{},
			uncompressedLen: 0,
			want:            []byte{},
		},
		{
			name:            "literal run only",
			compressed:      []byte{0x05, 'h', 'e', 'l', 'l', 'o', '!'},
			uncompressedLen: 6,
			want:            []byte("hello!"),
		},
		{
			name:            "truncated literal run",
			compressed:      []byte{0x05, 'h', 'e', 'l'},
			uncompressedLen: 6,
			wantErr:         true,
		},
		{
			name: "back reference repeats a literal",
			// Literal "abc" (ctrl=0x02 -> len 3), then a back-reference
			// of length 3 at offset 3 (ctrl=0x20, offset low byte 0x02)
			// reproducing "abc" again -> "abcabc".
			compressed:      []byte{0x02, 'a', 'b', 'c', 0x20, 0x02},
			uncompressedLen: 6,
			want:            []byte("abcabc"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decompressLZF(tt.compressed, tt.uncompressedLen)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got none (result %q)", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != string(tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
