package pgvector

import (
	"errors"
	"strings"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
		want string
	}{
		{
			name: "empty vector",
			vec:  []float32{},
			want: "[]",
		},
		{
			name: "single component",
			vec:  []float32{0.5},
			want: "[0.50000000]",
		},
		{
			name: "multiple components",
			vec:  []float32{1, -0.25, 0},
			want: "[1.00000000,-0.25000000,0.00000000]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Encode(tt.vec); got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		literal string
		want    []float32
		wantErr bool
	}{
		{
			name:    "valid literal",
			literal: "[0.1,0.2,0.3]",
			want:    []float32{0.1, 0.2, 0.3},
		},
		{
			name:    "whitespace tolerated",
			literal: " [ 1.0 , -2.5 ] ",
			want:    []float32{1.0, -2.5},
		},
		{
			name:    "empty brackets",
			literal: "[]",
			want:    []float32{},
		},
		{
			name:    "missing brackets",
			literal: "0.1,0.2",
			wantErr: true,
		},
		{
			name:    "non-numeric component",
			literal: "[0.1,abc]",
			wantErr: true,
		},
		{
			name:    "empty string",
			literal: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.literal)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var decErr *DecodeError
				if !errors.As(err, &decErr) {
					t.Fatalf("Decode() error type = %T, want *DecodeError", err)
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Decode() length = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if diff := got[i] - tt.want[i]; diff > 1e-6 || diff < -1e-6 {
					t.Errorf("Decode()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	orig := []float32{0.12345678, -0.87654321, 3.5, 0}
	decoded, err := Decode(Encode(orig))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(decoded) != len(orig) {
		t.Fatalf("round trip length = %d, want %d", len(decoded), len(orig))
	}
	for i := range orig {
		if diff := decoded[i] - orig[i]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("round trip [%d] = %v, want %v", i, decoded[i], orig[i])
		}
	}
}

func TestDecodeValue(t *testing.T) {
	t.Run("float32 pass-through", func(t *testing.T) {
		in := []float32{0.1, 0.2}
		got, err := DecodeValue(in)
		if err != nil {
			t.Fatalf("DecodeValue() error = %v", err)
		}
		if len(got) != 2 || got[0] != in[0] {
			t.Errorf("DecodeValue() = %v, want %v", got, in)
		}
	})

	t.Run("byte literal", func(t *testing.T) {
		got, err := DecodeValue([]byte("[1.0,2.0]"))
		if err != nil {
			t.Fatalf("DecodeValue() error = %v", err)
		}
		if len(got) != 2 {
			t.Errorf("DecodeValue() length = %d, want 2", len(got))
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := DecodeValue(42)
		if err == nil {
			t.Fatal("DecodeValue() expected error for int source")
		}
		if !strings.Contains(err.Error(), "unsupported") {
			t.Errorf("DecodeValue() error = %v, want unsupported source type", err)
		}
	})
}
