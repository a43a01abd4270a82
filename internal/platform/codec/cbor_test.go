package codec

import (
	"bytes"
	"testing"
)

type sample struct {
	Name   string            `json:"name"`
	Blob   []byte            `json:"blob,omitempty"`
	Labels map[string]string `json:"labels"`
}

func TestDeterministicRoundTrip(t *testing.T) {
	in := sample{
		Name:   "1.2.3",
		Blob:   []byte(`{"k":1}`),
		Labels: map[string]string{"z": "last", "a": "first", "m": "mid"},
	}
	first, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(in)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding is not deterministic")
		}
	}

	var out sample
	if err := Unmarshal(first, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != in.Name || string(out.Blob) != string(in.Blob) || out.Labels["m"] != "mid" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
