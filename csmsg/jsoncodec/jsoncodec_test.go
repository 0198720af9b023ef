package jsoncodec

import (
	"testing"

	"github.com/c360/maf/csmsg"
)

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := New()
	p, err := c.Encode(point{X: 1, Y: 2})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var out point
	status, err := c.Decode(p, &out)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.X != 1 || out.Y != 2 {
		t.Fatalf("unexpected decoded value: %+v", out)
	}
	_ = status
}

func TestDecodeNilPayload(t *testing.T) {
	c := New()
	var out point
	status, err := c.Decode(nil, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.String() != "NoSource" {
		t.Fatalf("expected NoSource, got %v", status)
	}
}

func TestDecodeCorrupted(t *testing.T) {
	c := New()
	bad := csmsg.RawPayload("{not json")
	var out point
	status, err := c.Decode(bad, &out)
	if err == nil {
		t.Fatal("expected error decoding corrupted payload")
	}
	if status.String() != "SourceCorrupted" {
		t.Fatalf("expected SourceCorrupted, got %v", status)
	}
}
