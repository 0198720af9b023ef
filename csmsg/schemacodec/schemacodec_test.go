package schemacodec

import (
	"testing"

	"github.com/c360/maf/csmsg"
)

const pointSchema = `{
	"type": "object",
	"properties": {
		"x": {"type": "integer"},
		"y": {"type": "integer"}
	},
	"required": ["x", "y"]
}`

func TestDecodeOpValidatesAgainstSchema(t *testing.T) {
	c := New()
	if err := c.RegisterSchema(1, pointSchema); err != nil {
		t.Fatalf("RegisterSchema failed: %v", err)
	}

	var out map[string]int
	status, err := c.DecodeOp(1, csmsg.RawPayload(`{"x":1,"y":2}`), &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != csmsg.TranslationSuccess {
		t.Fatalf("expected success, got %v", status)
	}
}

func TestDecodeOpRejectsInvalidPayload(t *testing.T) {
	c := New()
	if err := c.RegisterSchema(1, pointSchema); err != nil {
		t.Fatalf("RegisterSchema failed: %v", err)
	}

	var out map[string]int
	status, err := c.DecodeOp(1, csmsg.RawPayload(`{"x":1}`), &out)
	if err == nil {
		t.Fatal("expected schema violation error")
	}
	if status != csmsg.TranslationSourceCorrupted {
		t.Fatalf("expected SourceCorrupted, got %v", status)
	}
}

func TestDecodeOpWithoutSchemaSkipsValidation(t *testing.T) {
	c := New()
	var out map[string]int
	status, err := c.DecodeOp(2, csmsg.RawPayload(`{"x":1}`), &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != csmsg.TranslationSuccess {
		t.Fatalf("expected success, got %v", status)
	}
}
