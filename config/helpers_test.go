package config

import (
	"encoding/json"
	"testing"

	"github.com/c360/maf/types"
)

func TestDecodeExtra_AbsentBlobReturnsEmptyMap(t *testing.T) {
	got := DecodeExtra(nil)
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func TestDecodeExtra_MalformedBlobReturnsEmptyMap(t *testing.T) {
	got := DecodeExtra(json.RawMessage(`not json`))
	if len(got) != 0 {
		t.Fatalf("expected empty map on malformed JSON, got %v", got)
	}
}

func TestGetProviderExtra_DecodesConfiguredProvider(t *testing.T) {
	cfg := &Config{
		Providers: types.ProviderConfigs{
			"echo": types.ProviderConfig{
				Name:      "echo",
				ServiceID: 1,
				Enabled:   true,
				Config:    json.RawMessage(`{"reply_prefix":"echo: "}`),
			},
		},
	}

	extra := cfg.GetProviderExtra("echo")
	if got := GetString(extra, "reply_prefix", ""); got != "echo: " {
		t.Fatalf("reply_prefix = %q, want %q", got, "echo: ")
	}
}

func TestGetProviderExtra_UnknownProviderReturnsEmptyMap(t *testing.T) {
	cfg := &Config{Providers: types.ProviderConfigs{}}
	extra := cfg.GetProviderExtra("missing")
	if len(extra) != 0 {
		t.Fatalf("expected empty map for unknown provider, got %v", extra)
	}
}

func TestGetRequesterExtra_DecodesConfiguredRequester(t *testing.T) {
	cfg := &Config{
		Requesters: types.RequesterConfigs{
			"consumer": types.RequesterConfig{
				Name:      "consumer",
				ServiceID: 1,
				Enabled:   true,
				Config:    json.RawMessage(`{"timeout_ms":500}`),
			},
		},
	}

	extra := cfg.GetRequesterExtra("consumer")
	if got := GetInt(extra, "timeout_ms", 0); got != 500 {
		t.Fatalf("timeout_ms = %d, want 500", got)
	}
}

func TestGetNestedString_DescendsThroughMaps(t *testing.T) {
	cfg := map[string]any{
		"outer": map[string]any{
			"inner": "value",
		},
	}
	if got := GetNestedString(cfg, []string{"outer", "inner"}, "default"); got != "value" {
		t.Fatalf("got %q, want %q", got, "value")
	}
	if got := GetNestedString(cfg, []string{"outer", "missing"}, "default"); got != "default" {
		t.Fatalf("got %q, want %q", got, "default")
	}
}

func TestHasNestedKey(t *testing.T) {
	cfg := map[string]any{"a": map[string]any{"b": 1}}
	if !HasNestedKey(cfg, []string{"a", "b"}) {
		t.Fatal("expected a.b to be present")
	}
	if HasNestedKey(cfg, []string{"a", "c"}) {
		t.Fatal("expected a.c to be absent")
	}
}
