package queue

import (
	"encoding/json"
	"testing"
)

type testPayload struct {
	Ticket string  `json:"ticket"`
	Profit float64 `json:"profit"`
}

func TestParsePayloadTyped(t *testing.T) {
	in := testPayload{Ticket: "T-1", Profit: 12.5}

	got, err := ParsePayload[testPayload](&in)
	if err != nil {
		t.Fatalf("pointer: %v", err)
	}
	if got != &in {
		t.Fatalf("pointer payload should pass through")
	}

	got, err = ParsePayload[testPayload](in)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if got.Ticket != "T-1" {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestParsePayloadRawJSON(t *testing.T) {
	raw := json.RawMessage(`{"ticket":"T-2","profit":-3}`)
	got, err := ParsePayload[testPayload](raw)
	if err != nil {
		t.Fatalf("raw: %v", err)
	}
	if got.Ticket != "T-2" || got.Profit != -3 {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestParsePayloadMap(t *testing.T) {
	m := map[string]interface{}{"ticket": "T-3", "profit": 7.0}
	got, err := ParsePayload[testPayload](m)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if got.Ticket != "T-3" || got.Profit != 7.0 {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestParsePayloadRejectsScalar(t *testing.T) {
	if _, err := ParsePayload[testPayload](42); err == nil {
		t.Fatalf("expected error for scalar payload")
	}
}
