package model

import "testing"

func TestParseEventType(t *testing.T) {
	cases := map[string]EventType{
		"Created":      EventCreated,
		"created":      EventCreated,
		"ownermessage": EventOwnerMessage,
		"6":            EventDelivered,
		"18":           EventOwnerMessage,
	}
	for input, want := range cases {
		got, err := ParseEventType(input)
		if err != nil {
			t.Fatalf("%s: %v", input, err)
		}
		if got != want {
			t.Fatalf("%s: got %s want %s", input, got, want)
		}
	}

	if _, err := ParseEventType("Exploded"); err == nil {
		t.Fatalf("expected error for unknown name")
	}
}

func TestEventTypeNames(t *testing.T) {
	if len(EventTypes()) != 19 {
		t.Fatalf("expected 19 event types, got %d", len(EventTypes()))
	}
	for _, et := range EventTypes() {
		if !et.Known() {
			t.Fatalf("%d should be known", et)
		}
		parsed, err := ParseEventType(et.String())
		if err != nil || parsed != et {
			t.Fatalf("%s does not parse back", et)
		}
	}
	if EventType(19).Known() || EventType(19).String() != "Unknown(19)" {
		t.Fatalf("unexpected name for unknown tag: %s", EventType(19))
	}
}
