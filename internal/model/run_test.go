package model

import "testing"

func TestParseFlowType(t *testing.T) {
	for _, raw := range []string{"qualification", "proposal", "monitoring"} {
		flow, err := ParseFlowType(raw)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
		if string(flow) != raw {
			t.Fatalf("expected %q, got %q", raw, flow)
		}
	}

	if _, err := ParseFlowType("negotiation"); err == nil {
		t.Fatal("expected error for unknown flow type")
	}
	if _, err := ParseFlowType(""); err == nil {
		t.Fatal("expected error for empty flow type")
	}
}

func TestRunStatusTerminal(t *testing.T) {
	cases := map[RunStatus]bool{
		RunQueued:    false,
		RunRunning:   false,
		RunCompleted: true,
		RunFailed:    true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Fatalf("Terminal(%s) = %v, want %v", status, got, want)
		}
	}
}
