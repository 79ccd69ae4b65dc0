package funnel

import (
	"errors"
	"testing"
)

func TestParseStage(t *testing.T) {
	cases := []struct {
		raw  string
		want Stage
		ok   bool
	}{
		{"greeting", StageGreeting, true},
		{"  Checkout ", StageCheckout, true},
		{"POST_PURCHASE_FOLLOWUP", StagePostPurchaseFollowup, true},
		{"upsell", StageUpsell, true},
		{"negotiation", "", false},
		{"", "", false},
		{"cross-sell", "", false},
	}
	for _, tc := range cases {
		got, err := ParseStage(tc.raw)
		if tc.ok {
			if err != nil {
				t.Fatalf("ParseStage(%q) unexpected error: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("ParseStage(%q) = %q, want %q", tc.raw, got, tc.want)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidStage) {
			t.Fatalf("ParseStage(%q) error = %v, want ErrInvalidStage", tc.raw, err)
		}
	}
}

func TestAllStagesValidAndDistinct(t *testing.T) {
	if len(AllStages) != 18 {
		t.Fatalf("expected 18 stages, got %d", len(AllStages))
	}
	seen := make(map[Stage]bool)
	for _, s := range AllStages {
		if !s.Valid() {
			t.Fatalf("stage %q not valid", s)
		}
		if seen[s] {
			t.Fatalf("duplicate stage %q", s)
		}
		seen[s] = true
	}
}

func TestEveryStageHasInstructions(t *testing.T) {
	for _, s := range AllStages {
		if got := BuildStageInstructions(s, InstructionContext{}); got == "" {
			t.Fatalf("stage %q produced empty instructions", s)
		}
	}
}
