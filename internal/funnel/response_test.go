package funnel

import "testing"

func TestAnalyzeOfferResponseAcceptance(t *testing.T) {
	cases := []string{
		"sim, quero!",
		"Quero sim, pode mandar",
		"fechado, bora",
		"aceito, com certeza",
	}
	for _, text := range cases {
		got := AnalyzeOfferResponse(text)
		if !got.Accepted {
			t.Fatalf("%q classified as rejection", text)
		}
		if got.Confidence < 0.5 {
			t.Fatalf("%q confidence %.2f, want >= 0.5", text, got.Confidence)
		}
	}
}

func TestAnalyzeOfferResponseRejection(t *testing.T) {
	cases := []string{
		"não, muito caro",
		"nao quero, obrigado",
		"agora não dá, deixa pra lá",
	}
	for _, text := range cases {
		got := AnalyzeOfferResponse(text)
		if got.Accepted {
			t.Fatalf("%q classified as acceptance", text)
		}
		if got.Confidence < 0.5 {
			t.Fatalf("%q confidence %.2f, want >= 0.5", text, got.Confidence)
		}
	}
}

func TestAnalyzeOfferResponseLeadingNegationWins(t *testing.T) {
	got := AnalyzeOfferResponse("não, mas pode ser depois, ok?")
	if got.Accepted {
		t.Fatal("leading negation should force rejection despite positive keywords")
	}
	if got.Confidence != 0.6 {
		t.Fatalf("mixed signal confidence = %.2f, want 0.60", got.Confidence)
	}
}

func TestAnalyzeOfferResponseAmbiguous(t *testing.T) {
	if got := AnalyzeOfferResponse("como funciona isso?"); got.Accepted || got.Confidence != 0.65 {
		t.Fatalf("question: got %+v, want rejection at 0.65", got)
	}
	if got := AnalyzeOfferResponse("hmm"); got.Accepted || got.Confidence != 0.5 {
		t.Fatalf("short reply: got %+v, want rejection at 0.50", got)
	}
	if got := AnalyzeOfferResponse("vou pensar com calma sobre isso"); got.Accepted || got.Confidence != 0.55 {
		t.Fatalf("neutral reply: got %+v, want rejection at 0.55", got)
	}
}

func TestAnalyzeOfferResponseConfidenceScaling(t *testing.T) {
	one := AnalyzeOfferResponse("quero")
	two := AnalyzeOfferResponse("sim, quero")
	if one.Confidence != 0.5 {
		t.Fatalf("single keyword confidence = %.2f, want 0.50", one.Confidence)
	}
	if two.Confidence <= one.Confidence {
		t.Fatalf("two keywords (%.2f) should outrank one (%.2f)", two.Confidence, one.Confidence)
	}
	many := AnalyzeOfferResponse("sim sim, quero, aceito, claro, com certeza, fechado, perfeito, manda, ok, bora, vamos")
	if many.Confidence > 0.95 {
		t.Fatalf("confidence %.2f exceeds cap", many.Confidence)
	}
}
