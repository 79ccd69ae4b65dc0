package funnel

import "testing"

func TestIdentifyObjections(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"Achei muito caro isso", []string{"preco"}},
		{"Não tenho tempo agora, semana que vem eu vejo", []string{"tempo"}},
		{"será que funciona mesmo? tenho dúvida", []string{"confianca"}},
		{"preciso falar com meu sócio antes", []string{"autoridade"}},
		{"tá caro e não tenho tempo", []string{"preco", "tempo"}},
		{"adorei, vamos fechar", nil},
	}
	for _, tc := range cases {
		got := IdentifyObjections(tc.text)
		if len(got) != len(tc.want) {
			t.Fatalf("IdentifyObjections(%q) returned %d rules, want %d", tc.text, len(got), len(tc.want))
		}
		for i, rule := range got {
			if rule.Category != tc.want[i] {
				t.Fatalf("IdentifyObjections(%q)[%d] = %q, want %q", tc.text, i, rule.Category, tc.want[i])
			}
		}
	}
}

func TestIdentifyObjectionsCaseInsensitive(t *testing.T) {
	got := IdentifyObjections("MUITO CARO")
	if len(got) != 1 || got[0].Category != "preco" {
		t.Fatalf("uppercase match failed: %+v", got)
	}
}

func TestObjectionRulesComplete(t *testing.T) {
	for _, rule := range ObjectionRules() {
		if rule.Category == "" || len(rule.Keywords) == 0 || len(rule.Strategies) == 0 || rule.Example == "" {
			t.Fatalf("incomplete rule %+v", rule)
		}
	}
}
