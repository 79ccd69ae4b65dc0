package funnel

import "strings"

// ObjectionRule is a named objection category with detection keywords,
// handling strategies, and one example response for prompt injection.
// Rules are static and read-only at runtime.
type ObjectionRule struct {
	Category   string
	Keywords   []string
	Strategies []string
	Example    string
}

var objectionRules = []ObjectionRule{
	{
		Category: "preco",
		Keywords: []string{"caro", "muito caro", "não tenho dinheiro", "nao tenho dinheiro", "sem grana", "fora do orçamento", "fora do orcamento", "não cabe", "nao cabe"},
		Strategies: []string{
			"Reenquadrar o valor em custo diário",
			"Comparar com o custo de não resolver o problema",
			"Oferecer parcelamento antes de desconto",
		},
		Example: "Entendo! Pensando bem, dá menos de R$2 por dia — menos que um café. E quanto está custando deixar esse problema sem resolver?",
	},
	{
		Category: "tempo",
		Keywords: []string{"não tenho tempo", "nao tenho tempo", "depois eu vejo", "mais tarde", "semana que vem", "outro momento", "agora não dá", "agora nao da"},
		Strategies: []string{
			"Mostrar que a implementação leva minutos",
			"Criar urgência com a condição atual",
		},
		Example: "Super entendo a correria! A boa notícia é que a configuração leva menos de 10 minutos e eu te acompanho em cada passo.",
	},
	{
		Category: "confianca",
		Keywords: []string{"não confio", "nao confio", "é golpe", "e golpe", "funciona mesmo", "será que funciona", "sera que funciona", "tenho dúvida", "tenho duvida", "não sei se"},
		Strategies: []string{
			"Apresentar prova social e depoimentos",
			"Reforçar a garantia de reembolso",
		},
		Example: "Faz todo sentido querer ter certeza! Temos mais de 3.000 alunos e garantia incondicional de 7 dias: se não gostar, devolvemos tudo.",
	},
	{
		Category: "necessidade",
		Keywords: []string{"não preciso", "nao preciso", "já tenho", "ja tenho", "não é pra mim", "nao e pra mim", "não vejo necessidade", "nao vejo necessidade"},
		Strategies: []string{
			"Voltar às dores mapeadas na conversa",
			"Mostrar o custo de manter a situação atual",
		},
		Example: "Entendi! Só retomando o que você comentou antes sobre perder vendas no WhatsApp — é exatamente isso que a plataforma resolve.",
	},
	{
		Category: "autoridade",
		Keywords: []string{"falar com meu sócio", "falar com meu socio", "consultar minha esposa", "consultar meu marido", "preciso conversar", "decidir junto"},
		Strategies: []string{
			"Oferecer material para compartilhar com o decisor",
			"Propor uma conversa com os dois presentes",
		},
		Example: "Claro, decisão a dois é sempre melhor! Posso te mandar um resumo com os resultados para você mostrar? Assim a conversa fica mais fácil.",
	},
}

// ObjectionRules returns the static rule set.
func ObjectionRules() []ObjectionRule {
	return objectionRules
}

// IdentifyObjections matches text against every rule's keyword set,
// case-insensitively, and returns all matching rules in definition order.
func IdentifyObjections(text string) []ObjectionRule {
	lowered := strings.ToLower(text)
	var matched []ObjectionRule
	for _, rule := range objectionRules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(lowered, keyword) {
				matched = append(matched, rule)
				break
			}
		}
	}
	return matched
}
