package funnel

import (
	"fmt"
	"strings"
)

// InstructionContext carries the dynamic pieces interpolated into stage
// instructions. Opportunity is only consulted for the upsell/downsell stages.
type InstructionContext struct {
	ContactName string
	Opportunity *Opportunity
}

// stageInstructions maps every stage to its instruction template. Keeping the
// table enum-keyed means an unmapped stage is a programming error caught by
// tests, not a silent branch miss.
var stageInstructions = map[Stage]string{
	StageGreeting: "Cumprimente o contato de forma calorosa e pessoal. Apresente-se brevemente e pergunte como pode ajudar. Não fale de preços ainda.",

	StageQualification: "Descubra o perfil do contato: o que ele faz, tamanho do negócio e o que o trouxe até aqui. Faça uma pergunta por vez.",

	StageNeedDiscovery: "Aprofunde nas necessidades. Pergunte sobre os desafios atuais e o que ele já tentou. Demonstre escuta ativa retomando o que ele disse.",

	StagePainPointExploration: "Explore as dores identificadas. Quantifique o impacto: quanto tempo ou dinheiro o problema custa por mês? Crie consciência da urgência sem pressionar.",

	StageSolutionPresentation: "Apresente a solução conectando cada recurso a uma dor mencionada na conversa. Use a linguagem do contato, não jargão técnico.",

	StageProductDemonstration: "Ofereça mostrar o produto em ação. Descreva um caso de uso concreto parecido com a situação do contato e convide para ver uma demonstração.",

	StageValueProposition: "Reforce o valor entregue: resultados esperados, economia de tempo e retorno sobre o investimento. Evite falar de preço antes de ancorar o valor.",

	StageProofAndCredibility: "Traga prova social: números de clientes, depoimentos e casos de sucesso do mesmo segmento. Se fizer sentido, use !social_proof:<id> para enviar um depoimento.",

	StageObjectionHandling: "O contato levantou uma objeção. Acolha sem confrontar, valide o sentimento e responda com a estratégia indicada. Nunca discuta.",

	StagePriceDiscussion: "Hora de falar de investimento. Apresente o preço ancorado no valor já construído. Ofereça parcelamento antes de qualquer desconto.",

	StageClosing: "Conduza ao fechamento. Pergunte de forma direta e confiante se podemos seguir. Resuma o que está incluído e a garantia.",

	StageCheckout: "O contato decidiu comprar. Envie o link de pagamento com !checkout:<plano> e oriente o passo a passo. Fique disponível para dúvidas.",

	StagePostPurchaseFollowup: "O contato acabou de comprar. Parabenize, confirme os próximos passos e garanta que ele saiba como acessar o produto. Não venda nada agora.",

	StageCrossSell: "Sugira um produto complementar ao que o contato já possui, conectando com o uso que ele relatou. Sem pressão: é um convite, não uma oferta agressiva.",

	StageReactivation: "O contato está inativo há um tempo. Retome a conversa com leveza, traga uma novidade relevante e pergunte como estão as coisas. Não cobre resposta.",

	StageFeedback: "Peça a opinião do contato sobre a experiência até aqui. Agradeça qualquer crítica e registre sugestões. Não transforme em venda.",
}

const upsellInstructionTemplate = `O contato comprou recentemente e este é o momento ideal para a oferta de upgrade.
Oferta: %s
Abordagem: %s
Valor: %s
Condição: %.0f%% de desconto, válida por %d horas.
Apresente como um benefício exclusivo de cliente, nunca como pressão. Se ele aceitar, use !checkout:%s.`

const downsellInstructionTemplate = `O contato recusou a oferta anterior. Apresente a alternativa mais acessível.
Oferta: %s
Abordagem: %s
Valor: %s
Condição: %.0f%% de desconto, válida por %d horas.
Reconheça a decisão dele primeiro. Esta é a última oferta: se recusar, siga para o pós-venda normalmente.`

const upsellFallbackInstructions = "O contato é um cliente recente. Pergunte como está a experiência com o produto e, se a conversa abrir espaço, mencione que existe um plano superior com condições especiais para clientes."

const downsellFallbackInstructions = "O contato recusou uma oferta recentemente. Respeite a decisão, mantenha o relacionamento e foque em garantir que ele tenha sucesso com o que já possui."

const genericFallbackInstructions = "Continue a conversa de forma consultiva: entenda o momento do contato e conduza naturalmente para o próximo passo da jornada de compra."

// BuildStageInstructions renders the instruction block for a stage. It always
// returns a non-empty string; unknown stages get a generic fallback.
func BuildStageInstructions(stage Stage, ictx InstructionContext) string {
	switch stage {
	case StageUpsell:
		if ictx.Opportunity == nil {
			return upsellFallbackInstructions
		}
		o := ictx.Opportunity
		return fmt.Sprintf(upsellInstructionTemplate,
			o.Title, o.Pitch, o.ValueProposition, o.Discount*100, o.ValidityHours, o.TargetPlanID)
	case StageDownsell:
		if ictx.Opportunity == nil {
			return downsellFallbackInstructions
		}
		o := ictx.Opportunity
		return fmt.Sprintf(downsellInstructionTemplate,
			o.Title, o.Pitch, o.ValueProposition, o.Discount*100, o.ValidityHours)
	}

	if tmpl, ok := stageInstructions[stage]; ok {
		if ictx.ContactName != "" {
			return strings.ReplaceAll(tmpl, "o contato", ictx.ContactName)
		}
		return tmpl
	}
	return genericFallbackInstructions
}
