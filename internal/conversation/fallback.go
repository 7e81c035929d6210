package conversation

import "github.com/ashureev/leadflow/internal/domain"

var fallbackPrompts = map[domain.Step]string{
	domain.StepGreeting:         "Olá! Bem-vindo ao m.lima Advogados Associados. Qual é o seu nome completo?",
	domain.StepAskName:          "Qual é o seu nome completo?",
	domain.StepAskContactReason: "Qual o motivo do seu contato?",
	domain.StepAskLegalArea:     "Em qual área do direito você precisa de ajuda?",
	domain.StepAskDetails:       "Conte-me mais detalhes sobre a sua situação.",
	domain.StepAwaitingPhone:    "Para finalizar, informe seu WhatsApp com DDD (ex: 11999999999).",
	domain.StepDone:             "Obrigado! Nossa equipe entrará em contato em breve.",
}

// FallbackPrompt is the static prompt used when the response generator fails.
func FallbackPrompt(step domain.Step) string {
	if p, ok := fallbackPrompts[step]; ok {
		return p
	}
	return "Como posso ajudá-lo?"
}
