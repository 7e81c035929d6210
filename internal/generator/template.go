package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/leadflow/internal/domain"
)

const firmName = "m.lima Advogados Associados"

var stepTemplates = map[domain.Step]string{
	domain.StepAskName: "Qual é o seu nome completo? 😊",
	domain.StepAskContactReason: "Prazer em conhecê-lo, {user_name}! 🤝\n\n" +
		"Conte-me, qual o motivo do seu contato conosco hoje?",
	domain.StepAskLegalArea: "Perfeito, {user_name}! 👍\n\n" +
		"Em qual área do direito você precisa de nossa ajuda?\n\n" +
		"⚖️ Direito Penal (crimes, investigações, defesas)\n" +
		"🏥 Direito da Saúde (planos de saúde, ações médicas, liminares)\n\n" +
		"Qual dessas áreas tem a ver com sua situação?",
	domain.StepAskDetails: "Entendi, {user_name}. 💼\n\n" +
		"Para nossos advogados já terem uma visão completa, me conte:\n\n" +
		"• Sua situação já está na justiça ou é algo que acabou de acontecer?\n" +
		"• Tem algum prazo urgente ou audiência marcada?\n" +
		"• Em que cidade isso está ocorrendo?\n\n" +
		"Fique à vontade para me contar os detalhes! 🤝",
	domain.StepAwaitingPhone: "Obrigado por todos esses detalhes, {user_name}! 🙏\n\n" +
		"Situações como a sua precisam de atenção especializada e rápida. " +
		"Vou registrar tudo para que o advogado responsável já entenda seu caso.\n\n" +
		"Para finalizar, preciso do seu WhatsApp com DDD (ex: 11999999999):",
	domain.StepDone: "Perfeito, {user_name}! ✅\n\n" +
		"Todas as suas informações foram registradas com sucesso.\n\n" +
		"Um advogado experiente do m.lima entrará em contato com você em breve " +
		"para dar prosseguimento ao seu caso com toda a atenção necessária. 🤝",
}

// Template renders the scripted Portuguese flow. The greeting depends on the
// time of day in Location.
type Template struct {
	Location *time.Location
	Now      func() time.Time
}

// NewTemplate returns a Template using the given location (nil means local time).
func NewTemplate(loc *time.Location) *Template {
	return &Template{Location: loc, Now: time.Now}
}

// Generate implements Generator.
func (t *Template) Generate(_ context.Context, step domain.Step, answers domain.Answers) (string, error) {
	if step == domain.StepGreeting {
		return t.Greeting(), nil
	}
	tmpl, ok := stepTemplates[step]
	if !ok {
		return "", fmt.Errorf("no template for step %q", step)
	}
	return interpolate(tmpl, answers), nil
}

// Greeting returns the opening message for the current hour.
func (t *Template) Greeting() string {
	return fmt.Sprintf("%s! 👋\n\n"+
		"Bem-vindo ao %s.\n\n"+
		"Você está no lugar certo! Somos especialistas em Direito Penal e da Saúde, "+
		"com uma equipe experiente pronta para te ajudar.\n\n"+
		"Para que eu possa direcionar você ao advogado especialista ideal, "+
		"preciso conhecer um pouco mais sobre sua situação.\n\n"+
		"%s", salutation(t.now()), firmName, stepTemplates[domain.StepAskName])
}

// FlowStep describes one step of the scripted flow.
type FlowStep struct {
	Step      domain.Step `json:"step"`
	AnswerKey string      `json:"answer_key,omitempty"`
	Prompt    string      `json:"prompt"`
}

// Script lists every step with its raw template.
func (t *Template) Script() []FlowStep {
	steps := domain.Flow()
	out := make([]FlowStep, 0, len(steps))
	for _, s := range steps {
		key, _ := s.AnswerKey()
		prompt := stepTemplates[s]
		if s == domain.StepGreeting {
			prompt = t.Greeting()
		}
		out = append(out, FlowStep{Step: s, AnswerKey: key, Prompt: prompt})
	}
	return out
}

func (t *Template) now() time.Time {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	if t.Location != nil {
		return now().In(t.Location)
	}
	return now()
}

func salutation(now time.Time) string {
	switch h := now.Hour(); {
	case h >= 5 && h < 12:
		return "Bom dia"
	case h >= 12 && h < 18:
		return "Boa tarde"
	default:
		return "Boa noite"
	}
}

func interpolate(tmpl string, answers domain.Answers) string {
	name := answers.FirstName()
	if name == "" {
		// Drop the vocative when the name is unknown.
		tmpl = strings.ReplaceAll(tmpl, ", {user_name}", "")
		tmpl = strings.ReplaceAll(tmpl, " {user_name}", "")
	}
	tmpl = strings.ReplaceAll(tmpl, "{user_name}", name)
	return strings.ReplaceAll(tmpl, "{area}", strings.TrimSpace(answers[domain.AnswerLegalArea]))
}
